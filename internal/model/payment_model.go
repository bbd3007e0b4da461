package model

import "time"

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Payment is one-to-one with its order. Once paid the row is immutable;
// failed is reachable only from pending.
type Payment struct {
	PaymentID int64  `db:"paymentid" json:"payment_id"`
	Provider  string `db:"provider" json:"provider"`
	OrderID   int64  `db:"orderid" json:"order_id"`

	Amount float64 `db:"amount" json:"amount"`

	TxnRef     string `db:"txnref" json:"txn_ref"`
	BillerRef  string `db:"billerref" json:"biller_ref"`
	InvoiceRef string `db:"invoiceref" json:"invoice_ref"`

	Status string `db:"status" json:"status"`

	QRRaw         string `db:"qrraw" json:"-"`
	QRPayload     string `db:"qrpayload" json:"qr_payload"`
	QRImageBase64 string `db:"qrimage" json:"qr_image_base64"`

	CreatedAt time.Time  `db:"createdat" json:"created_at"`
	PaidAt    *time.Time `db:"paidat" json:"paid_at,omitempty"`
}

// PaymentEvent is the append-only ledger of raw gateway callbacks. DedupKey
// carries a storage-level unique constraint; concurrent duplicate deliveries
// collide there, not in application code.
type PaymentEvent struct {
	EventID    int64     `db:"eventid" json:"event_id"`
	PaymentID  int64     `db:"paymentid" json:"payment_id"`
	ReceivedAt time.Time `db:"receivedat" json:"received_at"`
	EventType  string    `db:"eventtype" json:"event_type"`
	DedupKey   string    `db:"dedupkey" json:"dedup_key"`
	RawPayload string    `db:"rawpayload" json:"raw_payload"`
}
