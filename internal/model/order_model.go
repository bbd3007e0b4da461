package model

import "time"

// Customer-facing order lifecycle: created|accepted|done|cancelled.
// OrderStatus is the kitchen-side lifecycle driven by staff:
// new|cooking|served|cancelled.
type Order struct {
	OrderID int64 `db:"orderid" json:"order_id"`
	TableID int64 `db:"tableid" json:"table_id"`

	Note        string  `db:"note" json:"note"`
	Status      string  `db:"status" json:"status"`
	OrderStatus *string `db:"orderstatus" json:"order_status,omitempty"`

	TotalAmount float64 `db:"totalamount" json:"total"`
	Currency    string  `db:"currency" json:"currency"`

	InvoiceRef string `db:"invoiceref" json:"invoice_ref"`

	CreatedAt   time.Time  `db:"createdat" json:"created_at"`
	AcceptedAt  *time.Time `db:"acceptedat" json:"accepted_at,omitempty"`
	ServedAt    *time.Time `db:"servedat" json:"served_at,omitempty"`
	CancelledAt *time.Time `db:"cancelledat" json:"cancelled_at,omitempty"`
}

type OrderItem struct {
	OrderItemID int64   `db:"orderitemid" json:"order_item_id"`
	OrderID     int64   `db:"orderid" json:"order_id"`
	MenuItemID  int64   `db:"menuitemid" json:"menu_item_id"`
	Name        string  `db:"-" json:"name"`
	Qty         int     `db:"qty" json:"qty"`
	UnitPrice   float64 `db:"unitprice" json:"unit_price"`
	LineTotal   float64 `db:"linetotal" json:"line_total"`
	Note        string  `db:"note" json:"note"`
}

// CartLine is one requested line in a checkout payload.
type CartLine struct {
	MenuItemID int64  `json:"menu_item_id"`
	Qty        int    `json:"qty"`
	Note       string `json:"note"`
}
