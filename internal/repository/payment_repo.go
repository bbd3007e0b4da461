package repository

import (
	"context"
	"errors"

	"github.com/SonthatQ/qr-restaurant/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository struct {
	DB *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{DB: db}
}

const paymentColumns = `paymentid, provider, orderid, amount, txnref, billerref, invoiceref,
       status, qrraw, qrpayload, qrimage, createdat, paidat`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(
		&p.PaymentID, &p.Provider, &p.OrderID, &p.Amount,
		&p.TxnRef, &p.BillerRef, &p.InvoiceRef,
		&p.Status, &p.QRRaw, &p.QRPayload, &p.QRImageBase64,
		&p.CreatedAt, &p.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) CreatePending(ctx context.Context, orderID int64, provider, invoiceRef string, amount float64) (*model.Payment, error) {
	q := `
		INSERT INTO payments (provider, orderid, amount, invoiceref, status, createdat)
		VALUES ($1, $2, $3, $4, 'pending', NOW())
		RETURNING ` + paymentColumns
	return scanPayment(r.DB.QueryRow(ctx, q, provider, orderID, amount, invoiceRef))
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE orderid=$1`
	return scanPayment(r.DB.QueryRow(ctx, q, orderID))
}

func (r *PaymentRepository) GetByTxnRef(ctx context.Context, txnRef string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE txnref=$1`
	return scanPayment(r.DB.QueryRow(ctx, q, txnRef))
}

func (r *PaymentRepository) GetByBillerRef(ctx context.Context, billerRef string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE billerref=$1`
	return scanPayment(r.DB.QueryRow(ctx, q, billerRef))
}

// UpdateQR stores the gateway's QR issuance result on the pending payment.
func (r *PaymentRepository) UpdateQR(ctx context.Context, paymentID int64, txnRef, billerRef, qrRaw, qrPayload, qrImage string) (*model.Payment, error) {
	q := `
		UPDATE payments
		SET txnref=$2, billerref=$3, qrraw=$4, qrpayload=$5, qrimage=$6
		WHERE paymentid=$1
		RETURNING ` + paymentColumns
	return scanPayment(r.DB.QueryRow(ctx, q, paymentID, txnRef, billerRef, qrRaw, qrPayload, qrImage))
}

// GetForUpdateTx re-reads the payment row inside tx with a row lock so the
// reconciler's read-check-write sequence cannot lose an update to a racing
// webhook or poll.
func (r *PaymentRepository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, paymentID int64) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE paymentid=$1 FOR UPDATE`
	return scanPayment(tx.QueryRow(ctx, q, paymentID))
}

// MarkPaidTx transitions a pending payment to paid, stamping paidat once and
// backfilling the transaction ref when the gateway supplied one.
func (r *PaymentRepository) MarkPaidTx(ctx context.Context, tx pgx.Tx, paymentID int64, txnRef string) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments
		SET status='paid',
		    paidat=NOW(),
		    txnref=CASE WHEN txnref='' AND $2 <> '' THEN $2 ELSE txnref END
		WHERE paymentid=$1 AND status='pending'
	`, paymentID, txnRef)
	return err
}

func (r *PaymentRepository) MarkFailedTx(ctx context.Context, tx pgx.Tx, paymentID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments
		SET status='failed'
		WHERE paymentid=$1 AND status='pending'
	`, paymentID)
	return err
}

// InsertEvent appends one ledger row. The dedup key carries a unique
// constraint; a second delivery of the same callback collides there and is
// reported as inserted=false, not as an error. The constraint, not this
// code, is what serializes concurrent duplicates.
func (r *PaymentRepository) InsertEvent(ctx context.Context, ev model.PaymentEvent) (bool, error) {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payment_events (paymentid, receivedat, eventtype, dedupkey, rawpayload)
		VALUES ($1, NOW(), $2, $3, $4)
	`, ev.PaymentID, ev.EventType, ev.DedupKey, ev.RawPayload)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PaymentRepository) ListEvents(ctx context.Context, paymentID int64) ([]model.PaymentEvent, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT eventid, paymentid, receivedat, eventtype, dedupkey, rawpayload
		FROM payment_events
		WHERE paymentid=$1
		ORDER BY eventid
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PaymentEvent
	for rows.Next() {
		var ev model.PaymentEvent
		if err := rows.Scan(&ev.EventID, &ev.PaymentID, &ev.ReceivedAt, &ev.EventType, &ev.DedupKey, &ev.RawPayload); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
