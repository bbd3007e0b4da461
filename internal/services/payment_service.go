package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/SonthatQ/qr-restaurant/external/scb"
	"github.com/SonthatQ/qr-restaurant/internal/model"
	"github.com/SonthatQ/qr-restaurant/internal/repository"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrOrderNotFound   = errors.New("order not found")
)

// Gateway is the slice of the SCB client the reconciler needs; tests swap in
// a stub.
type Gateway interface {
	IssueQR(ctx context.Context, q scb.QRRequest) (*scb.QRResult, error)
	InquireStatus(ctx context.Context, txnRef string) (string, error)
}

// PaymentService owns the payment state machine. Webhook callbacks and
// status polls both funnel through it; neither path mutates a payment
// anywhere else.
type PaymentService struct {
	PaymentRepo *repository.PaymentRepository
	OrderRepo   *repository.OrderRepository
	Gateway     Gateway

	Provider   string
	Ref3Prefix string
	// absolute tolerance for callback amount vs recorded amount
	Tolerance float64
}

func NewPaymentService(
	pr *repository.PaymentRepository,
	or *repository.OrderRepository,
	gw Gateway,
	ref3Prefix string,
	tolerance float64,
) *PaymentService {
	return &PaymentService{
		PaymentRepo: pr,
		OrderRepo:   or,
		Gateway:     gw,
		Provider:    "SCB",
		Ref3Prefix:  ref3Prefix,
		Tolerance:   tolerance,
	}
}

// ----------------------------------------------------------------------
// payload key normalization
// ----------------------------------------------------------------------

// Callback shapes differ between SCB products; each logical field has an
// ordered list of candidate key names, tried in priority order.
var keyAliases = map[string][]string{
	"txn_id": {"transactionId", "transaction_id"},
	"amount": {"amount"},
	"ref1":   {"billPaymentRef1", "ref1"},
	"ref2":   {"billPaymentRef2", "ref2"},
	"ref3":   {"billPaymentRef3", "ref3"},
}

type paymentKeys struct {
	TxnID  string
	Amount string
	Ref1   string
	Ref2   string
	Ref3   string
}

func payloadString(payload map[string]interface{}, field string) string {
	for _, name := range keyAliases[field] {
		v, ok := payload[name]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case json.Number:
			return t.String()
		default:
			return fmt.Sprintf("%v", t)
		}
	}
	return ""
}

func extractPaymentKeys(payload map[string]interface{}) paymentKeys {
	return paymentKeys{
		TxnID:  payloadString(payload, "txn_id"),
		Amount: payloadString(payload, "amount"),
		Ref1:   payloadString(payload, "ref1"),
		Ref2:   payloadString(payload, "ref2"),
		Ref3:   payloadString(payload, "ref3"),
	}
}

// ComputeDedupKey fingerprints a callback payload. Transaction id alone when
// present; otherwise the reference fields plus amount; otherwise a
// canonical (sorted-key) serialization of the whole payload, so distinct
// payloads never collapse and identical ones always do.
func ComputeDedupKey(payload map[string]interface{}) string {
	keys := extractPaymentKeys(payload)

	base := keys.TxnID
	if base == "" {
		base = fmt.Sprintf("%s-%s-%s", keys.Ref1, keys.Amount, keys.Ref3)
	}
	if base == "--" || base == "" {
		// json.Marshal sorts map keys, which is exactly the canonical form
		// needed here
		b, _ := json.Marshal(payload)
		base = string(b)
	}

	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// ----------------------------------------------------------------------
// QR issuance
// ----------------------------------------------------------------------

var nonDigits = regexp.MustCompile(`\D+`)

func digitsOnly(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// qrRefs derives the merchant references for a QR request from the order's
// invoice ref: numeric projection for ref1, a time disambiguator for ref2,
// the configured prefix for ref3. Re-derivable without provider-side state.
func (s *PaymentService) qrRefs(orderID int64, invoiceRef string, now time.Time) (string, string, string) {
	ref1 := digitsOnly(invoiceRef)
	if len(ref1) > 20 {
		ref1 = ref1[:20]
	}
	if ref1 == "" {
		ref1 = strconv.FormatInt(orderID, 10)
	}

	ts := strconv.FormatInt(now.Unix(), 10)
	if len(ts) > 10 {
		ts = ts[len(ts)-10:]
	}

	ref3 := s.Ref3Prefix
	if len(ref3) > 10 {
		ref3 = ref3[:10]
	}
	if ref3 == "" {
		ref3 = "SCB"
	}

	return ref1, ts, ref3
}

// CreateQR issues (or returns) the payment QR for an order. The payment row
// is created pending on first call; a failure from the gateway is surfaced
// so order creation fails visibly instead of leaving an order nobody can
// pay.
func (s *PaymentService) CreateQR(ctx context.Context, order *model.Order) (*model.Payment, error) {
	payment, err := s.PaymentRepo.GetByOrderID(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		payment, err = s.PaymentRepo.CreatePending(ctx, order.OrderID, s.Provider, order.InvoiceRef, order.TotalAmount)
		if err != nil {
			return nil, err
		}
	}

	if payment.Status == model.PaymentPaid && payment.QRImageBase64 != "" {
		return payment, nil
	}

	ref1, ref2, ref3 := s.qrRefs(order.OrderID, order.InvoiceRef, time.Now().UTC())

	res, err := s.Gateway.IssueQR(ctx, scb.QRRequest{
		Amount: order.TotalAmount,
		Ref1:   ref1,
		Ref2:   ref2,
		Ref3:   ref3,
	})
	if err != nil {
		return nil, fmt.Errorf("issue qr for order %d: %w", order.OrderID, err)
	}

	return s.PaymentRepo.UpdateQR(ctx, payment.PaymentID, res.TransactionID, ref1, res.Raw, res.QRPayload, res.QRImageBase64)
}

// ----------------------------------------------------------------------
// callback path
// ----------------------------------------------------------------------

// CallbackResult reports what a webhook delivery did.
type CallbackResult struct {
	Payment  *model.Payment
	Inserted bool
	Updated  bool
}

// HandleCallback runs the webhook path: locate the payment (transaction id
// first, then biller ref), append to the event ledger, and reconcile only
// when the ledger reports a genuinely new delivery.
func (s *PaymentService) HandleCallback(ctx context.Context, payload map[string]interface{}) (*CallbackResult, error) {
	keys := extractPaymentKeys(payload)

	var payment *model.Payment
	var err error
	if keys.TxnID != "" {
		payment, err = s.PaymentRepo.GetByTxnRef(ctx, keys.TxnID)
		if err != nil {
			return nil, err
		}
	}
	if payment == nil && keys.Ref1 != "" {
		payment, err = s.PaymentRepo.GetByBillerRef(ctx, keys.Ref1)
		if err != nil {
			return nil, err
		}
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	inserted, err := s.RecordEvent(ctx, payment.PaymentID, payload, "scb_callback")
	if err != nil {
		return nil, err
	}

	updated := false
	if inserted {
		updated, err = s.MarkPaidIfMatch(ctx, payment.PaymentID, payload)
		if err != nil {
			return nil, err
		}
	}

	// re-read so the caller broadcasts the post-transition state
	payment, err = s.PaymentRepo.GetByOrderID(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}

	return &CallbackResult{Payment: payment, Inserted: inserted, Updated: updated}, nil
}

// RecordEvent appends the raw callback to the ledger. inserted=false means
// duplicate delivery, already processed; that is a recognized no-op, never
// an error.
func (s *PaymentService) RecordEvent(ctx context.Context, paymentID int64, payload map[string]interface{}, eventType string) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	return s.PaymentRepo.InsertEvent(ctx, model.PaymentEvent{
		PaymentID:  paymentID,
		EventType:  eventType,
		DedupKey:   ComputeDedupKey(payload),
		RawPayload: string(raw),
	})
}

// evaluateCallback decides whether a callback payload may confirm this
// payment. Pure so the matching rules are testable without storage.
func evaluateCallback(p *model.Payment, keys paymentKeys, tolerance float64) (bool, string) {
	// a recorded biller ref must agree; this guards against cross-wiring a
	// callback to the wrong payment
	if keys.Ref1 != "" && p.BillerRef != "" && keys.Ref1 != p.BillerRef {
		return false, "reference mismatch"
	}

	if keys.Amount != "" {
		amt, err := strconv.ParseFloat(keys.Amount, 64)
		// unparsable amounts are treated as absent, matching the provider's
		// own loose formatting
		if err == nil && math.Abs(amt-p.Amount) > tolerance {
			return false, "amount mismatch"
		}
	}

	return true, ""
}

// canConfirm is the whole pending→paid decision for a callback: the matching
// rules must pass and the payment must still be pending. Pure for the same
// reason as evaluateCallback.
func canConfirm(p *model.Payment, keys paymentKeys, tolerance float64) bool {
	if ok, _ := evaluateCallback(p, keys, tolerance); !ok {
		return false
	}
	return p.Status == model.PaymentPending
}

// MarkPaidIfMatch applies the pending→paid transition when the payload
// matches. The read-check-write runs in one transaction with a row lock so
// a racing poll or duplicate webhook cannot double-apply. Already-terminal
// payments return false without mutation.
func (s *PaymentService) MarkPaidIfMatch(ctx context.Context, paymentID int64, payload map[string]interface{}) (bool, error) {
	keys := extractPaymentKeys(payload)

	tx, err := s.PaymentRepo.DB.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	p, err := s.PaymentRepo.GetForUpdateTx(ctx, tx, paymentID)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, ErrPaymentNotFound
	}

	if !canConfirm(p, keys, s.Tolerance) {
		// paid is immutable; failed is terminal. A late confirmation is
		// accepted silently, not re-applied.
		return false, nil
	}

	if err := s.PaymentRepo.MarkPaidTx(ctx, tx, paymentID, keys.TxnID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ----------------------------------------------------------------------
// poll path
// ----------------------------------------------------------------------

// pollTransition maps an inquiry result onto the state machine: only a
// pending payment moves, and only to a terminal state.
func pollTransition(current, inquired string) (string, bool) {
	if current != model.PaymentPending {
		return current, false
	}
	if inquired != model.PaymentPaid && inquired != model.PaymentFailed {
		return current, false
	}
	return inquired, true
}

// PollStatus is the fallback when no webhook arrives: ask the gateway and
// apply the same transition discipline. The second return reports whether
// this poll changed the payment, so callers notify observers only on a real
// transition. With no transaction ref yet there is nothing to inquire about,
// so the current status is returned untouched.
func (s *PaymentService) PollStatus(ctx context.Context, orderID int64) (string, bool, error) {
	payment, err := s.PaymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return "", false, err
	}
	if payment == nil {
		return "", false, ErrPaymentNotFound
	}

	if payment.Status == model.PaymentPaid {
		return model.PaymentPaid, false, nil
	}
	if payment.TxnRef == "" {
		return payment.Status, false, nil
	}

	inquired, err := s.Gateway.InquireStatus(ctx, payment.TxnRef)
	if err != nil {
		return "", false, err
	}

	if _, apply := pollTransition(payment.Status, inquired); !apply {
		return payment.Status, false, nil
	}

	tx, err := s.PaymentRepo.DB.Begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback(ctx)

	p, err := s.PaymentRepo.GetForUpdateTx(ctx, tx, payment.PaymentID)
	if err != nil {
		return "", false, err
	}
	if p == nil {
		return "", false, ErrPaymentNotFound
	}

	next, apply := pollTransition(p.Status, inquired)
	if !apply {
		// a webhook won the race; report what it decided
		return p.Status, false, nil
	}

	switch next {
	case model.PaymentPaid:
		err = s.PaymentRepo.MarkPaidTx(ctx, tx, p.PaymentID, "")
	case model.PaymentFailed:
		err = s.PaymentRepo.MarkFailedTx(ctx, tx, p.PaymentID)
	}
	if err != nil {
		return "", false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", false, err
	}
	return next, true, nil
}

// ----------------------------------------------------------------------
// manual confirmation
// ----------------------------------------------------------------------

// ConfirmManually is the staff override: pending→paid with a paid_at stamp.
// Re-pressing on a paid payment is a no-op; a failed payment stays failed.
func (s *PaymentService) ConfirmManually(ctx context.Context, orderID int64) (*model.Payment, error) {
	payment, err := s.PaymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	tx, err := s.PaymentRepo.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := s.PaymentRepo.GetForUpdateTx(ctx, tx, payment.PaymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}

	if p.Status == model.PaymentPending {
		if err := s.PaymentRepo.MarkPaidTx(ctx, tx, p.PaymentID, ""); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return s.PaymentRepo.GetByOrderID(ctx, orderID)
}
