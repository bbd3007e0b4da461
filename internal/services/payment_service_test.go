package services

import (
	"regexp"
	"testing"
	"time"

	"github.com/SonthatQ/qr-restaurant/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPaymentKeys_Aliases(t *testing.T) {
	// canonical SCB names
	keys := extractPaymentKeys(map[string]interface{}{
		"transactionId":   "TXN1",
		"amount":          "150.00",
		"billPaymentRef1": "12345",
		"billPaymentRef3": "SCB",
	})
	assert.Equal(t, "TXN1", keys.TxnID)
	assert.Equal(t, "150.00", keys.Amount)
	assert.Equal(t, "12345", keys.Ref1)
	assert.Equal(t, "SCB", keys.Ref3)

	// snake_case / short alternates
	keys = extractPaymentKeys(map[string]interface{}{
		"transaction_id": "TXN2",
		"ref1":           "999",
	})
	assert.Equal(t, "TXN2", keys.TxnID)
	assert.Equal(t, "999", keys.Ref1)

	// numeric amounts are stringified deterministically
	keys = extractPaymentKeys(map[string]interface{}{"amount": 150.0})
	assert.Equal(t, "150", keys.Amount)
}

func TestComputeDedupKey(t *testing.T) {
	withTxn := map[string]interface{}{"transactionId": "TXN1", "amount": "150.00"}
	sameTxn := map[string]interface{}{"transactionId": "TXN1", "amount": "999.99"}
	assert.Equal(t, ComputeDedupKey(withTxn), ComputeDedupKey(sameTxn),
		"txn id alone drives the key when present")

	byRefs := map[string]interface{}{"ref1": "12345", "amount": "150.00", "ref3": "SCB"}
	otherRefs := map[string]interface{}{"ref1": "12345", "amount": "150.01", "ref3": "SCB"}
	assert.NotEqual(t, ComputeDedupKey(byRefs), ComputeDedupKey(otherRefs))

	// no identifying fields: the whole payload is fingerprinted
	a := map[string]interface{}{"foo": "bar"}
	b := map[string]interface{}{"foo": "baz"}
	assert.Equal(t, ComputeDedupKey(a), ComputeDedupKey(map[string]interface{}{"foo": "bar"}))
	assert.NotEqual(t, ComputeDedupKey(a), ComputeDedupKey(b))

	// fixed-width hex regardless of input
	assert.Len(t, ComputeDedupKey(a), 64)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), ComputeDedupKey(withTxn))
}

func TestEvaluateCallback_ReferenceMismatch(t *testing.T) {
	p := &model.Payment{BillerRef: "12345", Amount: 150.0, Status: model.PaymentPending}

	ok, reason := evaluateCallback(p, paymentKeys{Ref1: "99999"}, 0.01)
	assert.False(t, ok)
	assert.Equal(t, "reference mismatch", reason)

	// missing ref on either side is not a mismatch
	ok, _ = evaluateCallback(p, paymentKeys{}, 0.01)
	assert.True(t, ok)
	ok, _ = evaluateCallback(&model.Payment{Amount: 150.0}, paymentKeys{Ref1: "99999"}, 0.01)
	assert.True(t, ok)
}

func TestEvaluateCallback_AmountTolerance(t *testing.T) {
	p := &model.Payment{Amount: 150.00, Status: model.PaymentPending}

	cases := []struct {
		amount string
		want   bool
	}{
		{"150.00", true},
		{"150.01", true},  // at tolerance
		{"149.99", true},  // at tolerance
		{"150.02", false}, // beyond
		{"149.98", false},
		{"151.00", false},
		{"", true},           // absent amount: not checked
		{"not-a-number", true}, // unparsable: treated as absent
	}
	for _, tc := range cases {
		ok, _ := evaluateCallback(p, paymentKeys{Amount: tc.amount}, 0.01)
		assert.Equal(t, tc.want, ok, "amount=%q", tc.amount)
	}
}

func TestEvaluateCallback_ConfigurableTolerance(t *testing.T) {
	p := &model.Payment{Amount: 150.00}

	ok, _ := evaluateCallback(p, paymentKeys{Amount: "150.40"}, 0.5)
	assert.True(t, ok)
	ok, _ = evaluateCallback(p, paymentKeys{Amount: "150.40"}, 0.01)
	assert.False(t, ok)
}

func TestCanConfirmTerminalStates(t *testing.T) {
	keys := paymentKeys{Amount: "150.00"}

	pending := &model.Payment{Amount: 150.00, Status: model.PaymentPending}
	assert.True(t, canConfirm(pending, keys, 0.01))

	paid := &model.Payment{Amount: 150.00, Status: model.PaymentPaid}
	assert.False(t, canConfirm(paid, keys, 0.01), "paid is immutable")

	failed := &model.Payment{Amount: 150.00, Status: model.PaymentFailed}
	assert.False(t, canConfirm(failed, keys, 0.01), "failed is terminal")

	// matching rules still apply to pending payments
	assert.False(t, canConfirm(pending, paymentKeys{Amount: "200.00"}, 0.01))
}

func TestPollTransition(t *testing.T) {
	cases := []struct {
		current  string
		inquired string
		next     string
		apply    bool
	}{
		{"pending", "paid", "paid", true},
		{"pending", "failed", "failed", true},
		{"pending", "pending", "pending", false},
		{"paid", "paid", "paid", false},
		{"paid", "failed", "paid", false},
		{"failed", "paid", "failed", false},
	}
	for _, tc := range cases {
		next, apply := pollTransition(tc.current, tc.inquired)
		assert.Equal(t, tc.next, next, "%s + %s", tc.current, tc.inquired)
		assert.Equal(t, tc.apply, apply, "%s + %s", tc.current, tc.inquired)
	}
}

func TestQRRefs(t *testing.T) {
	s := &PaymentService{Ref3Prefix: "SCB"}
	now := time.Unix(1724400000, 0).UTC()

	ref1, ref2, ref3 := s.qrRefs(42, "TTABLE1-1724400000-ABC123", now)
	assert.Equal(t, "11724400000123", ref1, "digits-only projection of the invoice ref")
	assert.Equal(t, "1724400000", ref2)
	assert.Equal(t, "SCB", ref3)

	// no digits in the invoice ref: falls back to the order id
	ref1, _, _ = s.qrRefs(42, "NODIGITSHERE", now)
	assert.Equal(t, "42", ref1)

	// field-width limits
	long := &PaymentService{Ref3Prefix: "VERYLONGPREFIX"}
	_, _, ref3 = long.qrRefs(1, "1", now)
	assert.Len(t, ref3, 10)

	ref1, _, _ = s.qrRefs(1, "999999999999999999999999999", now)
	assert.Len(t, ref1, 20)
}

func TestMakeInvoiceRef(t *testing.T) {
	ref := makeInvoiceRef("table1token-demo", time.Unix(1724400000, 0).UTC())
	require.Regexp(t, regexp.MustCompile(`^TTABLE1-1724400000-[0-9A-F]{6}$`), ref)
}
