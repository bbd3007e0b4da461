package scb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func headerMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestVerifyWebhookSignature(t *testing.T) {
	cfg := WebhookConfig{
		Secret:          "topsecret",
		SignatureHeader: "x-signature",
		TimestampHeader: "x-timestamp",
		Production:      true,
	}
	body := []byte(`{"transactionId":"TXN1","amount":"150.00"}`)
	ts := "1724400000"
	sig := Sign(cfg.Secret, ts, body)

	ok, reason := VerifyWebhookSignature(cfg, headerMap(map[string]string{
		"x-signature": sig,
		"x-timestamp": ts,
	}), body)
	assert.True(t, ok)
	assert.Equal(t, "OK", reason)
}

func TestVerifyWebhookSignature_TamperedBody(t *testing.T) {
	cfg := WebhookConfig{Secret: "topsecret", SignatureHeader: "x-signature", TimestampHeader: "x-timestamp"}
	body := []byte(`{"amount":"150.00"}`)
	sig := Sign(cfg.Secret, "123", body)

	tampered := []byte(`{"amount":"150.01"}`)
	ok, reason := VerifyWebhookSignature(cfg, headerMap(map[string]string{
		"x-signature": sig,
		"x-timestamp": "123",
	}), tampered)
	assert.False(t, ok)
	assert.Equal(t, "invalid signature", reason)
}

func TestVerifyWebhookSignature_TamperedSignature(t *testing.T) {
	cfg := WebhookConfig{Secret: "topsecret", SignatureHeader: "x-signature", TimestampHeader: "x-timestamp"}
	body := []byte(`{"amount":"150.00"}`)
	sig := Sign(cfg.Secret, "123", body)

	// flip one hex digit
	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}

	ok, _ := VerifyWebhookSignature(cfg, headerMap(map[string]string{
		"x-signature": string(flipped),
		"x-timestamp": "123",
	}), body)
	assert.False(t, ok)
}

func TestVerifyWebhookSignature_MissingHeaders(t *testing.T) {
	cfg := WebhookConfig{Secret: "topsecret", SignatureHeader: "x-signature", TimestampHeader: "x-timestamp"}
	body := []byte(`{}`)

	ok, reason := VerifyWebhookSignature(cfg, headerMap(map[string]string{
		"x-timestamp": "123",
	}), body)
	assert.False(t, ok)
	assert.Contains(t, reason, "missing signature header")

	ok, reason = VerifyWebhookSignature(cfg, headerMap(map[string]string{
		"x-signature": "deadbeef",
	}), body)
	assert.False(t, ok)
	assert.Contains(t, reason, "missing timestamp header")
}

func TestVerifyWebhookSignature_NoSecret(t *testing.T) {
	body := []byte(`{}`)

	prod := WebhookConfig{SignatureHeader: "x-signature", TimestampHeader: "x-timestamp", Production: true}
	ok, reason := VerifyWebhookSignature(prod, headerMap(nil), body)
	assert.False(t, ok, "missing secret must reject in production")
	assert.Equal(t, "webhook secret not configured", reason)

	dev := WebhookConfig{SignatureHeader: "x-signature", TimestampHeader: "x-timestamp"}
	ok, reason = VerifyWebhookSignature(dev, headerMap(nil), body)
	assert.True(t, ok)
	assert.Equal(t, "no secret (dev mode)", reason)
}
