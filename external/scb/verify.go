package scb

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// WebhookConfig is what signature verification needs; kept separate from
// Config so verification stays a pure function over explicit inputs.
type WebhookConfig struct {
	Secret          string
	SignatureHeader string
	TimestampHeader string
	Production      bool
}

// VerifyWebhookSignature checks an inbound callback before any state is
// touched. The scheme is HMAC-SHA-256 over "{timestamp}.{body}", hex
// encoded, compared in constant time. headerGet abstracts the transport
// headers so the function is fuzzable without an HTTP request.
//
// A missing secret is accepted (with a warning reason) only outside
// production; in production it is an unconditional reject.
func VerifyWebhookSignature(cfg WebhookConfig, headerGet func(string) string, rawBody []byte) (bool, string) {
	if cfg.Secret == "" {
		if cfg.Production {
			return false, "webhook secret not configured"
		}
		return true, "no secret (dev mode)"
	}

	signature := headerGet(cfg.SignatureHeader)
	ts := headerGet(cfg.TimestampHeader)

	if signature == "" {
		return false, fmt.Sprintf("missing signature header: %s", cfg.SignatureHeader)
	}
	if ts == "" {
		return false, fmt.Sprintf("missing timestamp header: %s", cfg.TimestampHeader)
	}

	mac := hmac.New(sha256.New, []byte(cfg.Secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return false, "invalid signature"
	}
	return true, "OK"
}

// Sign produces the signature a caller (or test) would attach to a webhook
// for the given timestamp and body.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
