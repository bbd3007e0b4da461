package scb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(base string) Config {
	return Config{
		APIBase:      base,
		TokenPath:    "/oauth/token",
		QRCreatePath: "/qr/create",
		InquiryPath:  "/payments/{txn_ref}",
		ClientID:     "cid",
		ClientSecret: "csecret",
		APIKey:       "apikey",
		Channel:      "scbeasy",
		BillerID:     "0123456789012",
	}
}

func TestGetAccessToken_Cached(t *testing.T) {
	var tokenCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			atomic.AddInt32(&tokenCalls, 1)
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "cid", user)
			assert.Equal(t, "csecret", pass)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok-1",
				"expires_in":   3600,
			})
		case "/payments/TXN1":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			assert.Equal(t, "apikey", r.Header.Get("ResourceOwnerId"))
			assert.NotEmpty(t, r.Header.Get("RequestUId"))
			assert.Equal(t, "scbeasy", r.Header.Get("Channel"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"paymentStatus": "PENDING"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))

	for i := 0; i < 3; i++ {
		st, err := c.InquireStatus(context.Background(), "TXN1")
		require.NoError(t, err)
		assert.Equal(t, "pending", st)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls), "token must be fetched once and cached")
}

func TestGetAccessToken_EarlyRefresh(t *testing.T) {
	var tokenCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			atomic.AddInt32(&tokenCalls, 1)
			// expires inside the 30s skew window, so every call refreshes
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok",
				"expires_in":   10,
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"paymentStatus": "PENDING"}})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.InquireStatus(context.Background(), "A")
	require.NoError(t, err)
	_, err = c.InquireStatus(context.Background(), "A")
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls))
}

func TestIssueQR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
		case "/qr/create":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			bp := body["billPayment"].(map[string]interface{})
			assert.Equal(t, 150.0, bp["paymentAmount"])
			assert.Equal(t, "0123456789012", bp["accountTo"])
			assert.Equal(t, "12345", bp["ref1"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "SUCCESS",
				"data": map[string]interface{}{
					"transactionId": "TXN-9",
					"qrPayload":     "000201TH...",
					"qrImageBase64": "aGVsbG8=",
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	res, err := c.IssueQR(context.Background(), QRRequest{Amount: 150.0, Ref1: "12345", Ref2: "999", Ref3: "SCB"})
	require.NoError(t, err)
	assert.Equal(t, "TXN-9", res.TransactionID)
	assert.Equal(t, "000201TH...", res.QRPayload)
	assert.Equal(t, "aGVsbG8=", res.QRImageBase64)
	assert.Contains(t, res.Raw, `"request"`)
	assert.Contains(t, res.Raw, `"response"`)
}

func TestIssueQR_HardFailureOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.IssueQR(context.Background(), QRRequest{Amount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestIssueQR_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.IssueQR(context.Background(), QRRequest{Amount: 1})
	require.Error(t, err)
}

func TestMockModeNeverDials(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1") // would fail instantly if dialed
	cfg.Mock = true
	c := NewClient(cfg)

	res, err := c.IssueQR(context.Background(), QRRequest{Amount: 60, Ref1: "123", Ref3: "SCB"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.TransactionID, "MOCKTXN-"))
	assert.Contains(t, res.QRPayload, "MOCK_SCB_QR::")
	assert.NotEmpty(t, res.QRImageBase64)

	st, err := c.InquireStatus(context.Background(), "whatever")
	require.NoError(t, err)
	assert.Equal(t, "pending", st)
}

func TestNormalizeStatus(t *testing.T) {
	for raw, want := range map[string]string{
		"SUCCESS":    "paid",
		"PAID":       "paid",
		"COMPLETED":  "paid",
		"FAILED":     "failed",
		"CANCELLED":  "failed",
		"EXPIRED":    "failed",
		"PENDING":    "pending",
		"PROCESSING": "pending",
		"":           "pending",
	} {
		assert.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
}
