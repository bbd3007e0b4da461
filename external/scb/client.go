package scb

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config mirrors the SCB knob set from settings; the client never reads the
// environment itself.
type Config struct {
	APIBase      string
	TokenPath    string
	QRCreatePath string
	InquiryPath  string // contains a {txn_ref} placeholder

	ClientID     string
	ClientSecret string
	APIKey       string
	Channel      string

	BillerID string

	Mock bool
}

// QRRequest carries the bill-payment fields for a dynamic QR.
type QRRequest struct {
	Amount float64
	Ref1   string
	Ref2   string
	Ref3   string
}

// QRResult is the normalized create response. Raw holds the request/response
// envelope for the payment's qr_raw audit column.
type QRResult struct {
	TransactionID string
	QRPayload     string
	QRImageBase64 string
	Raw           string
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// Client wraps the SCB Open API: OAuth client-credentials token (cached),
// QR creation, payment inquiry. Mock mode short-circuits all network calls
// with deterministic outputs.
type Client struct {
	cfg  Config
	http *http.Client

	mu    sync.Mutex
	token *cachedToken
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
		},
	}
}

func (c *Client) baseURL() string {
	return strings.TrimRight(c.cfg.APIBase, "/")
}

// getAccessToken returns a cached token, refreshing it when it is within 30
// seconds of expiry so an in-flight request never rides an expiring token.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	if c.cfg.Mock {
		return "mock-token", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.token != nil && c.token.expiresAt.Add(-30*time.Second).After(now) {
		return c.token.accessToken, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+c.cfg.TokenPath, form)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("scb token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("scb token request: status %d: %s", resp.StatusCode, body)
	}

	var j struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   float64 `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return "", fmt.Errorf("scb token response: %w", err)
	}
	if j.AccessToken == "" {
		return "", fmt.Errorf("scb token response missing access_token")
	}
	if j.ExpiresIn == 0 {
		j.ExpiresIn = 3600
	}

	c.token = &cachedToken{
		accessToken: j.AccessToken,
		expiresAt:   now.Add(time.Duration(j.ExpiresIn) * time.Second),
	}
	return j.AccessToken, nil
}

func (c *Client) headers(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("ResourceOwnerId", c.cfg.APIKey)
	req.Header.Set("RequestUId", uuid.NewString())
	req.Header.Set("Channel", c.cfg.Channel)
}

// IssueQR creates a dynamic bill-payment QR for the given references.
// Any non-2xx or malformed response is a hard error; the caller decides
// whether the surrounding order creation survives.
func (c *Client) IssueQR(ctx context.Context, q QRRequest) (*QRResult, error) {
	payload := map[string]interface{}{
		"transactionType":    "PURCHASE",
		"transactionSubType": []string{"BP"},
		"billPayment": map[string]interface{}{
			"paymentAmount": q.Amount,
			"accountTo":     c.cfg.BillerID,
			"ref1":          q.Ref1,
			"ref2":          q.Ref2,
			"ref3":          q.Ref3,
		},
	}

	if c.cfg.Mock {
		return c.mockQR(q, payload), nil
	}

	resp, err := c.postJSON(ctx, c.cfg.QRCreatePath, payload)
	if err != nil {
		return nil, err
	}

	data := dataSection(resp)
	res := &QRResult{
		TransactionID: firstString(data, "transactionId", "transactionRef"),
		QRPayload:     firstString(data, "qrPayload", "deeplinkUrl"),
		QRImageBase64: firstString(data, "qrImageBase64"),
	}

	raw, _ := json.Marshal(map[string]interface{}{"request": payload, "response": resp})
	res.Raw = string(raw)
	return res, nil
}

// InquireStatus asks SCB for the state of a transaction and maps the
// provider vocabulary to pending|paid|failed. Unknown terms come back as
// pending so the caller leaves the payment untouched.
func (c *Client) InquireStatus(ctx context.Context, txnRef string) (string, error) {
	if c.cfg.Mock {
		return "pending", nil
	}

	path := strings.ReplaceAll(c.cfg.InquiryPath, "{txn_ref}", txnRef)
	resp, err := c.getJSON(ctx, path)
	if err != nil {
		return "", err
	}

	data := dataSection(resp)
	raw := strings.ToUpper(firstString(data, "paymentStatus", "status", "transactionStatus"))
	return NormalizeStatus(raw), nil
}

// NormalizeStatus buckets the provider's status vocabulary.
func NormalizeStatus(raw string) string {
	switch strings.ToUpper(raw) {
	case "SUCCESS", "PAID", "COMPLETED":
		return "paid"
	case "FAILED", "CANCELLED", "EXPIRED":
		return "failed"
	default:
		return "pending"
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.headers(req, token)

	return c.do(req)
}

func (c *Client) getJSON(ctx context.Context, path string) (map[string]interface{}, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+path, nil)
	if err != nil {
		return nil, err
	}
	c.headers(req, token)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]interface{}, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scb request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("scb request %s: status %d: %s", req.URL.Path, resp.StatusCode, body)
	}

	var j map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return nil, fmt.Errorf("scb response %s: %w", req.URL.Path, err)
	}
	return j, nil
}

func (c *Client) mockQR(q QRRequest, payload map[string]interface{}) *QRResult {
	qrPayload := fmt.Sprintf("MOCK_SCB_QR::%s/%s/%.2f", q.Ref1, q.Ref3, q.Amount)
	raw, _ := json.Marshal(map[string]interface{}{"request": payload, "mock": true})
	return &QRResult{
		TransactionID: "MOCKTXN-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10],
		QRPayload:     qrPayload,
		// not a real PNG; a stable marker so downstream display code has
		// something to show without network access
		QRImageBase64: base64.StdEncoding.EncodeToString([]byte(qrPayload)),
		Raw:           string(raw),
	}
}

// dataSection returns resp["data"] when present, else the response itself;
// SCB wraps payloads inconsistently across products.
func dataSection(resp map[string]interface{}) map[string]interface{} {
	if d, ok := resp["data"].(map[string]interface{}); ok {
		return d
	}
	return resp
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
