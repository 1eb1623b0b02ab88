package achwire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rteixeira/payrail/internal/domain"
)

// Transaction is the processor's representation of one transfer.
type Transaction struct {
	ID          string
	Status      string
	ReferenceID string
	Raw         map[string]interface{}
}

// CreatePayload is the body of a create-transaction call. Fee is the
// adapter-static negative fee amount attached to the transfer.
type CreatePayload struct {
	FromNodeID  string
	ToNodeID    string
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	SameDay     bool
	ReferenceID string
}

// Client is the narrow surface of the processor API the adapter consumes.
// Tests substitute a mock; production uses HTTPClient.
type Client interface {
	Authenticate(ctx context.Context, userID, fingerprint string) (string, error)
	CreateTransaction(ctx context.Context, token string, p CreatePayload) (Transaction, error)
	GetTransaction(ctx context.Context, token, externalID string) (Transaction, error)
	ListTransactions(ctx context.Context, token, nodeID string) ([]Transaction, error)
	CancelTransaction(ctx context.Context, token, externalID string) (Transaction, error)
}

// HTTPClient talks to the processor's REST API.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger
}

// NewHTTPClient creates a client with a bounded request timeout.
func NewHTTPClient(baseURL string, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

func (c *HTTPClient) Authenticate(ctx context.Context, userID, fingerprint string) (string, error) {
	body := map[string]string{"user_id": userID, "fingerprint": fingerprint}
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "/auth", "", body, &out); err != nil {
		return "", err
	}
	token, _ := out["oauth_key"].(string)
	if token == "" {
		return "", fmt.Errorf("auth response missing oauth_key: %w", domain.ErrProcessorUnavailable)
	}
	return token, nil
}

func (c *HTTPClient) CreateTransaction(ctx context.Context, token string, p CreatePayload) (Transaction, error) {
	speed := "STANDARD"
	if p.SameDay {
		speed = "SAME_DAY"
	}
	body := map[string]interface{}{
		"from_node_id": p.FromNodeID,
		"to_node_id":   p.ToNodeID,
		"amount":       p.Amount.String(),
		"fee":          p.Fee.String(),
		"speed":        speed,
		"supp_id":      p.ReferenceID,
	}
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "/trans", token, body, &out); err != nil {
		return Transaction{}, err
	}
	return txFromMap(out), nil
}

func (c *HTTPClient) GetTransaction(ctx context.Context, token, externalID string) (Transaction, error) {
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/trans/"+externalID, token, nil, &out); err != nil {
		return Transaction{}, err
	}
	return txFromMap(out), nil
}

func (c *HTTPClient) ListTransactions(ctx context.Context, token, nodeID string) ([]Transaction, error) {
	path := "/trans"
	if nodeID != "" {
		path = "/nodes/" + nodeID + "/trans"
	}
	var out struct {
		Trans []map[string]interface{} `json:"trans"`
	}
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	txs := make([]Transaction, 0, len(out.Trans))
	for _, m := range out.Trans {
		txs = append(txs, txFromMap(m))
	}
	return txs, nil
}

func (c *HTTPClient) CancelTransaction(ctx context.Context, token, externalID string) (Transaction, error) {
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodDelete, "/trans/"+externalID, token, nil, &out); err != nil {
		return Transaction{}, err
	}
	return txFromMap(out), nil
}

// do performs one request and classifies the response into the shared error
// taxonomy so the adapter branches with errors.Is.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Gateway-OAuth", token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, domain.ErrProcessorUnavailable)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading body: %v: %w", method, path, err, domain.ErrProcessorUnavailable)
	}

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("processor call")

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrSessionInvalid)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrTransactionNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrUpstreamThrottled)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s %s: %s: %w", method, path, string(payload), domain.ErrInvalidPayload)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, domain.ErrProcessorUnavailable)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s %s: decoding body: %v: %w", method, path, err, domain.ErrProcessorUnavailable)
		}
	}
	return nil
}

// txFromMap extracts the fields the adapter needs and keeps the full payload
// as the opaque diagnostic outcome.
func txFromMap(m map[string]interface{}) Transaction {
	tx := Transaction{Raw: m}
	if id, ok := m["_id"].(string); ok {
		tx.ID = id
	}
	if supp, ok := m["supp_id"].(string); ok {
		tx.ReferenceID = supp
	}
	if recent, ok := m["recent_status"].(map[string]interface{}); ok {
		if status, ok := recent["status"].(string); ok {
			tx.Status = status
		}
	}
	return tx
}
