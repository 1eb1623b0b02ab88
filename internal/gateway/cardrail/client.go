package cardrail

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

// Transfer is the processor's representation of one card-network-ACH
// transfer.
type Transfer struct {
	ID          string
	Status      string
	ReferenceID string
	Raw         map[string]interface{}
}

// TransferPayload is the body of a create-transfer call.
type TransferPayload struct {
	SourceAccountID string
	TargetAccountID string
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	SameDay         bool
	ReferenceID     string
}

// Client is the surface of the processor API the adapter consumes.
type Client interface {
	Authenticate(ctx context.Context, userID, fingerprint string) (string, error)
	CreateTransfer(ctx context.Context, token string, p TransferPayload) (Transfer, error)
	GetTransfer(ctx context.Context, token, externalID string) (Transfer, error)
	FindTransfersByReference(ctx context.Context, token, referenceID string) ([]Transfer, error)
}

// HTTPClient talks to the processor's REST API with a bounded timeout.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger
}

func NewHTTPClient(baseURL string, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

func (c *HTTPClient) Authenticate(ctx context.Context, userID, fingerprint string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"user_id": userID, "fingerprint": fingerprint}
	if err := c.do(ctx, http.MethodPost, "/sessions", "", body, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("session response missing access_token: %w", domain.ErrProcessorUnavailable)
	}
	return out.AccessToken, nil
}

func (c *HTTPClient) CreateTransfer(ctx context.Context, token string, p TransferPayload) (Transfer, error) {
	body := map[string]interface{}{
		"source_account_id": p.SourceAccountID,
		"target_account_id": p.TargetAccountID,
		"amount":            p.Amount.String(),
		"fee":               p.Fee.String(),
		"same_day":          p.SameDay,
		"client_ref":        p.ReferenceID,
	}
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "/transfers", token, body, &out); err != nil {
		return Transfer{}, err
	}
	return transferFromMap(out), nil
}

func (c *HTTPClient) GetTransfer(ctx context.Context, token, externalID string) (Transfer, error) {
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/transfers/"+externalID, token, nil, &out); err != nil {
		return Transfer{}, err
	}
	return transferFromMap(out), nil
}

func (c *HTTPClient) FindTransfersByReference(ctx context.Context, token, referenceID string) ([]Transfer, error) {
	var out struct {
		Transfers []map[string]interface{} `json:"transfers"`
	}
	if err := c.do(ctx, http.MethodGet, "/transfers?client_ref="+referenceID, token, nil, &out); err != nil {
		return nil, err
	}
	transfers := make([]Transfer, 0, len(out.Transfers))
	for _, m := range out.Transfers {
		transfers = append(transfers, transferFromMap(m))
	}
	return transfers, nil
}

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
		req.Header.Set("Authorization", "Bearer "+token)
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

func transferFromMap(m map[string]interface{}) Transfer {
	t := Transfer{Raw: m}
	if id, ok := m["id"].(string); ok {
		t.ID = id
	}
	if status, ok := m["status"].(string); ok {
		t.Status = status
	}
	if ref, ok := m["client_ref"].(string); ok {
		t.ReferenceID = ref
	}
	return t
}
