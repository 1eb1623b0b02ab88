package ledgercore

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

// Entry is one ledger entry as the ledger service reports it.
type Entry struct {
	ID          string
	Status      string
	ReferenceID string
	Raw         map[string]interface{}
}

// EntryPayload is the body of a post-entry call.
type EntryPayload struct {
	SourceAccountID string
	TargetAccountID string
	Amount          decimal.Decimal
	ReferenceID     string
}

// Client is the surface of the ledger service the adapter consumes.
type Client interface {
	PostEntry(ctx context.Context, p EntryPayload) (Entry, error)
	GetEntry(ctx context.Context, externalID string) (Entry, error)
	GetEntryByReference(ctx context.Context, referenceID string) (Entry, error)
	ReverseEntry(ctx context.Context, externalID string) (Entry, error)
}

// HTTPClient talks to the internal ledger service.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger
}

func NewHTTPClient(baseURL string, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (c *HTTPClient) PostEntry(ctx context.Context, p EntryPayload) (Entry, error) {
	body := map[string]interface{}{
		"source_account_id": p.SourceAccountID,
		"target_account_id": p.TargetAccountID,
		"amount":            p.Amount.String(),
		"reference_id":      p.ReferenceID,
	}
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "/entries", body, &out); err != nil {
		return Entry{}, err
	}
	return entryFromMap(out), nil
}

func (c *HTTPClient) GetEntry(ctx context.Context, externalID string) (Entry, error) {
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/entries/"+externalID, nil, &out); err != nil {
		return Entry{}, err
	}
	return entryFromMap(out), nil
}

func (c *HTTPClient) GetEntryByReference(ctx context.Context, referenceID string) (Entry, error) {
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/entries/by-reference/"+referenceID, nil, &out); err != nil {
		return Entry{}, err
	}
	return entryFromMap(out), nil
}

func (c *HTTPClient) ReverseEntry(ctx context.Context, externalID string) (Entry, error) {
	var out map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "/entries/"+externalID+"/reverse", nil, &out); err != nil {
		return Entry{}, err
	}
	return entryFromMap(out), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
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

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, domain.ErrProcessorUnavailable)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading body: %v: %w", method, path, err, domain.ErrProcessorUnavailable)
	}

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("ledger call")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrTransactionNotFound)
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

func entryFromMap(m map[string]interface{}) Entry {
	e := Entry{Raw: m}
	if id, ok := m["id"].(string); ok {
		e.ID = id
	}
	if status, ok := m["status"].(string); ok {
		e.Status = status
	}
	if ref, ok := m["reference_id"].(string); ok {
		e.ReferenceID = ref
	}
	return e
}
