package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/insight"
)

// HTTPIndexer talks to a search engine over its document REST API:
// PUT /indexes/{type}/documents/{id} to upsert, DELETE to remove.
type HTTPIndexer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPIndexer(baseURL string, timeout time.Duration) *HTTPIndexer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPIndexer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPIndexer) docURL(indexType, documentID string) string {
	return fmt.Sprintf("%s/indexes/%s/documents/%s",
		h.baseURL, url.PathEscape(indexType), url.PathEscape(documentID))
}

func (h *HTTPIndexer) Index(ctx context.Context, indexType, documentID string, document map[string]interface{}) error {
	body, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("%w: %v", insight.ErrMalformed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.docURL(indexType, documentID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req, nil)
}

func (h *HTTPIndexer) Delete(ctx context.Context, indexType, documentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, h.docURL(indexType, documentID), nil)
	if err != nil {
		return err
	}
	// deleting an absent document is a no-op, not an error
	return h.do(req, map[int]bool{http.StatusNotFound: true})
}

func (h *HTTPIndexer) do(req *http.Request, okStatus map[int]bool) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if okStatus[resp.StatusCode] {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// client errors will not heal with retries
		return fmt.Errorf("%w: index returned %d: %s", insight.ErrMalformed, resp.StatusCode, msg)
	}
	return fmt.Errorf("index returned %d: %s", resp.StatusCode, msg)
}
