package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/platform/logger"
)

// Client is the HTTP transport to the reconciliation service.
type Client struct {
	base string
	http *http.Client
	log  *logger.Logger
}

func NewClient(base string, baseLog *logger.Logger) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  baseLog.With("component", "SyncClient"),
	}
}

func (c *Client) Sync(ctx context.Context, req domain.SyncRequest) (*domain.SyncResponse, error) {
	var out domain.SyncResponse
	if err := c.postJSON(ctx, "/api/offline-sync", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateAudit(ctx context.Context, req domain.CreateAuditRequest) (*domain.AuditSnapshot, error) {
	var out domain.AuditSnapshot
	if err := c.postJSON(ctx, "/api/audits", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchReference(ctx context.Context) (*domain.ReferenceData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/reference", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reference fetch: server responded %d", res.StatusCode)
	}
	var out domain.ReferenceData
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("reference fetch: decode: %w", err)
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%s: server responded %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
