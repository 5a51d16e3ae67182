package syncer

import (
	"context"
	"net/http"
	"time"
)

// Connectivity answers "is the server reachable right now". When it says no,
// the engine goes offline without attempting the reconciliation call.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// HTTPProbe checks the server's healthcheck with a short timeout.
type HTTPProbe struct {
	base   string
	client *http.Client
}

func NewHTTPProbe(base string) *HTTPProbe {
	return &HTTPProbe{
		base:   base,
		client: &http.Client{Timeout: 3 * time.Second},
	}
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/healthcheck", nil)
	if err != nil {
		return false
	}
	res, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return res.StatusCode < 500
}

// Static is a fixed connectivity answer, used in tests and by agents that
// want to force offline mode.
type Static bool

func (s Static) Online(context.Context) bool { return bool(s) }
