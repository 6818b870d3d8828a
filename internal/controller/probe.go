package controller

import (
	"context"
	"net/http"
	"time"
)

// HTTPDoer allows tests to stub HTTP transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Probe answers "is the network reachable right now" with a
// timeout-bounded GET. Any HTTP response counts as reachable; only
// transport failures and timeouts count against it.
type Probe struct {
	url     string
	timeout time.Duration
	client  HTTPDoer
}

// NewProbe creates a probe. A nil doer uses a default client.
func NewProbe(url string, timeout time.Duration, doer HTTPDoer) *Probe {
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &Probe{url: url, timeout: timeout, client: doer}
}

// Online reports external connectivity.
func (p *Probe) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
