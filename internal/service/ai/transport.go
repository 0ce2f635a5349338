package ai

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// callRecord records what the HTTP layer saw during one model call, so failures
// can be classified without depending on each SDK's error types.
// Each call gets exactly one upstream attempt: SDK retries are refused.
type callRecord struct {
	mu     sync.Mutex
	sent   bool
	status int
	err    error
}

type callRecordKey struct{}

func withCallRecord(ctx context.Context) (context.Context, *callRecord) {
	p := &callRecord{}
	return context.WithValue(ctx, callRecordKey{}, p), p
}

func (p *callRecord) record(resp *http.Response, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.err = err
		return
	}
	if resp != nil {
		p.status = resp.StatusCode
	}
}

// begin reports whether this is the first attempt under p.
func (p *callRecord) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent {
		return false
	}
	p.sent = true
	return true
}

// refused is what a repeated attempt gets instead of a second request.
func (p *callRecord) refused() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	return fmt.Errorf("retry refused: upstream already answered %d", p.status)
}

func (p *callRecord) result() (int, error) {
	if p == nil {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.err
}

type recordingTransport struct {
	base http.RoundTripper
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	p, ok := req.Context().Value(callRecordKey{}).(*callRecord)
	if !ok {
		return t.base.RoundTrip(req)
	}
	if !p.begin() {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, p.refused()
	}
	resp, err := t.base.RoundTrip(req)
	p.record(resp, err)
	if resp != nil {
		// honoured by the Anthropic client, which otherwise retries 5xx and 429
		resp.Header.Set("X-Should-Retry", "false")
	}
	return resp, err
}

// newHTTPClient wraps base with the probing transport and the request timeout.
func newHTTPClient(base http.RoundTripper, timeout time.Duration) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &recordingTransport{base: base},
		Timeout:   timeout,
	}
}
