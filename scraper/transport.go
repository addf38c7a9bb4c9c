package scraper

import (
	"context"
	"io"
	"net/http"
	"sync"
)

// ctxTransport ties requests issued by the collector to the context of the
// Fetch call that triggered them. colly builds its own http.Request, so the
// caller's context is merged in at the transport layer.
type ctxTransport struct {
	base http.RoundTripper

	mu  sync.Mutex
	ctx context.Context
}

func newCtxTransport(base http.RoundTripper) *ctxTransport {
	return &ctxTransport{base: base}
}

// bind attaches ctx to subsequent round trips and returns a func that
// detaches it.
func (t *ctxTransport) bind(ctx context.Context) func() {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		t.ctx = nil
		t.mu.Unlock()
	}
}

func (t *ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	bound := t.ctx
	t.mu.Unlock()
	if bound == nil {
		return t.base.RoundTrip(req)
	}
	if err := bound.Err(); err != nil {
		return nil, err
	}

	// Derive from the request context so the client timeout still applies.
	merged, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(bound, cancel)
	release := func() {
		stop()
		cancel()
	}

	resp, err := t.base.RoundTrip(req.WithContext(merged))
	if err != nil {
		release()
		if ctxErr := bound.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	resp.Body = &releaseBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

// releaseBody frees the merged context once the body is closed.
type releaseBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releaseBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
