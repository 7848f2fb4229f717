package httpcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// retryDelays mirrors pip's own backoff schedule (0.25 * 2**(n-1) seconds,
// at most five retries after the first attempt) rather than urllib3's full jittered
// implementation, which is more generality than a single-process resolver
// needs.
var retryDelays = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
}

// retryableStatus are the response codes pip's own session layer retries,
// copied from pip/_internal/network/session.py.
var retryableStatus = map[int]bool{500: true, 503: true, 520: true, 527: true}

// statusKey is the context key under which RoundTrip records the Status
// of the exchange it just performed, for tests and diagnostics.
type statusKey struct{}

// WithStatusRecorder returns a context that, when used on a request sent
// through a Transport, causes the resulting Status to be written to *s.
func WithStatusRecorder(ctx context.Context, s *Status) context.Context {
	return context.WithValue(ctx, statusKey{}, s)
}

func record(ctx context.Context, s Status) {
	if p, ok := ctx.Value(statusKey{}).(*Status); ok {
		*p = s
	}
}

// Transport is an http.RoundTripper that serves cached, fresh responses
// directly, revalidates stale-but-validatable ones with a conditional GET,
// and otherwise performs the request and fills the cache. Concurrent
// requests for the same key collapse onto a single in-flight fetch via
// singleflight, so N simultaneous callers asking for the same URL produce
// exactly one network round trip.
type Transport struct {
	Cache     *Cache
	Transport http.RoundTripper // underlying transport; defaults to http.DefaultTransport

	group singleflight.Group
}

func (t *Transport) base() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		record(req.Context(), StatusUncacheable)
		return t.doWithRetry(req)
	}

	cached, hit := t.Cache.load(req.Method, req.URL.String())
	if !hit {
		return t.fetchAndFill(req)
	}

	switch cached.Policy.freshnessAt(time.Now()) {
	case fresh:
		record(req.Context(), StatusFresh)
		return cached.toResponse(req), nil
	case staleRevalidatable:
		revalidate := req.Clone(req.Context())
		cached.Policy.ApplyConditionalHeaders(revalidate)
		resp, err := t.fetchSingleflight(revalidate)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotModified {
			resp.Body.Close()
			newPolicy := cached.Policy
			newPolicy.ResponseTime = time.Now()
			e := entry{Policy: newPolicy, StatusCode: cached.StatusCode, Header: cached.Header, Body: cached.Body}
			if err := t.Cache.store(req.Method, req.URL.String(), e); err != nil {
				return nil, err
			}
			record(req.Context(), StatusStaleButValidated)
			return e.toResponse(req), nil
		}
		record(req.Context(), StatusStaleAndChanged)
		return t.fillFromResponse(req, resp)
	default: // staleNoValidator, or no freshness info at all
		return t.fetchAndFill(req)
	}
}

// fetchAndFill performs an unconditional request, then either fills the
// cache (if storable) or returns the body uncached.
func (t *Transport) fetchAndFill(req *http.Request) (*http.Response, error) {
	resp, err := t.fetchSingleflight(req)
	if err != nil {
		return nil, err
	}
	return t.fillFromResponse(req, resp)
}

func (t *Transport) fillFromResponse(req *http.Request, resp *http.Response) (*http.Response, error) {
	now := time.Now()
	policy := NewPolicy(resp, now)
	body, err := readAllBody(resp)
	if err != nil {
		return nil, err
	}
	if !policy.IsStorable() {
		record(req.Context(), StatusUncacheable)
		return rebuild(resp.StatusCode, resp.Header, body), nil
	}
	e := entry{Policy: policy, StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	if err := t.Cache.store(req.Method, req.URL.String(), e); err != nil {
		return nil, err
	}
	record(req.Context(), StatusMiss)
	return e.toResponse(req), nil
}

// rawResponse is what fetchSingleflight's group.Do shares across every
// caller racing on the same key: a fully drained, immutable response body,
// never a live io.Reader. singleflight hands the exact same value to every
// waiter, and concurrent reads through a shared stateful reader would
// race; a byte slice is safe for concurrent read-only access.
type rawResponse struct {
	statusCode int
	header     http.Header
	body       []byte
}

// fetchSingleflight performs req.Method/req.URL through the base transport
// exactly once across all callers racing on the same key, with retry on
// transient server errors.
func (t *Transport) fetchSingleflight(req *http.Request) (*http.Response, error) {
	key := req.Method + " " + req.URL.String()
	v, err, _ := t.group.Do(key, func() (any, error) {
		resp, err := t.doWithRetry(req)
		if err != nil {
			return nil, err
		}
		body, err := readAllBody(resp)
		if err != nil {
			return nil, err
		}
		return rawResponse{statusCode: resp.StatusCode, header: resp.Header.Clone(), body: body}, nil
	})
	if err != nil {
		return nil, err
	}
	raw := v.(rawResponse)
	return rebuild(raw.statusCode, raw.header, raw.body), nil
}

// doWithRetry performs req through the base transport, retrying on the
// handful of status codes pip's own session layer treats as transient.
func (t *Transport) doWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := t.base().RoundTrip(req)
		if err == nil && !retryableStatus[resp.StatusCode] {
			return resp, nil
		}
		if err == nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("httpcache: %s %s: retryable status %d", req.Method, req.URL, resp.StatusCode)
		} else {
			lastErr = err
		}
		if attempt >= len(retryDelays) {
			return nil, lastErr
		}
		select {
		case <-time.After(retryDelays[attempt]):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
}

func (e entry) toResponse(req *http.Request) *http.Response {
	return rebuildRequest(req, e.StatusCode, e.Header, e.Body)
}

func rebuild(statusCode int, header http.Header, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    statusCode,
		Status:        http.StatusText(statusCode),
		Header:        header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func rebuildRequest(req *http.Request, statusCode int, header http.Header, body []byte) *http.Response {
	resp := rebuild(statusCode, header, body)
	resp.Request = req
	resp.Proto = "HTTP/1.1"
	resp.ProtoMajor, resp.ProtoMinor = 1, 1
	return resp
}
