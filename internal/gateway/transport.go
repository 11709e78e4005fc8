package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/naka-gawa/org-stats/internal/cache"
	"github.com/naka-gawa/org-stats/internal/ratelimit"
	"github.com/rs/zerolog"
)

// cachingTransport answers GET requests from the response cache and stores
// every fresh 200 response. Failed cache I/O is logged and ignored.
type cachingTransport struct {
	next  http.RoundTripper
	store *cache.Store
	log   zerolog.Logger
}

func (t *cachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}

	key := cache.Key(req.Method, req.URL)
	entry, ok, err := t.store.Get(key)
	if err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("cache read failed, falling back to network")
	}
	if ok {
		t.log.Debug().Str("key", key).Msg("cache hit")
		return replay(req, entry), nil
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if err := t.store.Put(key, body, resp.Header); err != nil {
		t.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return resp, nil
}

func replay(req *http.Request, e cache.Entry) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Payload)),
		ContentLength: int64(len(e.Payload)),
		Request:       req,
	}
}

// rateLimitTransport reserves quota from the limiter before each request and
// feeds the returned rate headers back into it. A request rejected because the
// primary quota ran out is sent once more after the limiter has waited.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := t.limiter.Acquire(req.Context()); err != nil {
			return nil, err
		}
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		remaining, reset, ok := ratelimit.ParseHeaders(resp.Header)
		if !ok {
			return resp, nil
		}
		t.limiter.Update(remaining, reset)
		stripRateHeaders(resp.Header)
		t.log.Trace().
			Int("remaining", remaining).
			Time("reset", reset).
			Str("path", req.URL.Path).
			Msg("rate limit updated")

		if attempt > 0 || remaining > 0 || !quotaRejected(resp.StatusCode) || req.Body != nil {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		t.log.Warn().Str("path", req.URL.Path).Msg("primary rate limit hit, retrying after reset")
	}
}

// stripRateHeaders hides the quota from go-github once the limiter has seen it.
// go-github would otherwise remember an exhausted quota and reject later calls
// itself instead of letting Acquire wait for the reset.
func stripRateHeaders(h http.Header) {
	for _, name := range rateHeaders {
		h.Del(name)
	}
}

var rateHeaders = []string{
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"X-RateLimit-Used",
	"X-RateLimit-Resource",
}

func quotaRejected(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests
}

// statusText renders an HTTP status the way failure reasons report it.
func statusText(code int) string {
	return strconv.Itoa(code)
}

// ErrRequestTimeout is returned when a single HTTP exchange outlives its timeout.
var ErrRequestTimeout = errors.New("request timed out")

// timeoutTransport bounds one exchange, body included. It sits below the rate
// limit waiters so time spent waiting for quota is never counted.
type timeoutTransport struct {
	next    http.RoundTripper
	timeout time.Duration
}

func (t *timeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	defer cancel()

	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err == nil {
		var body []byte
		body, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && req.Context().Err() == nil {
			return nil, fmt.Errorf("%s %s after %s: %w", req.Method, req.URL.Path, t.timeout, ErrRequestTimeout)
		}
		return nil, err
	}
	return resp, nil
}

func baseTransport(insecure bool) http.RoundTripper {
	if !insecure {
		return http.DefaultTransport
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	// opt-in, for Enterprise Server instances behind self-signed certificates
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	return tr
}
