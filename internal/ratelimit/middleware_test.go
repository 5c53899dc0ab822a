package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"convertviral/internal/platform/logger"
)

func serve(h http.Handler, method, ip string, forwardedFor ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/consent/record", nil)
	req.RemoteAddr = ip + ":40000"
	for _, f := range forwardedFor {
		req.Header.Add("X-Forwarded-For", f)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestWritesMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("reads are not limited", func(t *testing.T) {
		l, _ := newTestLimiter(1)
		h := Writes(l, logger.Discard())(ok)
		for range 3 {
			rr := serve(h, http.MethodGet, "10.0.0.1")
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("writes carry limit headers", func(t *testing.T) {
		l, clock := newTestLimiter(2)
		h := Writes(l, logger.Discard())(ok)
		rr := serve(h, http.MethodPost, "10.0.0.1")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, strconv.FormatInt(clock.now.Add(time.Minute).Unix(), 10), rr.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("exceeded writes get 429", func(t *testing.T) {
		l, clock := newTestLimiter(1)
		h := Writes(l, logger.Discard())(ok)
		assert.Equal(t, http.StatusOK, serve(h, http.MethodDelete, "10.0.0.1").Code)
		clock.advance(20 * time.Second)

		rr := serve(h, http.MethodPost, "10.0.0.1")
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "40", rr.Header().Get("Retry-After"))
		assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
		assert.Contains(t, rr.Body.String(), `"rate_limited"`)

		assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "10.0.0.2").Code)
	})

	t.Run("forwarded header from an untrusted peer is ignored", func(t *testing.T) {
		l, _ := newTestLimiter(1)
		h := Writes(l, logger.Discard())(ok)
		codes := make([]int, 0, 20)
		for i := range 20 {
			codes = append(codes, serve(h, http.MethodPost, "198.51.100.9", fmt.Sprintf("203.0.113.%d", i+1)).Code)
		}
		assert.Equal(t, http.StatusOK, codes[0])
		for _, code := range codes[1:] {
			assert.Equal(t, http.StatusTooManyRequests, code)
		}
	})

	t.Run("trusted proxy forwards the client address", func(t *testing.T) {
		l, _ := newTestLimiter(1)
		h := Writes(l, logger.Discard(), WithTrustedProxies(netip.MustParsePrefix("10.0.0.0/8")))(ok)

		assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "10.1.2.3", "203.0.113.1").Code)
		assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "10.1.2.3", "203.0.113.2").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodPost, "10.9.9.9", "203.0.113.1").Code)
	})

	t.Run("spoofed leading hops behind a trusted proxy are ignored", func(t *testing.T) {
		l, _ := newTestLimiter(1)
		h := Writes(l, logger.Discard(), WithTrustedProxies(netip.MustParsePrefix("10.0.0.0/8")))(ok)

		assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "10.1.2.3", "1.1.1.1, 203.0.113.5").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodPost, "10.1.2.3", "2.2.2.2, 203.0.113.5").Code)
	})

	t.Run("trusted peer without forwarded header is keyed on itself", func(t *testing.T) {
		l, _ := newTestLimiter(1)
		h := Writes(l, logger.Discard(), WithTrustedProxies(netip.MustParsePrefix("10.0.0.0/8")))(ok)

		assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "10.1.2.3").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodPost, "10.1.2.3").Code)
	})
}
