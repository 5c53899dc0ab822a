package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "convertviral/pkg/domain-errors"
	"convertviral/pkg/platform/httputil"
	"convertviral/pkg/requestcontext"
)

var rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "convertviral_ratelimit_rejected_total",
	Help: "Requests refused by the per-IP write limiter",
})

// WritesOption configures the Writes middleware.
type WritesOption func(*writesConfig)

type writesConfig struct {
	trusted []netip.Prefix
}

// WithTrustedProxies lets X-Forwarded-For name the client, but only when the
// socket peer falls inside one of the prefixes.
func WithTrustedProxies(prefixes ...netip.Prefix) WritesOption {
	return func(c *writesConfig) {
		c.trusted = append(c.trusted, prefixes...)
	}
}

// Writes limits POST, PUT, PATCH and DELETE requests per client IP. Reads
// pass through untouched. The client is the socket peer unless that peer is a
// trusted proxy.
func Writes(limiter *Limiter, logger *slog.Logger, opts ...WritesOption) func(http.Handler) http.Handler {
	cfg := &writesConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			result := limiter.Allow(cfg.clientKey(r))
			addHeaders(w, result)
			if !result.Allowed {
				rejectedTotal.Inc()
				logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "Too many requests from this IP address. Please try again later."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey walks X-Forwarded-For from the right, skipping trusted hops, so a
// client cannot pick its own key by prepending entries.
func (c *writesConfig) clientKey(r *http.Request) string {
	peer := peerAddr(r.RemoteAddr)
	if len(c.trusted) == 0 || !c.isTrusted(peer) {
		return peer
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !c.isTrusted(hop) {
			return hop
		}
	}
	return peer
}

func (c *writesConfig) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func addHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
