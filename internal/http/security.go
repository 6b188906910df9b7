package http

import (
	"net/http"
	"net/netip"
	"sync/atomic"

	"github.com/go-chi/chi/v5/middleware"

	applog "expensemanager/internal/log"
)

// securityMetrics tracks requests the API turned away.
type securityMetrics struct {
	rateLimitHits    int64
	unroutedRequests int64
}

// trustedProxies may set forwarding headers on behalf of their clients.
var trustedProxies = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

func fromTrustedProxy(r *http.Request) bool {
	addr, err := netip.ParseAddr(applog.ClientIP(r))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// forwardedClient applies chi's RealIP to requests relayed by a trusted
// proxy. Anyone else keeps their socket address, so a client cannot pick its
// own rate limit key.
func forwardedClient(next http.Handler) http.Handler {
	relayed := middleware.RealIP(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fromTrustedProxy(r) {
			relayed.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// echoRequestID returns the id assigned by middleware.RequestID to the caller.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets the response headers every reply carries.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects clients that exhausted their token bucket.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := applog.ClientIP(r)
		if !s.limiter.allow(clientIP, s.metrics) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// The API has a closed set of routes; anything else is a scan or a stale
// client and gets counted.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.countUnrouted(r)
	writeError(w, http.StatusNotFound, "not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.countUnrouted(r)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) countUnrouted(r *http.Request) {
	atomic.AddInt64(&s.metrics.unroutedRequests, 1)
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Unrouted request",
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path,
		applog.FieldClientIP, applog.ClientIP(r))
}
