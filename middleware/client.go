package middleware

import (
	"net"
	"net/http"

	eduAuth "github.com/MrEthical07/eduAuth"
)

// ClientInfo attaches the remote IP and User-Agent to the request context.
// Put a trusted proxy middleware (e.g. chi's RealIP) in front of it when
// running behind a load balancer.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := eduAuth.WithClientIP(r.Context(), ip)
		if ua := r.UserAgent(); ua != "" {
			ctx = eduAuth.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
