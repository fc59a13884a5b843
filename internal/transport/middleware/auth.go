package middleware

import (
	"net"
	"net/http"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/pkg/logger"
)

// ClientContext attaches the caller's network metadata for the audit trail.
// Place it after chi's RealIP so proxied addresses are honoured.
func ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		ctx := internal.ContextWithClient(r.Context(), internal.ClientInfo{
			IPAddress: ip,
			UserAgent: r.UserAgent(),
		})
		ctx = logger.With(ctx, "client_ip", ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
