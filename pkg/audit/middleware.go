package audit

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const clientInfoKey contextKey = "audit_client_info"

// ClientInfo is the optional client metadata attached to audit entries.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// WithClientInfo returns a copy of ctx carrying info.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey, info)
}

// ClientInfoFromContext returns the client metadata stored in ctx, or the
// zero value when none was attached.
func ClientInfoFromContext(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoKey).(ClientInfo)
	return info
}

// ClientInfoMiddleware records the caller's address and user agent in the
// request context. Mount it after chi's RealIP middleware so RemoteAddr
// reflects forwarded headers.
func ClientInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := ClientInfo{
			IP:        remoteHost(r.RemoteAddr),
			UserAgent: r.UserAgent(),
		}
		next.ServeHTTP(w, r.WithContext(WithClientInfo(r.Context(), info)))
	})
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
