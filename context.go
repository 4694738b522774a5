package eduAuth

import "context"

// clientInfo describes the HTTP caller for audit events.
type clientInfo struct {
	ip        string
	userAgent string
}

type clientInfoKey struct{}

func clientFrom(ctx context.Context) clientInfo {
	if ctx == nil {
		return clientInfo{}
	}
	ci, _ := ctx.Value(clientInfoKey{}).(clientInfo)
	return ci
}

// WithClientIP records the caller's address on ctx. Audit events emitted
// under ctx carry it in the ip field.
func WithClientIP(ctx context.Context, ip string) context.Context {
	ci := clientFrom(ctx)
	ci.ip = ip
	return context.WithValue(ctx, clientInfoKey{}, ci)
}

// WithUserAgent records the caller's User-Agent; it lands in audit
// metadata under "user_agent".
func WithUserAgent(ctx context.Context, ua string) context.Context {
	ci := clientFrom(ctx)
	ci.userAgent = ua
	return context.WithValue(ctx, clientInfoKey{}, ci)
}
