package profileauth

import "context"

type requestKey uint8

const (
	clientIPKey requestKey = iota
	userAgentKey
	requestIDKey
)

// WithClientIP records the caller's address. Per-IP throttles and audit
// events read it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// WithUserAgent records the User-Agent header for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// WithRequestID records a correlation id, copied into every audit event
// emitted while serving the request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func clientIPFromContext(ctx context.Context) string  { return requestValue(ctx, clientIPKey) }
func userAgentFromContext(ctx context.Context) string { return requestValue(ctx, userAgentKey) }
func requestIDFromContext(ctx context.Context) string { return requestValue(ctx, requestIDKey) }

func requestValue(ctx context.Context, key requestKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ClientIPFromContext returns the address stored by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	return clientIPFromContext(ctx)
}
