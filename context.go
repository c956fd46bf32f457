package goGuard

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}

const unknownIP = "unknown"

// WithClientIP attaches the caller's IP address to ctx. Sessions and
// activity entries record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. It is parsed
// into the device info of new sessions and activity entries.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return unknownIP
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	if ip == "" {
		return unknownIP
	}
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}
