package common

import "context"

// SessionInfo carries per-connection metadata about the caller that issued
// a request. A DataStore's change-notification callbacks and a Server's
// ExternalEngine can pull it out of the request context to know who made
// the change without the DataStore/ExternalEngine interfaces themselves
// needing a session parameter.
type SessionInfo struct {
	RemoteAddr string // Remote address of the connection, e.g. "10.0.0.5:51342"
	UnitID     UnitID // Unit ID the request was addressed to
}

type sessionInfoKey struct{}

// WithSessionInfo returns a context carrying the given SessionInfo.
func WithSessionInfo(ctx context.Context, info SessionInfo) context.Context {
	return context.WithValue(ctx, sessionInfoKey{}, info)
}

// SessionInfoFromContext retrieves the SessionInfo placed by WithSessionInfo.
// ok is false if the context carries none.
func SessionInfoFromContext(ctx context.Context) (SessionInfo, bool) {
	info, ok := ctx.Value(sessionInfoKey{}).(SessionInfo)
	return info, ok
}
