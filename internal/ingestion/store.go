package ingestion

import "context"

// SessionStore holds at most one session per user. Implementations must be
// safe for concurrent use by different users.
type SessionStore interface {
	// Get returns the user's session, or nil when the user is idle
	Get(ctx context.Context, userID int64) (*Session, error)
	Set(ctx context.Context, session *Session) error
	Clear(ctx context.Context, userID int64) error
	// Count returns the number of live sessions
	Count(ctx context.Context) (int, error)
}
