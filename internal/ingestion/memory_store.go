package ingestion

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemorySessionStore keeps sessions in process memory with an idle timeout.
// Every Set refreshes the timeout. Expired entries are invisible to Get and
// are removed by Reap.
type MemorySessionStore struct {
	cache       *cache.Cache
	idleTimeout time.Duration
	expired     atomic.Int64
	now         func() time.Time
}

// NewMemorySessionStore creates an in-memory store. Cleanup is left to Reap
// so the reaper job controls when evictions happen.
func NewMemorySessionStore(idleTimeout time.Duration) *MemorySessionStore {
	s := &MemorySessionStore{
		cache:       cache.New(idleTimeout, 0),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}

	s.cache.OnEvicted(func(key string, value interface{}) {
		session, ok := value.(Session)
		if !ok {
			return
		}
		// Delete also fires OnEvicted; only count sessions that actually idled out
		if s.now().Sub(session.UpdatedAt) >= s.idleTimeout {
			s.expired.Add(1)
			log.Printf("🗑️  [SESSIONS] Expired idle session %s for user %d (stage %s)",
				session.ID, session.UserID, session.StageName())
		}
	})

	return s
}

func sessionKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Get returns a copy of the user's session
func (s *MemorySessionStore) Get(ctx context.Context, userID int64) (*Session, error) {
	value, found := s.cache.Get(sessionKey(userID))
	if !found {
		return nil, nil
	}
	session, ok := value.(Session)
	if !ok {
		return nil, fmt.Errorf("unexpected session type %T", value)
	}
	return &session, nil
}

// Set stores a copy of the session and restarts its idle timer
func (s *MemorySessionStore) Set(ctx context.Context, session *Session) error {
	if session == nil || session.Stage == nil {
		return fmt.Errorf("cannot store a session without a stage")
	}
	s.cache.Set(sessionKey(session.UserID), *session, cache.DefaultExpiration)
	return nil
}

// Clear drops the user's session
func (s *MemorySessionStore) Clear(ctx context.Context, userID int64) error {
	s.cache.Delete(sessionKey(userID))
	return nil
}

// Count returns the number of unexpired sessions
func (s *MemorySessionStore) Count(ctx context.Context) (int, error) {
	return len(s.cache.Items()), nil
}

// Reap deletes expired sessions and returns how many were removed
func (s *MemorySessionStore) Reap() int {
	before := s.expired.Load()
	s.cache.DeleteExpired()
	return int(s.expired.Load() - before)
}
