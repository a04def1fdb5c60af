package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irtimmer/rproxy/internal/rpctx"
)

// MemoryStore is the default in-process SessionStore: a mutex-guarded map
// with a background sweep goroutine evicting expired entries, the external
// key/value-with-TTL collaborator named by the design spec's scope section.
type MemoryStore struct {
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]entry

	stop chan struct{}
}

type entry struct {
	sess    rpctx.Session
	expires time.Time
}

// NewMemoryStore builds a MemoryStore with the given per-session TTL and
// starts its background sweep goroutine at the given interval. Callers that
// no longer need the store should call Close to stop the sweeper.
func NewMemoryStore(ttl, sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]entry),
		stop:     make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

func (s *MemoryStore) sweep(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-t.C:
			s.mu.Lock()
			for cookie, e := range s.sessions {
				if now.After(e.expires) {
					delete(s.sessions, cookie)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Close stops the background sweeper. Safe to call once.
func (s *MemoryStore) Close() { close(s.stop) }

// Load implements rpctx.SessionStore.
func (s *MemoryStore) Load(cookie string) (rpctx.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[cookie]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.sess, true
}

// Save implements rpctx.SessionStore. An empty cookie mints a fresh one;
// a non-empty cookie is reused in place, refreshing its TTL.
func (s *MemoryStore) Save(cookie string, sess rpctx.Session) (string, error) {
	if cookie == "" {
		cookie = uuid.NewString()
	}
	s.mu.Lock()
	s.sessions[cookie] = entry{sess: sess, expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return cookie, nil
}

var _ rpctx.SessionStore = (*MemoryStore)(nil)
