package session

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

// Store is the in-memory session registry. Running sessions never expire;
// the TTL starts only when a session reaches a terminal status, so a slow
// document cannot be evicted out from under its own worker.
type Store struct {
	mu      sync.Mutex
	cache   *cache.Cache
	ttl     time.Duration
	onEvict func(*models.Session)
	log     *zap.Logger
}

// NewStore builds a registry whose expired entries are purged every ttl/10
// (minimum once a minute). onEvict runs for every evicted or deleted
// session and is where workdir and chunk cleanup hang.
func NewStore(ttl time.Duration, onEvict func(*models.Session), log *zap.Logger) *Store {
	sweep := ttl / 10
	if sweep < time.Minute {
		sweep = time.Minute
	}
	c := cache.New(cache.NoExpiration, sweep)

	s := &Store{cache: c, ttl: ttl, onEvict: onEvict, log: log}
	c.OnEvicted(func(id string, v interface{}) {
		sess, ok := v.(*models.Session)
		if !ok {
			return
		}
		if log != nil {
			log.Info("session evicted", zap.String("session_id", id), zap.String("status", string(sess.Status)))
		}
		if onEvict != nil {
			onEvict(snapshot(sess))
		}
	})
	return s
}

func (s *Store) Put(sess *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(sess.ID, sess, cache.NoExpiration)
}

// Get returns a copy; callers never see live pipeline mutations mid-write.
func (s *Store) Get(id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return snapshot(v.(*models.Session)), nil
}

// Update applies fn to the live session under the registry lock and returns
// the updated copy. Reaching a terminal status arms the eviction TTL.
func (s *Store) Update(id string, fn func(*models.Session)) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	sess := v.(*models.Session)

	wasTerminal := sess.Status.Terminal()
	fn(sess)
	sess.UpdatedAt = time.Now().UTC()

	if !wasTerminal && sess.Status.Terminal() {
		s.cache.Set(id, sess, s.ttl)
	}
	return snapshot(sess), nil
}

// Delete removes the session immediately, running the same cleanup the TTL
// eviction would.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache.Get(id); !ok {
		return core.ErrSessionNotFound
	}
	s.cache.Delete(id) // fires OnEvicted
	return nil
}

// List returns copies of all registered sessions.
func (s *Store) List() []*models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.cache.Items()
	out := make([]*models.Session, 0, len(items))
	for _, it := range items {
		out = append(out, snapshot(it.Object.(*models.Session)))
	}
	return out
}

func snapshot(sess *models.Session) *models.Session {
	cp := *sess
	if sess.Progress != nil {
		cp.Progress = make(map[string]int, len(sess.Progress))
		for k, v := range sess.Progress {
			cp.Progress[k] = v
		}
	}
	if sess.Warnings != nil {
		cp.Warnings = append([]string(nil), sess.Warnings...)
	}
	return &cp
}
