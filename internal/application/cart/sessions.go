package cart

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

var (
	ErrInvalidSession = errors.New("cart: invalid session id")

	sessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// Factory builds the store persisted under key.
type Factory func(ctx context.Context, key string) *Store

// Sessions hands out one Store per shopper session. Idle stores are evicted
// after ttl; their carts are persisted, so the next request restores them.
// A store that is still leased when it expires stays the session's store, so
// one key never has two live stores.
type Sessions struct {
	mu      sync.Mutex
	baseKey string
	factory Factory
	stores  *ttlcache.Cache[string, *Store]
	leased  map[string]*lease
}

type lease struct {
	store *Store
	refs  int
}

func NewSessions(baseKey string, ttl time.Duration, factory Factory) *Sessions {
	if baseKey == "" {
		baseKey = DefaultKey
	}
	return &Sessions{
		baseKey: baseKey,
		factory: factory,
		stores:  ttlcache.New[string, *Store](ttlcache.WithTTL[string, *Store](ttl)),
		leased:  make(map[string]*lease),
	}
}

// Start runs the eviction loop until Stop is called.
func (s *Sessions) Start() { go s.stores.Start() }

func (s *Sessions) Stop() { s.stores.Stop() }

// Acquire returns the store for session and a release func the caller must
// invoke once done with it. The empty session maps to the base key.
func (s *Sessions) Acquire(ctx context.Context, session string) (*Store, func(), error) {
	key, err := SessionKey(s.baseKey, session)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leased[key]
	switch {
	case ok:
		if !s.stores.Has(key) {
			s.stores.Set(key, l.store, ttlcache.DefaultTTL)
		}
	default:
		var store *Store
		if item := s.stores.Get(key); item != nil {
			store = item.Value()
		} else {
			store = s.factory(ctx, key)
			s.stores.Set(key, store, ttlcache.DefaultTTL)
		}
		l = &lease{store: store}
		s.leased[key] = l
	}
	l.refs++

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if l.refs--; l.refs == 0 {
				delete(s.leased, key)
			}
		})
	}
	return l.store, release, nil
}

// Len is the number of stores currently held.
func (s *Sessions) Len() int { return s.stores.Len() }

// SessionKey derives the persistence key for a session.
func SessionKey(baseKey, session string) (string, error) {
	if session == "" {
		return baseKey, nil
	}
	if !sessionPattern.MatchString(session) {
		return "", ErrInvalidSession
	}
	return baseKey + ":" + session, nil
}
