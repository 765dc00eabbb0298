package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/match"
)

var (
	ErrInvalidArgs      = errf("invalid arguments")
	ErrAlreadyInSession = errf("identity already bound to a live session")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Tracked is what the registry needs to know about a session.
type Tracked interface {
	ID() string
	Terminal() bool
}

type key struct {
	identity string
	mode     match.Mode
}

// Registry maps (identity, mode) to the identity's current session and keeps
// per-identity disconnect timers. It never calls into a session beyond
// the two Tracked accessors.
type Registry[T Tracked] struct {
	mu       sync.Mutex
	bound    map[key]T
	bySID    map[string][]key
	presence map[key]*time.Timer
}

func New[T Tracked]() *Registry[T] {
	return &Registry[T]{
		bound:    make(map[key]T),
		bySID:    make(map[string][]key),
		presence: make(map[key]*time.Timer),
	}
}

// Bind attaches identity to s. A TERMINAL binding is replaced.
func (r *Registry[T]) Bind(identity string, mode match.Mode, s T) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ErrInvalidArgs
	}
	k := key{identity, mode}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.bound[k]; ok {
		if cur.ID() == s.ID() {
			return nil
		}
		if !cur.Terminal() {
			return ErrAlreadyInSession
		}
		r.dropIndex(cur.ID(), k)
	}
	r.bound[k] = s
	r.bySID[s.ID()] = append(r.bySID[s.ID()], k)
	return nil
}

func (r *Registry[T]) Lookup(identity string, mode match.Mode) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.bound[key{strings.TrimSpace(identity), mode}]
	return s, ok
}

// Live returns the binding only when its session has not ended.
func (r *Registry[T]) Live(identity string, mode match.Mode) (T, bool) {
	s, ok := r.Lookup(identity, mode)
	if !ok || s.Terminal() {
		var zero T
		return zero, false
	}
	return s, true
}

// Unbind removes identity's binding if it still points at sessionID.
func (r *Registry[T]) Unbind(identity string, mode match.Mode, sessionID string) bool {
	k := key{strings.TrimSpace(identity), mode}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.bound[k]
	if !ok || cur.ID() != sessionID {
		return false
	}
	delete(r.bound, k)
	r.dropIndex(sessionID, k)
	return true
}

// Release drops every binding of sessionID and returns the identities it held.
func (r *Registry[T]) Release(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.bySID[sessionID]
	delete(r.bySID, sessionID)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if cur, ok := r.bound[k]; ok && cur.ID() == sessionID {
			delete(r.bound, k)
			out = append(out, k.identity)
		}
		if t, ok := r.presence[k]; ok {
			t.Stop()
			delete(r.presence, k)
		}
	}
	return out
}

// Sessions returns every distinct bound session.
func (r *Registry[T]) Sessions() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(r.bySID))
	out := make([]T, 0, len(r.bySID))
	for _, s := range r.bound {
		if seen[s.ID()] {
			continue
		}
		seen[s.ID()] = true
		out = append(out, s)
	}
	return out
}

// MarkDisconnected arms a grace timer for identity. onExpire runs on the
// timer goroutine without any registry lock held. A second call restarts the timer.
func (r *Registry[T]) MarkDisconnected(identity string, mode match.Mode, grace time.Duration, onExpire func()) {
	k := key{strings.TrimSpace(identity), mode}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.presence[k]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(grace, func() {
		r.mu.Lock()
		if r.presence[k] != t {
			r.mu.Unlock()
			return
		}
		delete(r.presence, k)
		r.mu.Unlock()
		if onExpire != nil {
			onExpire()
		}
	})
	r.presence[k] = t
}

// MarkConnected cancels a pending grace timer. It reports whether one was running.
func (r *Registry[T]) MarkConnected(identity string, mode match.Mode) bool {
	k := key{strings.TrimSpace(identity), mode}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.presence[k]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.presence, k)
	return true
}

func (r *Registry[T]) Disconnected(identity string, mode match.Mode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.presence[key{strings.TrimSpace(identity), mode}]
	return ok
}

func (r *Registry[T]) dropIndex(sessionID string, k key) {
	keys := r.bySID[sessionID]
	for i, kk := range keys {
		if kk == k {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(r.bySID, sessionID)
		return
	}
	r.bySID[sessionID] = keys
}
