// Package binder keeps the callbacks of interactive components attached to
// rendered messages. Bindings are keyed by (message id, component id), expire
// after a TTL, and are dropped wholesale when their message is replaced.
//
// Operations on the same message are serialized; operations on different
// messages never wait for each other beyond a short map lookup.
package binder

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/keshon/switchboard/pkg/ident"
)

// Binding is one component id and the value bound to it.
type Binding[V any] struct {
	ID    string
	Value V
	// TTL overrides the binder default when positive.
	TTL time.Duration
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// slot holds the bindings of one message behind its own lock.
type slot[V any] struct {
	mu       sync.Mutex
	bindings map[string]entry[V]
	dead     bool
}

// Binder is safe for concurrent use.
type Binder[V any] struct {
	mu    sync.Mutex
	slots map[string]*slot[V]
	ttl   time.Duration
	ids   ident.Generator
	now   func() time.Time
}

// Option configures a Binder.
type Option[V any] func(*Binder[V])

// WithClock replaces time.Now, mostly for tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(b *Binder[V]) { b.now = now }
}

// WithGenerator replaces the default UUID id generator.
func WithGenerator[V any](g ident.Generator) Option[V] {
	return func(b *Binder[V]) { b.ids = g }
}

// New returns a Binder whose bindings live for ttl. A ttl <= 0 disables
// expiry, in which case only Invalidate removes bindings.
func New[V any](ttl time.Duration, opts ...Option[V]) *Binder[V] {
	b := &Binder[V]{
		slots: make(map[string]*slot[V]),
		ttl:   ttl,
		ids:   ident.UUID{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewID returns a fresh component id without binding it.
func (b *Binder[V]) NewID() string {
	return b.ids.Next()
}

// lock returns the locked slot of messageID, creating it when create is set.
// The caller must unlock it. A nil result means there is no slot.
func (b *Binder[V]) lock(messageID string, create bool) *slot[V] {
	for {
		b.mu.Lock()
		s, ok := b.slots[messageID]
		if !ok {
			if !create {
				b.mu.Unlock()
				return nil
			}
			s = &slot[V]{bindings: make(map[string]entry[V])}
			b.slots[messageID] = s
		}
		b.mu.Unlock()

		s.mu.Lock()
		if !s.dead {
			return s
		}
		// removed while we were waiting, look again
		s.mu.Unlock()
	}
}

// drop removes an empty slot from the table. s must be locked.
func (b *Binder[V]) drop(messageID string, s *slot[V]) {
	s.dead = true
	b.mu.Lock()
	if b.slots[messageID] == s {
		delete(b.slots, messageID)
	}
	b.mu.Unlock()
}

func (b *Binder[V]) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = b.ttl
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return b.now().Add(ttl)
}

// Bind allocates a fresh id for value on messageID and returns it.
func (b *Binder[V]) Bind(messageID string, value V) (string, error) {
	id := b.ids.Next()
	if err := b.BindID(messageID, id, value); err != nil {
		return "", err
	}
	return id, nil
}

// BindID binds value under a caller supplied id. An id that is still live on
// the same message is a BindingCollisionError.
func (b *Binder[V]) BindID(messageID, id string, value V) error {
	if err := ident.ValidateComponentID(id); err != nil {
		return err
	}
	s := b.lock(messageID, true)
	defer s.mu.Unlock()

	if e, ok := s.bindings[id]; ok && !e.expired(b.now()) {
		return &BindingCollisionError{MessageID: messageID, ComponentID: id}
	}
	s.bindings[id] = entry[V]{value: value, expiresAt: b.deadline(0)}
	return nil
}

// Replace atomically drops every binding of messageID and installs bindings.
// An empty bindings slice just invalidates the message.
func (b *Binder[V]) Replace(messageID string, bindings []Binding[V]) error {
	return b.Swap(messageID, bindings, nil)
}

// Swap installs bindings on messageID like Replace, then calls commit while
// the message is still locked. If commit fails the previous bindings are put
// back, so clicks on the message keep resolving to what is on screen.
func (b *Binder[V]) Swap(messageID string, bindings []Binding[V], commit func() error) error {
	fresh, err := b.entries(messageID, bindings)
	if err != nil {
		return err
	}
	s := b.lock(messageID, true)
	defer s.mu.Unlock()

	prev := s.bindings
	s.bindings = fresh
	if commit != nil {
		if err := commit(); err != nil {
			s.bindings = prev
			if len(prev) == 0 {
				b.drop(messageID, s)
			}
			return err
		}
	}
	if len(fresh) == 0 {
		b.drop(messageID, s)
	}
	return nil
}

func (b *Binder[V]) entries(messageID string, bindings []Binding[V]) (map[string]entry[V], error) {
	fresh := make(map[string]entry[V], len(bindings))
	for _, bd := range bindings {
		if err := ident.ValidateComponentID(bd.ID); err != nil {
			return nil, err
		}
		if _, ok := fresh[bd.ID]; ok {
			return nil, &BindingCollisionError{MessageID: messageID, ComponentID: bd.ID}
		}
		fresh[bd.ID] = entry[V]{value: bd.Value, expiresAt: b.deadline(bd.TTL)}
	}
	return fresh, nil
}

// Resolve returns the value bound to (messageID, id). Expired entries are
// evicted on the way.
func (b *Binder[V]) Resolve(messageID, id string) (V, error) {
	var zero V
	s := b.lock(messageID, false)
	if s == nil {
		return zero, &UnboundComponentError{MessageID: messageID, ComponentID: id}
	}
	defer s.mu.Unlock()

	e, ok := s.bindings[id]
	if !ok {
		return zero, &UnboundComponentError{MessageID: messageID, ComponentID: id}
	}
	if e.expired(b.now()) {
		delete(s.bindings, id)
		if len(s.bindings) == 0 {
			b.drop(messageID, s)
		}
		return zero, &UnboundComponentError{MessageID: messageID, ComponentID: id}
	}
	return e.value, nil
}

// Take resolves (messageID, id) like Resolve and removes the binding in the
// same step, so only one caller can ever get it.
func (b *Binder[V]) Take(messageID, id string) (V, error) {
	var zero V
	s := b.lock(messageID, false)
	if s == nil {
		return zero, &UnboundComponentError{MessageID: messageID, ComponentID: id}
	}
	defer s.mu.Unlock()

	e, ok := s.bindings[id]
	if ok {
		delete(s.bindings, id)
		if len(s.bindings) == 0 {
			b.drop(messageID, s)
		}
	}
	if !ok || e.expired(b.now()) {
		return zero, &UnboundComponentError{MessageID: messageID, ComponentID: id}
	}
	return e.value, nil
}

// Invalidate drops all bindings of messageID and returns how many there were.
func (b *Binder[V]) Invalidate(messageID string) int {
	s := b.lock(messageID, false)
	if s == nil {
		return 0
	}
	defer s.mu.Unlock()

	n := len(s.bindings)
	s.bindings = nil
	b.drop(messageID, s)
	return n
}

// Reap evicts expired bindings across all messages and returns the count.
func (b *Binder[V]) Reap() int {
	b.mu.Lock()
	ids := make([]string, 0, len(b.slots))
	for id := range b.slots {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	now := b.now()
	reaped := 0
	for _, messageID := range ids {
		s := b.lock(messageID, false)
		if s == nil {
			continue
		}
		for id, e := range s.bindings {
			if e.expired(now) {
				delete(s.bindings, id)
				reaped++
			}
		}
		if len(s.bindings) == 0 {
			b.drop(messageID, s)
		}
		s.mu.Unlock()
	}
	return reaped
}

// Clear drops every binding, e.g. after the platform connection is lost.
func (b *Binder[V]) Clear() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.slots))
	for id := range b.slots {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Invalidate(id)
	}
}

// Len returns the number of live bindings, expired ones included until reaped.
func (b *Binder[V]) Len() int {
	b.mu.Lock()
	slots := make([]*slot[V], 0, len(b.slots))
	for _, s := range b.slots {
		slots = append(slots, s)
	}
	b.mu.Unlock()

	n := 0
	for _, s := range slots {
		s.mu.Lock()
		n += len(s.bindings)
		s.mu.Unlock()
	}
	return n
}

// Messages returns the number of messages with at least one binding.
func (b *Binder[V]) Messages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}

// RunReaper calls Reap every interval until ctx is done.
func (b *Binder[V]) RunReaper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := b.Reap(); n > 0 {
				log.Printf("[DEBUG] Reaped %d expired component bindings", n)
			}
		}
	}
}
