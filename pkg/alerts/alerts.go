// Package alerts keeps the set of active operator alerts.
//
// Alerts describe recoverable conditions (an unknown handler kind, a missing
// mock selection, a broken definitions file). They are keyed by stable,
// colon-separated identifiers so raising the same problem twice replaces the
// entry instead of duplicating it, and removing a key also removes every
// alert nested below it.
package alerts

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Separator joins alert key segments.
const Separator = ":"

// Sink is the collaborator components raise and clear alerts through.
type Sink interface {
	Add(key, message string)
	Remove(key string)
}

// Alert is one active alert.
type Alert struct {
	Key     string    `json:"id"`
	Message string    `json:"message"`
	Since   time.Time `json:"since"`
}

// Set is a concurrency-safe set of active alerts.
type Set struct {
	mu     sync.RWMutex
	active map[string]*Alert
	now    func() time.Time
}

// New returns an empty Set.
func New() *Set {
	return &Set{
		active: make(map[string]*Alert),
		now:    time.Now,
	}
}

// Add raises an alert. Raising an existing key updates its message and keeps
// the original timestamp.
func (s *Set) Add(key, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.active[key]; ok {
		existing.Message = message
		return
	}
	s.active[key] = &Alert{Key: key, Message: message, Since: s.now()}
}

// Remove clears key and every alert nested below it.
// Removing a key that is not active is a no-op.
func (s *Set) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := key + Separator
	for k := range s.active {
		if k == key || strings.HasPrefix(k, prefix) {
			delete(s.active, k)
		}
	}
}

// Get returns the alert stored under key.
func (s *Set) Get(key string) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.active[key]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// List returns a copy of all active alerts sorted by key.
func (s *Set) List() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of active alerts.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Scoped returns a Sink that prefixes every key with prefix.
func (s *Set) Scoped(prefix string) Sink {
	return &scoped{set: s, prefix: prefix}
}

type scoped struct {
	set    *Set
	prefix string
}

func (s *scoped) key(k string) string {
	if k == "" {
		return s.prefix
	}
	return s.prefix + Separator + k
}

func (s *scoped) Add(key, message string) { s.set.Add(s.key(key), message) }

func (s *scoped) Remove(key string) { s.set.Remove(s.key(key)) }

// Nop returns a Sink that drops everything.
func Nop() Sink { return nopSink{} }

type nopSink struct{}

func (nopSink) Add(string, string) {}
func (nopSink) Remove(string)      {}
