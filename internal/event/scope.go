package event

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// DefaultMaxBreadcrumbs bounds the breadcrumb trail of a scope.
const DefaultMaxBreadcrumbs = 100

// StateApplier lets a state value passed to PushScopeState decide how it is
// merged into a scope.
type StateApplier interface {
	ApplyTo(s *Scope)
}

// Scope is the contextual data attached to events captured under it.
// A Scope guards its own fields; it is safe to share between goroutines.
type Scope struct {
	mu sync.RWMutex

	locked         bool
	level          Level
	transaction    string
	user           User
	fingerprint    []string
	tags           map[string]string
	extra          map[string]any
	contexts       map[string]any
	breadcrumbs    []Breadcrumb
	maxBreadcrumbs int
}

// NewScope creates an empty scope keeping at most maxBreadcrumbs breadcrumbs.
// A non-positive value selects DefaultMaxBreadcrumbs.
func NewScope(maxBreadcrumbs int) *Scope {
	if maxBreadcrumbs <= 0 {
		maxBreadcrumbs = DefaultMaxBreadcrumbs
	}

	return &Scope{
		tags:           make(map[string]string),
		extra:          make(map[string]any),
		contexts:       make(map[string]any),
		maxBreadcrumbs: maxBreadcrumbs,
	}
}

// Locked reports whether nested scopes may be pushed on top of this one.
func (s *Scope) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.locked
}

// SetLocked locks or unlocks the scope.
func (s *Scope) SetLocked(locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locked = locked
}

// Clone returns an independent copy. The lock flag is carried over.
func (s *Scope) Clone() *Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Scope{
		locked:         s.locked,
		level:          s.level,
		transaction:    s.transaction,
		user:           s.user,
		fingerprint:    slices.Clone(s.fingerprint),
		tags:           maps.Clone(s.tags),
		extra:          maps.Clone(s.extra),
		contexts:       maps.Clone(s.contexts),
		breadcrumbs:    slices.Clone(s.breadcrumbs),
		maxBreadcrumbs: s.maxBreadcrumbs,
	}
}

// Apply merges state into the scope:
//   - string: tag "scope"
//   - map[string]string: tags, skipping empty keys and values
//   - map[string]any: tags formatted with fmt.Sprint, skipping nil values
//   - [2]string: a single tag, skipped when key or value is empty
//   - User, Breadcrumb, Level: set or appended
//   - func(*Scope) and StateApplier: invoked
//   - anything else: extra "state"
func (s *Scope) Apply(state any) {
	switch st := state.(type) {
	case nil:
	case StateApplier:
		st.ApplyTo(s)
	case func(*Scope):
		st(s)
	case string:
		s.SetTag("scope", st)
	case map[string]string:
		for k, v := range st {
			if k == "" || v == "" {
				continue
			}
			s.SetTag(k, v)
		}
	case map[string]any:
		for k, v := range st {
			if k == "" || v == nil {
				continue
			}
			s.SetTag(k, fmt.Sprint(v))
		}
	case [2]string:
		if st[0] != "" && st[1] != "" {
			s.SetTag(st[0], st[1])
		}
	case User:
		s.SetUser(st)
	case Breadcrumb:
		s.AddBreadcrumb(st)
	case Level:
		s.SetLevel(st)
	default:
		s.SetExtra("state", state)
	}
}

// SetTag sets a tag.
func (s *Scope) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tags[key] = value
}

// SetTags sets several tags.
func (s *Scope) SetTags(tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maps.Copy(s.tags, tags)
}

// RemoveTag removes a tag.
func (s *Scope) RemoveTag(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tags, key)
}

// Tags returns a copy of the tags.
func (s *Scope) Tags() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.tags)
}

// SetExtra sets an extra value.
func (s *Scope) SetExtra(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.extra[key] = value
}

// Extra returns a copy of the extra values.
func (s *Scope) Extra() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.extra)
}

// SetContext sets a named context block, e.g. "trace" or "request".
func (s *Scope) SetContext(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contexts[key] = value
}

// SetUser sets the user.
func (s *Scope) SetUser(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = user
}

// User returns the user.
func (s *Scope) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.user
}

// SetLevel overrides the level of events captured under this scope.
func (s *Scope) SetLevel(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.level = level
}

// Level returns the level override, or "" if none.
func (s *Scope) Level() Level {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.level
}

// SetTransaction sets the transaction name.
func (s *Scope) SetTransaction(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transaction = name
}

// Transaction returns the transaction name.
func (s *Scope) Transaction() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.transaction
}

// SetFingerprint sets the grouping fingerprint.
func (s *Scope) SetFingerprint(fingerprint []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fingerprint = slices.Clone(fingerprint)
}

// Fingerprint returns a copy of the grouping fingerprint.
func (s *Scope) Fingerprint() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.fingerprint)
}

// AddBreadcrumb appends a breadcrumb, dropping the oldest beyond the limit.
func (s *Scope) AddBreadcrumb(b Breadcrumb) {
	if b.Timestamp.IsZero() {
		b.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.breadcrumbs = append(s.breadcrumbs, b)
	if over := len(s.breadcrumbs) - s.maxBreadcrumbs; over > 0 {
		s.breadcrumbs = slices.Clone(s.breadcrumbs[over:])
	}
}

// Breadcrumbs returns a copy of the breadcrumbs, oldest first.
func (s *Scope) Breadcrumbs() []Breadcrumb {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.breadcrumbs)
}

// ClearBreadcrumbs removes all breadcrumbs.
func (s *Scope) ClearBreadcrumbs() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.breadcrumbs = nil
}

// Clear resets all data. The lock flag and breadcrumb limit are kept.
func (s *Scope) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.level = ""
	s.transaction = ""
	s.user = User{}
	s.fingerprint = nil
	s.tags = make(map[string]string)
	s.extra = make(map[string]any)
	s.contexts = make(map[string]any)
	s.breadcrumbs = nil
}

// ApplyToEvent copies the scope's data into ev. Values already present on
// the event win over scope values, except the level: a scope level always
// replaces the event's, in either direction, so a fatal event captured under
// a warning scope is reported as a warning.
func (s *Scope) ApplyToEvent(ev *Event) *Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.level != "" {
		ev.Level = s.level
	}

	if ev.Transaction == "" {
		ev.Transaction = s.transaction
	}

	if ev.User.IsEmpty() {
		ev.User = s.user
	}

	if len(ev.Fingerprint) == 0 {
		ev.Fingerprint = slices.Clone(s.fingerprint)
	}

	ev.Tags = mergeMissing(ev.Tags, s.tags)
	ev.Extra = mergeMissing(ev.Extra, s.extra)
	ev.Contexts = mergeMissing(ev.Contexts, s.contexts)

	if len(s.breadcrumbs) > 0 {
		ev.Breadcrumbs = append(slices.Clone(s.breadcrumbs), ev.Breadcrumbs...)
	}

	return ev
}

func mergeMissing[V any](dst, src map[string]V) map[string]V {
	if len(src) == 0 {
		return dst
	}

	if dst == nil {
		dst = make(map[string]V, len(src))
	}

	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}

	return dst
}
