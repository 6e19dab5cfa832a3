package scope

// Scope is the contextual payload carried by a stack entry. The manager never
// inspects it beyond these three methods and compares instances by identity,
// so S is expected to be a pointer type.
type Scope[S any] interface {
	comparable

	// Locked reports whether new scopes may be pushed on top of this one.
	Locked() bool

	// Clone returns an independent copy.
	Clone() S

	// Apply merges caller-supplied state into the scope in place.
	Apply(state any)
}

// Entry pairs a scope with the sink that receives events captured under it.
type Entry[S Scope[S], K any] struct {
	scope S
	sink  K
}

// NewEntry creates an entry.
func NewEntry[S Scope[S], K any](scope S, sink K) Entry[S, K] {
	return Entry[S, K]{scope: scope, sink: sink}
}

// Scope returns the entry's scope.
func (e Entry[S, K]) Scope() S {
	return e.scope
}

// Sink returns the entry's sink.
func (e Entry[S, K]) Sink() K {
	return e.sink
}

// Stack is an immutable, outermost-first sequence of entries. The last entry
// is the current one.
type Stack[S Scope[S], K any] struct {
	entries []Entry[S, K]
}

// NewStack creates a stack holding a copy of entries.
func NewStack[S Scope[S], K any](entries ...Entry[S, K]) *Stack[S, K] {
	cp := make([]Entry[S, K], len(entries))
	copy(cp, entries)

	return &Stack[S, K]{entries: cp}
}

// Len returns the number of entries.
func (s *Stack[S, K]) Len() int {
	return len(s.entries)
}

// Top returns the current entry. It panics on an empty stack, which the
// manager never publishes.
func (s *Stack[S, K]) Top() Entry[S, K] {
	return s.entries[len(s.entries)-1]
}

// Entries returns a copy of the entries, outermost first.
func (s *Stack[S, K]) Entries() []Entry[S, K] {
	cp := make([]Entry[S, K], len(s.entries))
	copy(cp, s.entries)

	return cp
}

// push returns a new stack one entry longer.
func (s *Stack[S, K]) push(e Entry[S, K]) *Stack[S, K] {
	entries := make([]Entry[S, K], len(s.entries), len(s.entries)+1)
	copy(entries, s.entries)

	return &Stack[S, K]{entries: append(entries, e)}
}

// withTopSink returns a new stack whose top entry keeps its scope but is
// paired with sink.
func (s *Stack[S, K]) withTopSink(sink K) *Stack[S, K] {
	entries := make([]Entry[S, K], len(s.entries))
	copy(entries, s.entries)

	last := len(entries) - 1
	entries[last] = Entry[S, K]{scope: entries[last].scope, sink: sink}

	return &Stack[S, K]{entries: entries}
}

// contains reports whether scope is the exact instance held by any entry,
// scanning from the top.
func (s *Stack[S, K]) contains(scope S) bool {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].scope == scope {
			return true
		}
	}

	return false
}
