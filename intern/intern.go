// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package intern deduplicates strings and property sets into handles which
// remain valid for the lifetime of the process.
//
// Handles are cheap to copy and compare, and reading the value behind a
// handle requires no synchronization. Only the first request for a given
// value takes the registry's write lock.
//
// Every distinct value ever interned is retained. Callers must keep the
// number of distinct values bounded, e.g. by tagging with small enumerated
// dimensions instead of per-entity identifiers. Interning unbounded values
// grows the registry without limit.
package intern

import (
	"sort"
	"strings"
	"sync"
)

// String is an interned string handle. Two handles compare equal
// if and only if they were interned from equal content.
// The zero value represents an absent string.
type String struct {
	p *string
}

// Value returns the interned content.
func (s String) Value() string {
	if s.p == nil {
		return ""
	}
	return *s.p
}

// IsZero reports whether s was never interned.
func (s String) IsZero() bool {
	return s.p == nil
}

// String implements the [fmt.Stringer] interface.
func (s String) String() string {
	return s.Value()
}

// Property is a single key value pair.
type Property struct {
	Key   string
	Value string
}

// PropertySet is an immutable, interned set of properties sorted by key.
// Equal content always yields the same *PropertySet.
type PropertySet struct {
	props []Property
}

// Len returns the number of properties in the set.
func (ps *PropertySet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.props)
}

// Get returns the value for key.
func (ps *PropertySet) Get(key string) (string, bool) {
	if ps == nil {
		return "", false
	}
	i := sort.Search(len(ps.props), func(i int) bool {
		return ps.props[i].Key >= key
	})
	if i < len(ps.props) && ps.props[i].Key == key {
		return ps.props[i].Value, true
	}
	return "", false
}

// All returns a copy of the properties sorted by key.
func (ps *PropertySet) All() []Property {
	if ps == nil {
		return nil
	}
	props := make([]Property, len(ps.props))
	copy(props, ps.props)
	return props
}

// Interner is a registry of interned values. Safe for concurrent use.
type Interner struct {
	mu    sync.RWMutex
	strs  map[string]*string
	props map[string]*PropertySet
}

// New returns an empty Interner.
func New() *Interner {
	return &Interner{
		strs:  make(map[string]*string),
		props: make(map[string]*PropertySet),
	}
}

// Intern returns the handle for s.
func (in *Interner) Intern(s string) String {
	in.mu.RLock()
	p, ok := in.strs[s]
	in.mu.RUnlock()
	if ok {
		return String{p: p}
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	// another goroutine may have won the race between the locks
	if p, ok = in.strs[s]; ok {
		return String{p: p}
	}
	p = new(string)
	*p = strings.Clone(s)
	in.strs[*p] = p
	return String{p: p}
}

// Props returns the interned set for the given properties. Order does not
// matter. When a key is repeated, the last value wins.
func (in *Interner) Props(kv ...Property) *PropertySet {
	if len(kv) == 0 {
		return nil
	}

	props := normalize(kv)
	k := canonicalKey(props)

	in.mu.RLock()
	ps, ok := in.props[k]
	in.mu.RUnlock()
	if ok {
		return ps
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if ps, ok = in.props[k]; ok {
		return ps
	}
	ps = &PropertySet{props: props}
	in.props[k] = ps
	return ps
}

// Len returns the number of distinct interned strings.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.strs)
}

// PropertySetLen returns the number of distinct interned property sets.
func (in *Interner) PropertySetLen() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.props)
}

// Reset drops every interned value. Handles obtained before Reset remain
// readable but no longer compare equal to handles obtained after it.
func (in *Interner) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.strs = make(map[string]*string)
	in.props = make(map[string]*PropertySet)
}

func normalize(kv []Property) []Property {
	props := make([]Property, len(kv))
	copy(props, kv)
	sort.SliceStable(props, func(i, j int) bool {
		return props[i].Key < props[j].Key
	})

	out := props[:0]
	for _, p := range props {
		if n := len(out); n > 0 && out[n-1].Key == p.Key {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

func canonicalKey(props []Property) string {
	var sb strings.Builder
	for _, p := range props {
		sb.WriteString(p.Key)
		sb.WriteByte(0)
		sb.WriteString(p.Value)
		sb.WriteByte(0)
	}
	return sb.String()
}

var (
	defaultOnce     sync.Once
	defaultInterner *Interner
)

// Default returns the process-wide Interner.
func Default() *Interner {
	defaultOnce.Do(func() {
		defaultInterner = New()
	})
	return defaultInterner
}

// Intern interns s in the process-wide registry.
func Intern(s string) String {
	return Default().Intern(s)
}

// Props interns kv in the process-wide registry.
func Props(kv ...Property) *PropertySet {
	return Default().Props(kv...)
}

// Len returns the number of distinct strings in the process-wide registry.
func Len() int {
	return Default().Len()
}

// PropertySetLen returns the number of distinct property sets in the process-wide registry.
func PropertySetLen() int {
	return Default().PropertySetLen()
}

// ResetForTesting clears the process-wide registry. It must only be
// called from tests which need a clean registry between cases.
func ResetForTesting() {
	Default().Reset()
}
