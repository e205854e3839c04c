package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrDuplicateID is returned when an id is already registered for another
// definition.
var ErrDuplicateID = errors.New("schema: id already exists in registry")

// Meta is the registration metadata of a definition. A non-empty ID makes the
// definition a named component.
type Meta struct {
	ID          string
	Title       string
	Description string
	Example     any
}

// Registry associates definitions (by identity) with metadata. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[*Type]Meta
	ids     map[string]*Type
	order   []*Type
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[*Type]Meta),
		ids:     make(map[string]*Type),
	}
}

var globalRegistry = NewRegistry()

// GlobalRegistry returns the process-wide default registry. Library code never
// reads it implicitly; callers pass it explicitly when they want it.
func GlobalRegistry() *Registry { return globalRegistry }

// Add registers t with meta. Re-registering the same definition replaces its
// metadata.
func (r *Registry) Add(t *Type, meta Meta) error {
	if t == nil {
		return errors.New("schema: cannot register nil definition")
	}
	meta.ID = strings.TrimSpace(meta.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if meta.ID != "" {
		if owner, ok := r.ids[meta.ID]; ok && owner != t {
			return fmt.Errorf("%w: %q", ErrDuplicateID, meta.ID)
		}
	}
	prev, existed := r.entries[t]
	if existed && prev.ID != "" && prev.ID != meta.ID {
		delete(r.ids, prev.ID)
	}
	if !existed {
		r.order = append(r.order, t)
	}
	r.entries[t] = meta
	if meta.ID != "" {
		r.ids[meta.ID] = t
	}
	return nil
}

// MustAdd is Add that panics on error. It returns t for chaining.
func (r *Registry) MustAdd(t *Type, meta Meta) *Type {
	if err := r.Add(t, meta); err != nil {
		panic(err)
	}
	return t
}

// Get returns the metadata registered for t. Lazy definitions are looked up
// by themselves first and then by what they resolve to.
func (r *Registry) Get(t *Type) (Meta, bool) {
	if r == nil || t == nil {
		return Meta{}, false
	}
	r.mu.RLock()
	meta, ok := r.entries[t]
	r.mu.RUnlock()
	if ok || t.kind != KindLazy {
		return meta, ok
	}
	resolved := t.Resolve()
	if resolved == nil || resolved == t {
		return Meta{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok = r.entries[resolved]
	return meta, ok
}

// ID returns the component id registered for t, or "".
func (r *Registry) ID(t *Type) string {
	meta, _ := r.Get(t)
	return meta.ID
}

// Lookup returns the definition registered under id.
func (r *Registry) Lookup(id string) (*Type, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.ids[id]
	return t, ok
}

// Remove unregisters t.
func (r *Registry) Remove(t *Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.entries[t]
	if !ok {
		return
	}
	delete(r.entries, t)
	if meta.ID != "" {
		delete(r.ids, meta.ID)
	}
	for i, cur := range r.order {
		if cur == t {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Types returns the registered definitions in registration order.
func (r *Registry) Types() []*Type {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Type(nil), r.order...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
