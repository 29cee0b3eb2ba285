package field

import (
	"fmt"
	"sort"
	"sync"

	"github.com/binstruct/bindef/binio"
)

// Registry holds the set of field types available to descriptor loading and
// sanitization. It is append-only: types can be registered until the
// registry is frozen, after which it is immutable and safe for concurrent
// lookup. The standard registry Std is built and frozen at package init.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Type
	frozen bool
}

// NewRegistry returns an empty, unfrozen registry. Most callers want Std;
// an independent registry is only needed to register custom types without
// affecting the rest of the process.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Type)}
}

// Register adds a single endian-agnostic type and returns it.
func (r *Registry) Register(info TypeInfo) (*Type, error) {
	t, err := newType(info, info.Name, info.Endian)
	if err != nil {
		return nil, err
	}
	if err := r.add(t); err != nil {
		return nil, err
	}
	return t, nil
}

// RegisterPair adds the little- and big-endian variants of a type, named
// with "LE" and "BE" suffixes. The base name also resolves, to the
// little-endian variant. The variants point at each other through
// Little() and Big() so sanitization can flip a whole subtree's byte order
// from a single ENDIAN entry.
func (r *Registry) RegisterPair(info TypeInfo) (le, be *Type, err error) {
	le, err = newType(info, info.Name+"LE", EndianLittle)
	if err != nil {
		return nil, nil, err
	}
	be, err = newType(info, info.Name+"BE", EndianBig)
	if err != nil {
		return nil, nil, err
	}
	le.big = be
	be.little = le

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return nil, nil, fmt.Errorf("%w: cannot register %q", binio.ErrFrozen, info.Name)
	}
	for _, name := range []string{info.Name, le.name, be.name} {
		if _, ok := r.byName[name]; ok {
			return nil, nil, fmt.Errorf("%w: type %q already registered",
				binio.ErrDescriptor, name)
		}
	}
	r.byName[le.name] = le
	r.byName[be.name] = be
	r.byName[info.Name] = le
	return le, be, nil
}

func (r *Registry) add(t *Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", binio.ErrFrozen, t.name)
	}
	if _, ok := r.byName[t.name]; ok {
		return fmt.Errorf("%w: type %q already registered", binio.ErrDescriptor, t.name)
	}
	r.byName[t.name] = t
	return nil
}

// Lookup returns the type registered under name, or nil.
func (r *Registry) Lookup(name string) *Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Freeze makes the registry immutable. Freezing twice is harmless.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
