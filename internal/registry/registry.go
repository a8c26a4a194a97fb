package registry

import (
	"iter"
	"log/slog"
	"slices"
	"sync"

	"github.com/wagiedev/host-mcp-go/internal/errors"
)

// Registry maps procedure names to procedures in registration order.
//
// Registration is expected during single-threaded startup. Freeze marks the
// end of that window; after it the table is read-only and registration fails
// with errors.ErrRegistryFrozen.
type Registry struct {
	log *slog.Logger

	mu     sync.RWMutex
	byName map[string]*Procedure
	order  []*Procedure
	frozen bool
}

// New creates an empty registry.
func New(log *slog.Logger) *Registry {
	return &Registry{
		log:    log.With("component", "registry"),
		byName: make(map[string]*Procedure, 32),
		order:  make([]*Procedure, 0, 32),
	}
}

// Register adds a copy of p to the registry.
//
// Returns DuplicateNameError if the name is taken; the existing registration
// is left intact. Nothing is recorded when registration fails.
func (r *Registry) Register(p *Procedure) error {
	if p == nil {
		return errNilProcedure
	}

	proc := *p
	if err := proc.prepare(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.ErrRegistryFrozen
	}

	if _, exists := r.byName[proc.Name]; exists {
		return &errors.DuplicateNameError{Name: proc.Name}
	}

	r.byName[proc.Name] = &proc
	r.order = append(r.order, &proc)

	r.log.Debug("Registered procedure",
		"name", proc.Name,
		"kind", proc.Kind,
		"safety", proc.Safety,
	)

	return nil
}

// Lookup returns the procedure registered under name.
func (r *Registry) Lookup(name string) (*Procedure, error) {
	r.mu.RLock()
	p, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &errors.NotFoundError{Name: name}
	}

	return p, nil
}

// List yields registered procedures in registration order, optionally
// restricted to the given kinds. The sequence is finite and may be ranged
// over any number of times.
func (r *Registry) List(kinds ...Kind) iter.Seq[*Procedure] {
	return func(yield func(*Procedure) bool) {
		r.mu.RLock()
		snapshot := slices.Clone(r.order)
		r.mu.RUnlock()

		for _, p := range snapshot {
			if len(kinds) > 0 && !slices.Contains(kinds, p.Kind) {
				continue
			}

			if !yield(p) {
				return
			}
		}
	}
}

// Describe returns discovery descriptors in registration order.
func (r *Registry) Describe(kinds ...Kind) []Descriptor {
	out := make([]Descriptor, 0, r.Len())
	for p := range r.List(kinds...) {
		out = append(out, p.Describe())
	}

	return out
}

// Len returns the number of registered procedures.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Freeze closes the registration window. It is safe to call more than once.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.frozen {
		r.frozen = true
		r.log.Info("Registry frozen", "procedures", len(r.order))
	}
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.frozen
}
