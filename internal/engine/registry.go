package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Registry keeps driver kinds in registration order. The order is the
// priority used when several drivers claim the same format.
type Registry struct {
	mu     sync.RWMutex
	kinds  []DriverKind
	byName map[string]DriverKind
	logger *zap.Logger

	// generation counts successful registrations.
	generation uint64
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byName: make(map[string]DriverKind),
		logger: logger,
	}
}

// Register appends kind to the priority list.
func (r *Registry) Register(kind DriverKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[kind.Name()]; ok {
		return fmt.Errorf("driver %q is already registered", kind.Name())
	}
	r.kinds = append(r.kinds, kind)
	r.byName[kind.Name()] = kind
	r.generation++
	r.logger.Debug("registered driver",
		zap.String("driver", kind.Name()),
		zap.Stringers("formats", kind.SupportedFormats()),
		zap.Bool("available", kind.Available()),
	)
	return nil
}

// MustRegister is Register for static driver lists.
func (r *Registry) MustRegister(kinds ...DriverKind) *Registry {
	for _, k := range kinds {
		lo.Must0(r.Register(k))
	}
	return r
}

// Generation changes every time a kind is registered.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func (r *Registry) Kinds() []DriverKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.kinds)
}

func (r *Registry) Kind(name string) (DriverKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byName[name]
	return k, ok
}

// DriversFor returns the kinds claiming f, in priority order, whether or not
// they are available.
func (r *Registry) DriversFor(f Format) []DriverKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(r.kinds, func(k DriverKind, _ int) bool {
		return slices.Contains(k.SupportedFormats(), f)
	})
}

// Formats returns every format claimed by at least one kind, sorted.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	formats := lo.Uniq(lo.FlatMap(r.kinds, func(k DriverKind, _ int) []Format {
		return k.SupportedFormats()
	}))
	slices.Sort(formats)
	return formats
}

// Names returns the registered kind names in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.kinds, func(k DriverKind, _ int) string { return k.Name() })
}
