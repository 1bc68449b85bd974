package engine

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Resolver answers which drivers can serve a format and operation in the
// current environment. Support probes are memoized per format until another
// kind is registered.
type Resolver struct {
	logger   *zap.Logger
	registry *Registry

	mu             sync.Mutex
	generation     uint64
	formatsSupport map[Format][]DriverKind
}

func NewResolver(registry *Registry, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		logger:         logger,
		registry:       registry,
		generation:     registry.Generation(),
		formatsSupport: make(map[Format][]DriverKind),
	}
}

func (r *Resolver) Registry() *Registry {
	return r.registry
}

// Drivers returns the kinds able to open f right now, in priority order.
func (r *Resolver) Drivers(f Format) []DriverKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen := r.registry.Generation(); gen != r.generation {
		clear(r.formatsSupport)
		r.generation = gen
	}
	if drivers, ok := r.formatsSupport[f]; ok {
		return slices.Clone(drivers)
	}

	var drivers []DriverKind
	for _, k := range r.registry.DriversFor(f) {
		caps := k.Capabilities(f)
		r.logger.Debug("probed driver",
			zap.String("driver", k.Name()),
			zap.Stringer("format", f),
			zap.Stringer("capabilities", caps),
		)
		if caps.Has(CapOpen) {
			drivers = append(drivers, k)
		}
	}
	r.formatsSupport[f] = drivers
	return slices.Clone(drivers)
}

// CanOpen reports whether at least one driver can open f.
func (r *Resolver) CanOpen(f Format) bool {
	return len(r.Drivers(f)) > 0
}

// Supports reports whether any driver able to open f also declares c.
// Capabilities are OR'd across candidates.
func (r *Resolver) Supports(f Format, c Capability) bool {
	for _, k := range r.Drivers(f) {
		if k.Capabilities(f).Has(c) {
			return true
		}
	}
	return false
}

func (r *Resolver) CanCreate(f Format) bool  { return r.Supports(f, CapCreate) }
func (r *Resolver) CanAppend(f Format) bool  { return r.Supports(f, CapAppend) }
func (r *Resolver) CanDelete(f Format) bool  { return r.Supports(f, CapDelete) }
func (r *Resolver) CanEncrypt(f Format) bool { return r.Supports(f, CapCreateEncrypted) }
func (r *Resolver) CanStream(f Format) bool  { return r.Supports(f, CapStreamContent) }
func (r *Resolver) CanComment(f Format) bool { return r.Supports(f, CapSetComment) }

// Capabilities returns the union of capabilities over the drivers able to open f.
func (r *Resolver) Capabilities(f Format) Capability {
	var caps Capability
	for _, k := range r.Drivers(f) {
		caps |= k.Capabilities(f)
	}
	return caps
}

// SelectDriver returns the first driver, in priority order, that can open f
// and declares every bit of required.
func (r *Resolver) SelectDriver(f Format, required Capability) (DriverKind, error) {
	if f == None {
		return nil, &UnsupportedFormatError{Format: f, Available: r.openableFormats()}
	}
	drivers := r.Drivers(f)
	if len(drivers) == 0 {
		return nil, &UnsupportedFormatError{Format: f, Available: r.openableFormats()}
	}
	for _, k := range drivers {
		if k.Capabilities(f).Has(required) {
			r.logger.Debug("selected driver",
				zap.String("driver", k.Name()),
				zap.Stringer("format", f),
				zap.Stringer("required", required),
			)
			return k, nil
		}
	}
	return nil, &UnsupportedOperationError{Format: f, Operation: required.String()}
}

func (r *Resolver) openableFormats() []string {
	var out []string
	for _, f := range r.registry.Formats() {
		if r.CanOpen(f) {
			out = append(out, f.String())
		}
	}
	return out
}

// SupportRow is one (driver, format) pair of the support table.
type SupportRow struct {
	Format             Format     `json:"format" yaml:"format"`
	Driver             string     `json:"driver" yaml:"driver"`
	Available          bool       `json:"available" yaml:"available"`
	Capabilities       Capability `json:"capabilities" yaml:"capabilities"`
	InstallInstruction string     `json:"install_instruction,omitempty" yaml:"install_instruction,omitempty"`
}

// SupportTable lists every registered (driver, format) pair ordered by format
// then priority.
func (r *Resolver) SupportTable() []SupportRow {
	var rows []SupportRow
	for _, f := range r.registry.Formats() {
		for _, k := range r.registry.DriversFor(f) {
			row := SupportRow{
				Format:       f,
				Driver:       k.Name(),
				Available:    k.Available(),
				Capabilities: k.Capabilities(f),
			}
			if !row.Available {
				row.InstallInstruction = k.InstallInstruction()
			}
			rows = append(rows, row)
		}
	}
	return rows
}
