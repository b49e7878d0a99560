package storage

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Factory builds the configured adapter stack once and hands out the
// cached instance. It is an explicit handle meant to be constructed in
// main and injected through the dependency graph, not a package-level
// singleton. Swap rebuilds the stack for a different adapter kind and is
// the only supported way to change backends at runtime; it exists for
// controlled migration windows and is exposed through an administrative
// endpoint, never flipped implicitly.
type Factory struct {
	mu      sync.RWMutex
	cfg     Config
	adapter Adapter

	journal Journal
	log     *logrus.Entry
}

// FactoryOption customizes factory construction.
type FactoryOption func(*Factory)

// WithFactoryJournal attaches a dual-write failure journal; it is wired
// into the DualWriteAdapter whenever the "dual" kind is built.
func WithFactoryJournal(j Journal) FactoryOption {
	return func(f *Factory) { f.journal = j }
}

// WithFactoryLogger overrides the default logger.
func WithFactoryLogger(log *logrus.Logger) FactoryOption {
	return func(f *Factory) { f.log = log.WithField("component", "storage-factory") }
}

// NewFactory validates the configuration and constructs the adapter
// stack. Construction failures (bad credentials, unreachable backend)
// surface here so a misconfigured process dies at startup instead of at
// first use.
func NewFactory(cfg Config, opts ...FactoryOption) (*Factory, error) {
	f := &Factory{
		cfg: cfg,
		log: logrus.StandardLogger().WithField("component", "storage-factory"),
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("storage configuration invalid: %w", err)
	}

	adapter, err := f.build(cfg.Adapter)
	if err != nil {
		return nil, err
	}
	f.adapter = adapter
	f.log.WithField("adapter", cfg.Adapter).Info("storage adapter initialized")
	return f, nil
}

// build constructs the full stack for an adapter kind: backend(s), then
// the optional cache layer, then metrics instrumentation outermost.
func (f *Factory) build(kind string) (Adapter, error) {
	var adapter Adapter
	var err error

	switch kind {
	case AdapterJSON:
		adapter, err = NewJSONAdapter(f.cfg.JSONPath)
	case AdapterSupabase:
		adapter, err = NewSupabaseAdapter(f.cfg)
	case AdapterDual:
		adapter, err = f.buildDual()
	default:
		return nil, fmt.Errorf("invalid storage adapter: %s (must be json, supabase, or dual)", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build %s adapter: %w", kind, err)
	}

	if f.cfg.CacheEnabled {
		adapter, err = NewCachedAdapter(adapter, f.cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build document cache: %w", err)
		}
	}
	if f.cfg.MetricsEnabled {
		adapter = NewInstrumentedAdapter(adapter)
	}
	return adapter, nil
}

func (f *Factory) buildDual() (Adapter, error) {
	jsonAdapter, err := NewJSONAdapter(f.cfg.JSONPath)
	if err != nil {
		return nil, err
	}
	supabaseAdapter, err := NewSupabaseAdapter(f.cfg)
	if err != nil {
		return nil, err
	}

	// The old backend stays primary during migration; reads are
	// routed by DUAL_WRITE_READ_FROM.
	primary, secondary := Adapter(jsonAdapter), Adapter(supabaseAdapter)
	readFromPrimary := f.cfg.DualReadFrom != AdapterSupabase

	opts := []DualWriteOption{WithSecondaryTimeout(f.cfg.DualSecondaryTimeout)}
	if f.journal != nil {
		opts = append(opts, WithJournal(f.journal))
	}
	return NewDualWriteAdapter(primary, secondary, readFromPrimary, opts...), nil
}

// Adapter returns the cached adapter instance.
func (f *Factory) Adapter() Adapter {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.adapter
}

// Kind returns the currently active adapter kind.
func (f *Factory) Kind() string {
	return f.Adapter().Name()
}

// Swap rebuilds the stack for a different adapter kind and replaces the
// cached instance. The previous adapter is returned so the caller can
// drain and close it once in-flight requests finish; it is not closed
// here because handlers may still hold it.
func (f *Factory) Swap(kind string) (previous Adapter, err error) {
	next, err := f.build(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to swap storage adapter to %s: %w", kind, err)
	}

	f.mu.Lock()
	previous = f.adapter
	f.adapter = next
	f.mu.Unlock()

	f.log.WithFields(logrus.Fields{
		"from": previous.Name(),
		"to":   kind,
	}).Warn("storage adapter swapped")
	return previous, nil
}

// Close releases the active adapter's resources.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adapter == nil {
		return nil
	}
	err := f.adapter.Close()
	f.adapter = nil
	return err
}
