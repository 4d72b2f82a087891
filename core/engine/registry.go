package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Handle is the lifecycle surface shared by Engine and BoundedEngine.
type Handle interface {
	Submitter
	Name() string
	State() State
	Stop()
	StopWhenEmpty(ctx context.Context) error
}

var (
	_ Handle = (*Engine)(nil)
	_ Handle = (*BoundedEngine)(nil)
)

// Registry tracks live engines so that they can be stopped together, e.g.
// on process shutdown. Options passed to NewRegistry are applied to every
// engine it creates, before the per-engine options.
type Registry struct {
	log  *slog.Logger
	opts []Option

	mu      sync.Mutex
	engines map[string]Handle
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Registry{
		log:     cfg.log.With(slog.String("component", "engine_registry")),
		opts:    opts,
		engines: make(map[string]Handle),
	}
}

// Create starts and registers a new Engine.
func (r *Registry) Create(name string, workers int, opts ...Option) (*Engine, error) {
	var e *Engine
	err := r.register(name, func(name string) Handle {
		e = New(name, workers, r.options(opts)...)
		return e
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CreateBounded starts and registers a new BoundedEngine.
func (r *Registry) CreateBounded(name string, workers, ceiling int, opts ...Option) (*BoundedEngine, error) {
	var b *BoundedEngine
	err := r.register(name, func(name string) Handle {
		b = NewBounded(name, workers, ceiling, r.options(opts)...)
		return b
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Registry) register(name string, create func(name string) Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name != "" {
		// a stopped engine only holds on to its name; it is replaced
		if old, ok := r.engines[name]; ok && old.State() != StateStopped {
			return fmt.Errorf("%w: %s", ErrEngineExists, name)
		}
	}
	h := create(name)
	r.engines[h.Name()] = h
	r.log.Debug("engine registered", slog.String("engine", h.Name()))
	return nil
}

func (r *Registry) options(opts []Option) []Option {
	return append(slices.Clone(r.opts), opts...)
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEngineNotFound, name)
	}
	return h, nil
}

// Names returns the sorted names of all registered engines.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Remove unregisters name without stopping the engine.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.engines[name]; !ok {
		return false
	}
	delete(r.engines, name)
	return true
}

// StopAll stops every registered engine immediately and clears the registry.
func (r *Registry) StopAll() {
	for _, h := range r.takeAll() {
		h.Stop()
	}
}

// StopAllWhenEmpty drains every registered engine concurrently and clears the
// registry. It returns the first drain error once every drain returned.
func (r *Registry) StopAllWhenEmpty(ctx context.Context) error {
	var g errgroup.Group
	for _, h := range r.takeAll() {
		g.Go(func() error {
			return h.StopWhenEmpty(ctx)
		})
	}
	return g.Wait()
}

func (r *Registry) takeAll() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]Handle, 0, len(r.engines))
	for _, h := range r.engines {
		all = append(all, h)
	}
	r.engines = make(map[string]Handle)
	if len(all) > 0 {
		r.log.Info("stopping engines", slog.Int("count", len(all)))
	}
	return all
}
