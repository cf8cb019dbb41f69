package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vijaygupta18/multidb/internal/executor"
	"github.com/vijaygupta18/multidb/internal/model"
)

var (
	// ErrUnknownTarget is returned when a request names a target that is not
	// registered.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrNoTargets is returned when a request resolves to no targets.
	ErrNoTargets = errors.New("no targets configured")
)

// PoolStats is a snapshot of a target's connection pool.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// StatsReporter is implemented by targets that expose pool statistics.
type StatsReporter interface {
	Stats() PoolStats
}

// Info describes one registered target.
type Info struct {
	Name  model.TargetName `json:"name"`
	Stats *PoolStats       `json:"stats,omitempty"`
}

// Registry holds the configured targets. It is built once at startup and
// closed on shutdown.
type Registry struct {
	mu      sync.RWMutex
	targets map[model.TargetName]executor.Target
}

// NewRegistry creates an empty target registry.
func NewRegistry() *Registry {
	return &Registry{
		targets: make(map[model.TargetName]executor.Target),
	}
}

// Open builds a registry of PostgreSQL targets from defs. A target whose
// first ping fails is still registered; its executions report connection
// failures until it becomes reachable.
func Open(ctx context.Context, defs []Definition, opts Options, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry()
	for _, def := range defs {
		t, err := OpenPG(ctx, def, opts)
		if t == nil {
			r.Close()
			return nil, err
		}
		if err != nil {
			logger.Warn("target unreachable at startup", "target", def.Name, "error", err)
		}
		if err := r.Register(t); err != nil {
			t.Close()
			r.Close()
			return nil, err
		}
		logger.Info("target registered", "target", t.Name())
	}
	return r, nil
}

// Register adds t under its name.
func (r *Registry) Register(t executor.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.targets[t.Name()]; exists {
		return fmt.Errorf("target %q is already registered", t.Name())
	}
	r.targets[t.Name()] = t
	return nil
}

// Get returns the target registered as name.
func (r *Registry) Get(name model.TargetName) (executor.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[name]
	return t, ok
}

// Resolve returns the targets a request addresses: every registered target
// for ModeAll, or the one named target for ModeSingle. Targets are sorted by
// name.
func (r *Registry) Resolve(mode model.Mode, name string) ([]executor.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch mode {
	case model.ModeSingle:
		n, err := model.ParseTargetName(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownTarget, err)
		}
		t, ok := r.targets[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, n)
		}
		return []executor.Target{t}, nil
	case model.ModeAll:
		if len(r.targets) == 0 {
			return nil, ErrNoTargets
		}
		out := make([]executor.Target, 0, len(r.targets))
		for _, t := range r.targets {
			out = append(out, t)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported mode %q", mode)
	}
}

// List describes every registered target, sorted by name for a stable API
// response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.targets))
	for name, t := range r.targets {
		info := Info{Name: name}
		if sr, ok := t.(StatsReporter); ok {
			s := sr.Stats()
			info.Stats = &s
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Close releases the pools of every target that holds one.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, t := range r.targets {
		if c, ok := t.(interface{ Close() }); ok {
			c.Close()
		}
		delete(r.targets, name)
	}
}
