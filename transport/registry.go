package transport

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/railflow/internal/runtime/errors"
)

type entry struct {
	build Builder
	caps  Capabilities
	// hasCaps is false for transports registered without capabilities.
	hasCaps bool
}

// Registry maps PUBSUB_SYSTEM values to transport builders. Names are matched
// case-insensitively.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// DefaultRegistry is the registry the built-in transports add themselves to.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a builder without capabilities. A later registration under
// the same name replaces the earlier one.
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalize(name)] = entry{build: builder}
}

// RegisterWithCapabilities adds a builder and the capabilities it reports.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalize(name)] = entry{build: builder, caps: caps, hasCaps: true}
}

// GetCapabilities returns the capabilities registered for name, or a zero
// value carrying only the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[normalize(name)]; ok && e.hasCaps {
		return e.caps
	}
	return Capabilities{Name: name}
}

// Build creates the transport registered under cfg.GetPubSubSystem() for the
// given role.
func (r *Registry) Build(ctx context.Context, cfg Config, role Role, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, errspkg.ErrConfigRequired
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	name := cfg.GetPubSubSystem()
	r.mu.RLock()
	e, ok := r.entries[normalize(name)]
	r.mu.RUnlock()
	if !ok {
		return Transport{}, fmt.Errorf("unknown transport: %q (registered: %v)", name, r.Names())
	}

	logger.Debug("Building transport", watermill.LogFields{"transport": name, "role": role.String()})
	return e.build(ctx, cfg, role, logger)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[normalize(name)]
	return ok
}

// Register adds a transport builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a transport builder and its capabilities to
// the default registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a transport using the default registry.
func Build(ctx context.Context, cfg Config, role Role, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, role, logger)
}
