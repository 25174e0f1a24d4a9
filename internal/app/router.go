package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// Compile-time check: Router implements domain.ConfigListener.
var _ domain.ConfigListener = (*Router)(nil)

// Router receives configuration change notifications and routes them to the
// tenant they belong to. Events for a registered tenant are forwarded to
// its engine synchronously on the calling goroutine; events for an unserved
// tenant trigger onboarding instead. Until the lifecycle controller marks
// configuration ready, every event is ignored — the startup scan already
// accounts for pre-existing tenants, so there is nothing to queue.
type Router struct {
	root      string
	registry  *Registry
	provider  domain.EngineProvider
	onboard   func(ctx context.Context, tenantID string) error
	log       *slog.Logger

	ready atomic.Bool

	mu   sync.RWMutex
	base context.Context
}

// NewRouter creates a router for configuration paths rooted at root
// (for example "/tenants"). onboard is the onboarding-enqueue entry point;
// the router always calls it off the watch callback goroutine.
func NewRouter(root string, registry *Registry, provider domain.EngineProvider,
	onboard func(ctx context.Context, tenantID string) error, log *slog.Logger) *Router {
	return &Router{
		root:     strings.TrimSuffix(root, "/"),
		registry: registry,
		provider: provider,
		onboard:  onboard,
		log:      log,
		base:     context.Background(),
	}
}

// MarkReady turns event delivery on. ctx becomes the base context for
// onboarding requests triggered by events.
func (r *Router) MarkReady(ctx context.Context) {
	r.mu.Lock()
	r.base = ctx
	r.mu.Unlock()
	r.ready.Store(true)
}

// Ready reports whether configuration events are live.
func (r *Router) Ready() bool {
	return r.ready.Load()
}

func (r *Router) context() context.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.base
}

// Resolve parses an absolute configuration-store path into its tenant id
// and tenant-relative path. A path outside the tenant root is a PathError.
func (r *Router) Resolve(path string) (domain.PathInfo, error) {
	prefix := r.root + "/"
	if !strings.HasPrefix(path, prefix) {
		return domain.PathInfo{}, &domain.PathError{Path: path}
	}
	tenantID, relative, _ := strings.Cut(strings.TrimPrefix(path, prefix), "/")
	if tenantID == "" {
		return domain.PathInfo{}, &domain.PathError{Path: path}
	}
	return domain.PathInfo{TenantID: tenantID, RelativePath: relative}, nil
}

// OnConfigurationAdded implements domain.ConfigListener.
func (r *Router) OnConfigurationAdded(path string, data []byte) {
	r.route(path, func(ctx context.Context, handle domain.EngineHandle, info domain.PathInfo) error {
		return r.provider.ConfigurationAdded(ctx, handle, info.RelativePath, data)
	})
}

// OnConfigurationUpdated implements domain.ConfigListener.
func (r *Router) OnConfigurationUpdated(path string, data []byte) {
	r.route(path, func(ctx context.Context, handle domain.EngineHandle, info domain.PathInfo) error {
		return r.provider.ConfigurationUpdated(ctx, handle, info.RelativePath, data)
	})
}

// OnConfigurationDeleted implements domain.ConfigListener.
func (r *Router) OnConfigurationDeleted(path string) {
	r.route(path, func(ctx context.Context, handle domain.EngineHandle, info domain.PathInfo) error {
		return r.provider.ConfigurationDeleted(ctx, handle, info.RelativePath)
	})
}

// route resolves the path and either forwards the event to the tenant's
// engine or requests onboarding. Resolution and forwarding failures are
// logged and dropped; a watch callback never observes an error.
func (r *Router) route(path string, forward func(ctx context.Context, handle domain.EngineHandle, info domain.PathInfo) error) {
	if !r.ready.Load() {
		return
	}
	ctx := r.context()

	info, err := r.Resolve(path)
	if err != nil {
		r.log.ErrorContext(ctx, "dropping unresolvable configuration event", "path", path, "error", err)
		return
	}

	handle, ok := r.registry.Get(info.TenantID)
	if !ok {
		// Unserved tenant: onboard instead of forwarding. The directory
		// wait inside may block, so it runs off this callback goroutine.
		go func() {
			if err := r.onboard(ctx, info.TenantID); err != nil {
				r.log.ErrorContext(ctx, "onboarding from configuration event failed",
					"tenant_id", info.TenantID, "path", path, "error", err)
			}
		}()
		return
	}

	if err := forward(ctx, handle, info); err != nil {
		r.log.ErrorContext(ctx, "engine configuration hook failed",
			"tenant_id", info.TenantID, "path", info.RelativePath, "error", err)
	}
}
