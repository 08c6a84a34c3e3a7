package scan

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/jellydator/ttlcache/v3"

	"github.com/kozaktomas/face-scan/internal/logging"
)

// Factory builds the controller for a web session.
type Factory func(sessionID, userID string) *Controller

// Registry keeps one controller per web session. Controllers unused for
// longer than the idle timeout are evicted and closed.
type Registry struct {
	factory Factory
	cache   *ttlcache.Cache[string, *Controller]
	log     logr.Logger
	mu      sync.Mutex
}

// NewRegistry creates a registry and starts its expiry loop.
func NewRegistry(factory Factory, idleTimeout time.Duration, log logr.Logger) *Registry {
	r := &Registry{
		factory: factory,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *Controller](idleTimeout),
		),
		log: log,
	}

	r.cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Controller]) {
		if err := item.Value().Close(); err != nil {
			r.log.Error(err, "Failed to close evicted scan controller", "session", item.Key())
		}
		r.log.V(logging.DEBUG).Info("Scan controller evicted", "session", item.Key(), "reason", reason)
	})

	go r.cache.Start()
	return r
}

// Get returns the controller of a session, creating it on first use.
// Each lookup extends the controller's lifetime.
func (r *Registry) Get(sessionID, userID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item := r.cache.Get(sessionID); item != nil {
		return item.Value()
	}

	ctrl := r.factory(sessionID, userID)
	r.cache.Set(sessionID, ctrl, ttlcache.DefaultTTL)
	return ctrl
}

// Lookup returns the controller of a session without creating one or
// extending its lifetime.
func (r *Registry) Lookup(sessionID string) (*Controller, bool) {
	item := r.cache.Get(sessionID, ttlcache.WithDisableTouchOnHit[string, *Controller]())
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Remove closes and forgets the controller of a session. It reports whether
// the session had one.
func (r *Registry) Remove(sessionID string) bool {
	if _, ok := r.Lookup(sessionID); !ok {
		return false
	}
	r.cache.Delete(sessionID)
	return true
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Stop closes every controller and stops the expiry loop.
func (r *Registry) Stop() {
	r.log.V(logging.DEBUG).Info("Stopping scan registry", "controllers", r.Len())
	r.cache.DeleteAll()
	r.cache.Stop()
}
