// Package events carries the lockout domain events and their dispatcher.
// Dispatch is synchronous and fire-and-forget: handlers run in registration
// order, each inside its own failure boundary, and no handler failure ever
// reaches the emitter.
package events

import (
	"context"
	"log/slog"
	"sync"

	"lockgate/internal/lockout/models"
)

// EntityLocked fires when an identifier's failed attempts cross the threshold.
type EntityLocked struct {
	Identifier string
	Context    models.RequestContext
}

// EntityUnlocked fires after a subject's active lock has been released.
type EntityUnlocked struct {
	Subject    models.Subject
	Lock       *models.LockRecord
	Identifier string
	Context    models.RequestContext
}

// LockedHandler reacts to EntityLocked events.
type LockedHandler func(ctx context.Context, event EntityLocked) error

// UnlockedHandler reacts to EntityUnlocked events.
type UnlockedHandler func(ctx context.Context, event EntityUnlocked) error

// Dispatcher holds ordered handler lists per event type.
type Dispatcher struct {
	mu         sync.RWMutex
	onLocked   []LockedHandler
	onUnlocked []UnlockedHandler
	logger     *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// OnLocked appends a handler for EntityLocked events.
func (d *Dispatcher) OnLocked(h LockedHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onLocked = append(d.onLocked, h)
}

// OnUnlocked appends a handler for EntityUnlocked events.
func (d *Dispatcher) OnUnlocked(h UnlockedHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUnlocked = append(d.onUnlocked, h)
}

// DispatchLocked runs every EntityLocked handler in order.
func (d *Dispatcher) DispatchLocked(ctx context.Context, event EntityLocked) {
	d.mu.RLock()
	handlers := d.onLocked
	d.mu.RUnlock()

	for _, h := range handlers {
		d.run(ctx, "entity_locked", func() error { return h(ctx, event) })
	}
}

// DispatchUnlocked runs every EntityUnlocked handler in order.
func (d *Dispatcher) DispatchUnlocked(ctx context.Context, event EntityUnlocked) {
	d.mu.RLock()
	handlers := d.onUnlocked
	d.mu.RUnlock()

	for _, h := range handlers {
		d.run(ctx, "entity_unlocked", func() error { return h(ctx, event) })
	}
}

// run is the per-handler failure boundary: errors are logged, panics
// recovered, and the remaining handlers still run.
func (d *Dispatcher) run(ctx context.Context, event string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "event handler panicked",
				"event", event,
				"panic", r,
			)
		}
	}()

	if err := fn(); err != nil {
		d.logger.WarnContext(ctx, "event handler failed",
			"event", event,
			"error", err,
		)
	}
}
