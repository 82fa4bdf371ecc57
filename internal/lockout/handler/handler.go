// Package handler exposes the signed lock and unlock endpoints. Both routes
// are capability URLs: the signed-URL middleware is the only access control,
// and outcomes are reported by redirecting with status or error query
// parameters rather than rendering responses here.
package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"lockgate/internal/lockout/config"
	"lockgate/internal/lockout/engine"
	"lockgate/internal/lockout/events"
	"lockgate/internal/lockout/models"
	"lockgate/internal/lockout/signedurl"
	requesttime "lockgate/pkg/platform/middleware/requesttime"
)

const (
	statusLocked   = "account_locked"
	statusUnlocked = "account_unlocked"

	errAccountNotFound = "account_not_found"
	errLockout         = "lockout_error"
)

type Handler struct {
	engine   *engine.Engine
	resolver engine.Resolver
	store    engine.Store
	gateway  *signedurl.Gateway
	config   *config.Config
	logger   *slog.Logger
}

func New(eng *engine.Engine, res engine.Resolver, store engine.Store, gateway *signedurl.Gateway, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		engine:   eng,
		resolver: res,
		store:    store,
		gateway:  gateway,
		config:   cfg,
		logger:   logger,
	}
}

// Register mounts the signed lockout routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gateway.Middleware)
		r.Get("/lockout/lock", h.HandleLock)
		r.Get("/lockout/unlock", h.HandleUnlock)
	})
}

// HandleLock implements GET /lockout/lock?identifier=...
// Reached via the signed link sent after a suspicious login.
func (h *Handler) HandleLock(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")

	subject, err := h.resolver.Resolve(r.Context(), identifier)
	if err != nil {
		h.logger.Error("lock link: subject resolution failed",
			"identifier", identifier,
			"error", err,
		)
		h.redirect(w, r, "error", errLockout)
		return
	}
	if subject == nil {
		h.redirect(w, r, "error", errAccountNotFound)
		return
	}

	reason := "locked_via_link"
	lock := h.engine.Lock(r.Context(), subject, models.LockOptions{
		Reason: &reason,
		Meta: map[string]any{
			"identifier": identifier,
		},
	})
	if lock == nil {
		h.redirect(w, r, "error", errLockout)
		return
	}

	// Locking succeeded; the notification is best-effort.
	if err := h.engine.SendLockedNotification(r.Context(), events.EntityLocked{
		Identifier: identifier,
		Context:    models.RequestContextFromHTTP(r),
	}); err != nil {
		h.logger.Warn("lock notification failed", "identifier", identifier, "error", err)
	}

	h.logger.Info("account locked via signed link", "identifier", identifier)
	h.redirect(w, r, "status", statusLocked)
}

// HandleUnlock implements GET /lockout/unlock?identifier=...
// Reached via the signed link in the lockout notification.
func (h *Handler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")

	subject, err := h.resolver.Resolve(r.Context(), identifier)
	if err != nil {
		h.logger.Error("unlock link: subject resolution failed",
			"identifier", identifier,
			"error", err,
		)
		h.redirect(w, r, "error", errLockout)
		return
	}
	if subject == nil {
		// The account may have been renamed or removed since the link was
		// minted; the active lock itself still names the subject.
		subject = h.subjectFromActiveLock(r, identifier)
	}
	if subject == nil {
		h.redirect(w, r, "error", errAccountNotFound)
		return
	}

	reason := "unlocked_via_link"
	lock := h.engine.Unlock(r.Context(), subject, models.UnlockOptions{
		Reason:  &reason,
		Actor:   identifier,
		Trigger: models.UnlockTriggerSignedLink,
		Context: models.RequestContextFromHTTP(r),
	})
	if lock == nil {
		// Either no active lock remains or persistence failed; the link
		// holder gets the generic outcome, not an internal error page.
		h.redirect(w, r, "error", errLockout)
		return
	}
	h.logger.Info("account unlocked via signed link",
		"identifier", identifier,
		"unlocked_at", requesttime.Now(r.Context()),
	)
	h.redirect(w, r, "status", statusUnlocked)
}

// subjectFromActiveLock recovers the subject reference from the active lock
// whose meta carries the identifier. Returns nil when no such lock exists or
// the lookup fails.
func (h *Handler) subjectFromActiveLock(r *http.Request, identifier string) models.Subject {
	lock, err := h.store.FindActiveLockByIdentifier(r.Context(), identifier)
	if err != nil {
		h.logger.Error("unlock link: active lock lookup failed",
			"identifier", identifier,
			"error", err,
		)
		return nil
	}
	if lock == nil {
		return nil
	}
	return models.BasicSubject{
		SubjectKind: lock.Subject.Kind,
		SubjectID:   lock.Subject.ID,
		Identifier:  identifier,
	}
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, key, value string) {
	target, err := url.Parse(h.config.RedirectURL)
	if err != nil {
		target = &url.URL{Path: "/login"}
	}
	q := target.Query()
	q.Set(key, value)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}
