// Package middleware guards login and authenticated routes against
// locked-out subjects. The guard fails open: an infrastructure error during
// the check must never turn into a denial of service for legitimate logins.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"lockgate/internal/lockout/config"
	"lockgate/internal/lockout/engine"
	"lockgate/internal/lockout/metrics"
	"lockgate/internal/lockout/models"
	"lockgate/internal/platform/privacy"
	dErrors "lockgate/pkg/domain-errors"
	"lockgate/pkg/platform/httputil"
)

// IdentifierExtractor pulls the candidate login identifier out of a request.
// Empty string means the request carries no identifier and passes unchecked.
type IdentifierExtractor func(r *http.Request) string

// FormIdentifier extracts the identifier from the form or query value of the
// configured login field. It is the default extractor.
func FormIdentifier(field string) IdentifierExtractor {
	return func(r *http.Request) string {
		if v := r.FormValue(field); v != "" {
			return v
		}
		return r.URL.Query().Get(field)
	}
}

type subjectContextKey struct{}

// WithSubject stores an authenticated subject on the context for
// BlockLockedSubject to check.
func WithSubject(ctx context.Context, subject models.Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (models.Subject, bool) {
	subject, ok := ctx.Value(subjectContextKey{}).(models.Subject)
	return subject, ok
}

// Guard wraps routes with lockout checks.
type Guard struct {
	engine  *engine.Engine
	store   engine.Store
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type GuardOption func(*Guard)

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = m
	}
}

func NewGuard(eng *engine.Engine, store engine.Store, cfg *config.Config, opts ...GuardOption) *Guard {
	g := &Guard{
		engine: eng,
		store:  store,
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequireNotLocked denies requests whose login identifier is locked out,
// checking the persistent lock first and the attempt counter second. Requests
// without an identifier pass; so do requests whose checks error.
func (g *Guard) RequireNotLocked(extract IdentifierExtractor) func(http.Handler) http.Handler {
	if extract == nil {
		extract = FormIdentifier(g.config.LoginField)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := extract(r)
			if identifier == "" {
				next.ServeHTTP(w, r)
				return
			}
			if g.identifierLocked(r.Context(), identifier) {
				g.deny(w, r, identifier)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BlockLockedSubject denies authenticated requests whose context subject has
// an active persistent lock. Routes without a context subject pass.
func (g *Guard) BlockLockedSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := SubjectFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if g.engine.HasActiveLock(r.Context(), subject) {
			g.deny(w, r, subject.LockIdentifier())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) identifierLocked(ctx context.Context, identifier string) bool {
	lock, err := g.store.FindActiveLockByIdentifier(ctx, identifier)
	if err != nil {
		g.checkFailed(identifier, err)
	} else if lock != nil {
		return true
	}

	blocked, err := g.engine.HasTooManyAttempts(ctx, identifier)
	if err != nil {
		g.checkFailed(identifier, err)
		return false
	}
	return blocked
}

func (g *Guard) checkFailed(identifier string, err error) {
	g.logger.Error("lockout check failed, allowing request",
		"identifier", identifier,
		"error", err,
	)
	if g.metrics != nil {
		g.metrics.GuardCheckErrors.Inc()
	}
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, identifier string) {
	g.logger.Info("request denied for locked identifier",
		"identifier", identifier,
		"ip", privacy.AnonymizeIP(models.RequestContextFromHTTP(r).IP),
	)
	if g.metrics != nil {
		g.metrics.GuardDenials.Inc()
	}
	httputil.WriteError(w, dErrors.New(dErrors.CodeLocked, "lockout.account_locked"))
}
