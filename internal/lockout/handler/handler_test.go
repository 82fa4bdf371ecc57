package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"lockgate/internal/lockout/config"
	"lockgate/internal/lockout/counter"
	"lockgate/internal/lockout/engine"
	"lockgate/internal/lockout/models"
	"lockgate/internal/lockout/resolver"
	"lockgate/internal/lockout/signedurl"
	"lockgate/internal/lockout/store"
)

const testIdentifier = "user@example.test"

type HandlerSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.MemoryStore
	engine  *engine.Engine
	gateway *signedurl.Gateway
	router  chi.Router
	subject models.BasicSubject
	config  *config.Config
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.config = config.DefaultConfig()
	s.config.MaxAttempts = 2
	s.gateway = signedurl.New("https://example.test", []byte("test-secret"))

	s.subject = models.BasicSubject{
		SubjectKind: "user",
		SubjectID:   uuid.New(),
		Identifier:  testIdentifier,
	}
	static := resolver.NewStatic()
	static.Add(s.subject)
	registry := resolver.NewRegistry("user")
	registry.Register("user", static)

	var err error
	s.engine, err = engine.New(counter.NewMemory(time.Minute), s.store,
		engine.WithConfig(s.config),
		engine.WithResolver(registry),
	)
	s.Require().NoError(err)

	h := New(s.engine, registry, s.store, s.gateway, s.config, slog.Default())
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) signedURL(action, identifier string) string {
	raw, err := s.gateway.Issue(action, url.Values{"identifier": {identifier}}, time.Hour)
	s.Require().NoError(err)
	return raw
}

func (s *HandlerSuite) get(target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) redirectQuery(rec *httptest.ResponseRecorder) url.Values {
	s.Require().Equal(http.StatusSeeOther, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	s.Require().NoError(err)
	return location.Query()
}

func (s *HandlerSuite) TestUnsignedRequestRejected() {
	rec := s.get("https://example.test/lockout/unlock?identifier=" + testIdentifier)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestLockCreatesRecordAndRedirects() {
	rec := s.get(s.signedURL("lock", testIdentifier))

	q := s.redirectQuery(rec)
	s.Equal("account_locked", q.Get("status"))

	locks := s.store.Locks()
	s.Require().Len(locks, 1)
	s.Require().NotNil(locks[0].Reason)
	s.Equal("locked_via_link", *locks[0].Reason)
	s.True(s.engine.HasActiveLock(s.ctx, s.subject))
}

func (s *HandlerSuite) TestLockUnknownIdentifier() {
	rec := s.get(s.signedURL("lock", "nobody@example.test"))

	q := s.redirectQuery(rec)
	s.Equal("account_not_found", q.Get("error"))
	s.Empty(s.store.Locks())
}

func (s *HandlerSuite) TestUnlockReleasesActiveLock() {
	reason := "too_many_attempts"
	_, err := s.store.CreateLock(s.ctx, s.subject.Ref(), models.LockOptions{
		Reason: &reason,
		Meta:   map[string]any{"identifier": testIdentifier},
	})
	s.Require().NoError(err)

	rec := s.get(s.signedURL("unlock", testIdentifier))

	q := s.redirectQuery(rec)
	s.Equal("account_unlocked", q.Get("status"))
	s.False(s.engine.HasActiveLock(s.ctx, s.subject))

	locks := s.store.Locks()
	s.Require().Len(locks, 1)
	s.Require().NotNil(locks[0].UnlockedAt)
	s.Equal("unlocked_via_link", *locks[0].Reason)
}

func (s *HandlerSuite) TestUnlockFallsBackToActiveLockWhenUnresolvable() {
	// Lock a subject the resolver no longer knows about; the link must
	// still work because the lock's meta names the identifier.
	gone := models.BasicSubject{
		SubjectKind: "user",
		SubjectID:   uuid.New(),
		Identifier:  "renamed@example.test",
	}
	reason := "too_many_attempts"
	_, err := s.store.CreateLock(s.ctx, gone.Ref(), models.LockOptions{
		Reason: &reason,
		Meta:   map[string]any{"identifier": "renamed@example.test"},
	})
	s.Require().NoError(err)

	rec := s.get(s.signedURL("unlock", "renamed@example.test"))

	q := s.redirectQuery(rec)
	s.Equal("account_unlocked", q.Get("status"))
	s.False(s.engine.HasActiveLock(s.ctx, gone))
}

func (s *HandlerSuite) TestUnlockWithoutActiveLock() {
	rec := s.get(s.signedURL("unlock", testIdentifier))

	q := s.redirectQuery(rec)
	s.Equal("lockout_error", q.Get("error"))
}

func (s *HandlerSuite) TestExpiredLinkRejectedBeforeHandler() {
	raw, err := s.gateway.Issue("unlock", url.Values{"identifier": {testIdentifier}}, -time.Minute)
	s.Require().NoError(err)

	rec := s.get(raw)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Empty(s.store.Locks())
}
