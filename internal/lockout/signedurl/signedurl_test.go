package signedurl

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "lockgate/pkg/domain-errors"
)

type SignedURLSuite struct {
	suite.Suite
	gateway *Gateway
}

func TestSignedURLSuite(t *testing.T) {
	suite.Run(t, new(SignedURLSuite))
}

func (s *SignedURLSuite) SetupTest() {
	s.gateway = New("https://example.test/", []byte("test-signing-secret"))
}

func (s *SignedURLSuite) issue(action string, params url.Values, ttl time.Duration) *url.URL {
	raw, err := s.gateway.Issue(action, params, ttl)
	s.Require().NoError(err)
	u, err := url.Parse(raw)
	s.Require().NoError(err)
	return u
}

func (s *SignedURLSuite) TestIssueValidRoundTrip() {
	u := s.issue("unlock", url.Values{"identifier": {"user@example.test"}}, time.Hour)

	s.Equal("/lockout/unlock", u.Path)
	s.Equal("example.test", u.Host)

	values, err := s.gateway.Validate(u, time.Now())
	s.Require().NoError(err)
	s.Equal("user@example.test", values.Get("identifier"))
	s.NotEmpty(values.Get("entropy"))
	s.NotEmpty(values.Get("expires"))
}

func (s *SignedURLSuite) TestEntropyMakesLinksUnique() {
	params := url.Values{"identifier": {"user@example.test"}}
	first, err := s.gateway.Issue("unlock", params, time.Hour)
	s.Require().NoError(err)
	second, err := s.gateway.Issue("unlock", params, time.Hour)
	s.Require().NoError(err)
	s.NotEqual(first, second)
}

func (s *SignedURLSuite) TestTamperingAnyParamInvalidates() {
	u := s.issue("unlock", url.Values{"identifier": {"user@example.test"}}, time.Hour)

	cases := []struct {
		name  string
		param string
		value string
	}{
		{"identifier", "identifier", "other@example.test"},
		{"expires", "expires", "9999999999"},
		{"entropy", "entropy", "00000000000000000000000000000000"},
		{"added param", "extra", "1"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			tampered := *u
			q := tampered.Query()
			q.Set(tc.param, tc.value)
			tampered.RawQuery = q.Encode()

			_, err := s.gateway.Validate(&tampered, time.Now())
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeLinkTampered))
		})
	}
}

func (s *SignedURLSuite) TestMissingSignature() {
	u := s.issue("unlock", nil, time.Hour)
	q := u.Query()
	q.Del("signature")
	u.RawQuery = q.Encode()

	_, err := s.gateway.Validate(u, time.Now())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeLinkTampered))
}

func (s *SignedURLSuite) TestExpiredLinkRejectedEvenWithValidSignature() {
	u := s.issue("unlock", url.Values{"identifier": {"user@example.test"}}, time.Hour)

	_, err := s.gateway.Validate(u, time.Now().Add(2*time.Hour))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeLinkExpired))
}

func (s *SignedURLSuite) TestWrongSecretRejected() {
	u := s.issue("lock", url.Values{"identifier": {"user@example.test"}}, time.Hour)

	other := New("https://example.test", []byte("different-secret"))
	_, err := other.Validate(u, time.Now())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeLinkTampered))
}

func (s *SignedURLSuite) TestMiddlewareBlocksInvalidRequests() {
	called := false
	handler := s.gateway.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "https://example.test/lockout/unlock?identifier=x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	s.Equal(http.StatusForbidden, rec.Code)
	s.False(called)
}

func (s *SignedURLSuite) TestMiddlewareReportsRejectionReason() {
	var reasons []string
	gateway := New("https://example.test", []byte("test-signing-secret"),
		WithRejectionHook(func(reason string) { reasons = append(reasons, reason) }),
	)
	handler := gateway.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "https://example.test/lockout/unlock?identifier=x", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	s.Equal([]string{"link_tampered"}, reasons)
}

func (s *SignedURLSuite) TestMiddlewarePassesValidRequests() {
	raw, err := s.gateway.Issue("unlock", url.Values{"identifier": {"user@example.test"}}, time.Hour)
	s.Require().NoError(err)

	called := false
	handler := s.gateway.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, raw, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	s.True(called)
}
