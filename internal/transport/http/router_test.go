package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	audithandler "repairhub/internal/audit/handler"
	authhandler "repairhub/internal/auth/handler"
	"repairhub/internal/auth/models"
	authservice "repairhub/internal/auth/service"
	"repairhub/internal/auth/store/revocation"
	"repairhub/internal/cors"
	jwttoken "repairhub/internal/jwt_token"
	"repairhub/internal/platform/metrics"
	rlhandler "repairhub/internal/ratelimit/handler"
	rlmw "repairhub/internal/ratelimit/middleware"
	rlmodels "repairhub/internal/ratelimit/models"
	"repairhub/internal/ratelimit/service"
	"repairhub/internal/ratelimit/store/window"
	"repairhub/internal/secret"
	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/platform/audit/publisher"
	"repairhub/pkg/platform/audit/store/memory"
	"repairhub/pkg/testutil"
)

// =============================================================================
// Router Test Suite
// =============================================================================
// Justification for unit tests: the router decides gate order and which
// routes need a token and the admin role; each is exercised end to end with
// in-memory backends.

const (
	origin   = "https://console.repairhub.example"
	email    = "ops@repairhub.example"
	password = "correct horse battery staple"
)

type RouterSuite struct {
	suite.Suite
	hash      string
	store     *memory.InMemoryStore
	publisher *publisher.Publisher
	tokens    *jwttoken.JWTService
	router    http.Handler
	healthErr error
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupSuite() {
	hash, err := secret.Hash(password)
	s.Require().NoError(err)
	s.hash = hash
}

func (s *RouterSuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.healthErr = nil

	s.store = memory.NewInMemoryStore(audit.DefaultRetention)
	p, err := publisher.NewPublisher(s.store, publisher.WithLogger(logger))
	s.Require().NoError(err)
	s.Require().NoError(p.Initialize(ctx))
	s.publisher = p

	s.tokens, err = jwttoken.NewJWTService([]byte(strings.Repeat("k", 32)), jwttoken.DefaultIssuer, jwttoken.DefaultAudience)
	s.Require().NoError(err)
	trl := revocation.NewInMemoryTRL()

	authSvc, err := authservice.New([]models.Operator{{ID: "ops-1", Email: email, Role: "admin", PasswordHash: s.hash}},
		s.tokens, trl, p, authservice.WithLogger(logger))
	s.Require().NoError(err)

	counters := window.NewInMemoryStore()
	apiLimiter, err := service.New(counters, rlmodels.Policy{Name: "api", Window: time.Minute, MaxRequests: 50})
	s.Require().NoError(err)
	authLimiter, err := service.New(counters, rlmodels.Policy{Name: "auth", Window: time.Minute, MaxRequests: 3})
	s.Require().NoError(err)

	allow, err := cors.ParseAllowList([]string{origin})
	s.Require().NoError(err)
	m := metrics.New()

	s.router = NewRouter(Deps{
		Logger:         logger,
		Metrics:        m,
		CORS:           cors.NewGate(allow, logger, cors.WithRegisterer(prometheus.NewRegistry())),
		APILimit:       rlmw.New(apiLimiter, logger, rlmw.WithAuditPublisher(p)),
		AuthLimit:      rlmw.New(authLimiter, logger, rlmw.WithAuditPublisher(p)),
		Tokens:         s.tokens.MiddlewareValidator(),
		Revocations:    trl,
		Auth:           authhandler.New(authSvc, logger),
		Audit:          audithandler.New(p, logger),
		RateLimitAdmin: rlhandler.New([]rlhandler.Resetter{apiLimiter, authLimiter}, logger, rlhandler.WithAuditPublisher(p)),
		Health: map[string]HealthCheck{
			"audit": func(context.Context) error { return s.healthErr },
		},
	})
}

func (s *RouterSuite) do(req *http.Request) *http.Response {
	req = testutil.WithOrigin(req, origin)
	rr := testutil.DoRequest(s.router, req)
	return rr.Result()
}

func (s *RouterSuite) login(pass string) *http.Response {
	return s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": pass,
	}))
}

func (s *RouterSuite) token() string {
	resp := s.login(password)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var body models.LoginResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Require().NotEmpty(body.AccessToken)
	return body.AccessToken
}

func (s *RouterSuite) TestHealthIsExemptFromCORS() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))
	s.Equal(http.StatusOK, rr.Code)

	s.healthErr = errors.New("down")
	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))
	s.Equal(http.StatusServiceUnavailable, rr.Code)
	testutil.AssertJSONContains(s.T(), rr, "status", "degraded")
}

func (s *RouterSuite) TestForeignOriginIsRejectedBeforeLogin() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
	req.Header.Set("Origin", "https://evil.example")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "origin_not_permitted")
	events, err := s.store.Snapshot(context.Background())
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *RouterSuite) TestAdminRoutesRequireToken() {
	resp := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit"))
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *RouterSuite) TestAdminRoutesRequireAdminRole() {
	tok, _, err := s.tokens.GenerateToken("support-1", "support", time.Minute)
	s.Require().NoError(err)
	req := testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit")
	req = testutil.WithBearer(req, tok)
	resp := s.do(req)
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *RouterSuite) TestLoginThenQueryTrail() {
	tok := s.token()

	req := testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit?action=auth")
	req = testutil.WithBearer(req, tok)
	resp := s.do(req)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(origin, resp.Header.Get("Access-Control-Allow-Origin"))

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), `"action":"auth.login"`)
}

func (s *RouterSuite) TestLogoutRevokesToken() {
	tok := s.token()

	req := testutil.NewRequest(s.T(), http.MethodPost, "/auth/logout")
	req = testutil.WithBearer(req, tok)
	resp := s.do(req)
	resp.Body.Close()
	s.Require().Equal(http.StatusNoContent, resp.StatusCode)

	req = testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit")
	req = testutil.WithBearer(req, tok)
	resp = s.do(req)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *RouterSuite) TestLoginIsRateLimitedAndAuditedOnce() {
	for range 3 {
		resp := s.login("wrong")
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	}
	for range 2 {
		resp := s.login("wrong")
		resp.Body.Close()
		s.Equal(http.StatusTooManyRequests, resp.StatusCode)
		s.NotEmpty(resp.Header.Get("Retry-After"))
	}

	events, err := s.store.Snapshot(context.Background())
	s.Require().NoError(err)
	var exceeded int
	for _, e := range events {
		if e.Action == audit.ActionRateLimitExceeded {
			exceeded++
		}
	}
	s.Equal(1, exceeded)
}
