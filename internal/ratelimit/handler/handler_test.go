package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"repairhub/internal/ratelimit/models"
	"repairhub/internal/ratelimit/service"
	"repairhub/internal/ratelimit/store/window"
	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/requestcontext"
)

// HandlerSuite uses real in-memory stores; handler tests validate HTTP
// concerns (parsing, response mapping) and the audit side effect.
type HandlerSuite struct {
	suite.Suite
	router    http.Handler
	limiter   *service.Limiter
	publisher *capturePublisher
}

type capturePublisher struct {
	records []audit.Record
}

func (p *capturePublisher) Append(_ context.Context, rec audit.Record) (audit.Event, error) {
	p.records = append(p.records, rec)
	return audit.Event{}, nil
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	limiter, err := service.New(window.NewInMemoryStore(), models.AuthPolicy())
	s.Require().NoError(err)
	s.limiter = limiter
	s.publisher = &capturePublisher{}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New([]Resetter{limiter}, logger, WithAuditPublisher(s.publisher))

	r := chi.NewRouter()
	h.RegisterAdmin(r)
	s.router = r
}

func (s *HandlerSuite) post(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/admin/rate-limit/reset", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(requestcontext.WithActor(req.Context(), "op-1", "admin"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestReset_InvalidJSON() {
	rec := s.post("not valid json")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestReset_MissingFields() {
	rec := s.post(`{"policy":" "}`)
	s.Require().Equal(http.StatusBadRequest, rec.Code)

	var body struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("validation_error", body.Error)
	s.Contains(body.Fields, "policy")
	s.Contains(body.Fields, "identifier")
}

func (s *HandlerSuite) TestReset_UnknownPolicy() {
	rec := s.post(`{"policy":"nope","identifier":"10.0.0.1"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestReset_ClearsCounterAndAudits() {
	ctx := context.Background()
	now := time.Now()
	for range models.AuthMaxRequests + 1 {
		_, err := s.limiter.Check(ctx, "10.0.0.1", now)
		s.Require().NoError(err)
	}

	rec := s.post(`{"policy":"auth","identifier":"10.0.0.1"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp models.ResetResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp.Reset)

	result, err := s.limiter.Check(ctx, "10.0.0.1", now)
	s.Require().NoError(err)
	s.True(result.Allowed)

	s.Require().Len(s.publisher.records, 1)
	s.Equal(audit.ActionRateLimitReset, s.publisher.records[0].Action)
	s.Equal("op-1", s.publisher.records[0].UserID)
	s.Equal("10.0.0.1", s.publisher.records[0].ResourceID)
}
