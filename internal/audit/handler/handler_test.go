package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/platform/audit/publisher"
	"repairhub/pkg/platform/audit/store/memory"
	"repairhub/pkg/testutil"
)

// =============================================================================
// Audit Query Handler Test Suite
// =============================================================================
// Justification for unit tests: the handler owns query-parameter parsing and
// the field-level error contract; filtering itself is covered in the audit
// package.

type AuditHandlerSuite struct {
	suite.Suite
	router    chi.Router
	publisher *publisher.Publisher
	now       time.Time
}

func TestAuditHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuditHandlerSuite))
}

func (s *AuditHandlerSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := s.now
	p, err := publisher.NewPublisher(memory.NewInMemoryStore(audit.DefaultRetention),
		publisher.WithClock(func() time.Time {
			tick = tick.Add(time.Minute)
			return tick
		}),
	)
	s.Require().NoError(err)
	s.Require().NoError(p.Initialize(context.Background()))
	s.publisher = p

	s.router = chi.NewRouter()
	New(p, slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterAdmin(s.router)
}

func (s *AuditHandlerSuite) seed(action, user string) {
	_, err := s.publisher.Append(context.Background(), audit.Record{
		Action:   action,
		UserID:   user,
		Resource: audit.ResourceAuthentication,
		Status:   audit.StatusSuccess,
	})
	s.Require().NoError(err)
}

func (s *AuditHandlerSuite) get(query url.Values) *listResponse {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit?"+query.Encode()))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[listResponse](s.T(), rr)
}

func (s *AuditHandlerSuite) TestListsNewestFirst() {
	s.seed(audit.ActionAuthLogin, "u1")
	s.seed(audit.ActionAuthLogout, "u1")
	s.seed(audit.ActionPaymentRelease, "u2")

	resp := s.get(url.Values{})
	s.Equal(3, resp.Count)
	s.Equal(audit.DefaultQueryLimit, resp.Limit)
	s.Equal(audit.ActionPaymentRelease, resp.Events[0].Action)
	s.Equal(audit.ActionAuthLogin, resp.Events[2].Action)
}

func (s *AuditHandlerSuite) TestFiltersByActionUserAndLimit() {
	s.seed(audit.ActionAuthLogin, "u1")
	s.seed(audit.ActionAuthLogout, "u1")
	s.seed(audit.ActionAuthLogin, "u2")
	s.seed(audit.ActionPaymentRelease, "u1")

	resp := s.get(url.Values{"action": {"auth"}, "userId": {"u1"}})
	s.Equal(2, resp.Count)
	for _, e := range resp.Events {
		s.Contains(e.Action, "auth")
		s.Equal("u1", e.UserID)
	}

	resp = s.get(url.Values{"limit": {"1"}})
	s.Equal(1, resp.Count)
	s.Equal(audit.ActionPaymentRelease, resp.Events[0].Action)
}

func (s *AuditHandlerSuite) TestFiltersByInclusiveDateRange() {
	s.seed(audit.ActionAuthLogin, "u1")  // now+1m
	s.seed(audit.ActionAuthLogin, "u2")  // now+2m
	s.seed(audit.ActionAuthLogin, "u3")  // now+3m

	resp := s.get(url.Values{
		"startDate": {s.now.Add(2 * time.Minute).Format(time.RFC3339)},
		"endDate":   {s.now.Add(3 * time.Minute).Format(time.RFC3339)},
	})
	s.Equal(2, resp.Count)
	s.Equal("u3", resp.Events[0].UserID)
	s.Equal("u2", resp.Events[1].UserID)
}

func (s *AuditHandlerSuite) TestMalformedParametersReturnFieldErrors() {
	q := url.Values{
		"startDate": {"yesterday"},
		"limit":     {"lots"},
	}
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit?"+q.Encode()))
	s.Equal(http.StatusBadRequest, rr.Code)

	body := testutil.UnmarshalResponse[fieldErrorBody](s.T(), rr)
	s.Equal("validation_error", body.Error)
	s.Contains(body.Fields, "startDate")
	s.Contains(body.Fields, "limit")
}

func (s *AuditHandlerSuite) TestQueryFailureIsInternal() {
	router := chi.NewRouter()
	New(failingQuerier{}, slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterAdmin(router)

	rr := testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit"))
	s.Equal(http.StatusInternalServerError, rr.Code)
	s.NotContains(rr.Body.String(), "disk on fire")
}

type fieldErrorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

type failingQuerier struct{}

func (failingQuerier) Query(context.Context, audit.Filter) ([]audit.Event, error) {
	return nil, errors.New("disk on fire")
}

func TestParseFilter(t *testing.T) {
	cases := []struct {
		name   string
		query  url.Values
		fields []string
	}{
		{"empty is valid", url.Values{}, nil},
		{"limit zero", url.Values{"limit": {"0"}}, []string{"limit"}},
		{"limit above max", url.Values{"limit": {"1001"}}, []string{"limit"}},
		{"end before start", url.Values{
			"startDate": {"2026-05-02T00:00:00Z"},
			"endDate":   {"2026-05-01T00:00:00Z"},
		}, []string{"endDate"}},
		{"bad end date", url.Values{"endDate": {"2026-13-01"}}, []string{"endDate"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, problems := ParseFilter(tc.query)
			if len(tc.fields) == 0 && !problems.Empty() {
				t.Fatalf("unexpected problems: %v", problems)
			}
			for _, f := range tc.fields {
				if _, ok := problems[f]; !ok {
					t.Fatalf("expected problem for %s, got %v", f, problems)
				}
			}
		})
	}
}
