//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "repairhub/pkg/platform/audit"
	txcontext "repairhub/pkg/platform/tx"
	"repairhub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())

	store, err := New(s.pg.Pool, WithRetention(5))
	s.Require().NoError(err)
	s.Require().NoError(store.Init(s.ctx))
	s.store = store
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "audit_events"))
}

func event(i int, ts time.Time) audit.Event {
	return audit.Event{
		ID:        fmt.Sprintf("evt-%03d", i),
		Timestamp: ts,
		Action:    audit.ActionPaymentRelease,
		UserID:    fmt.Sprintf("user-%d", i%2),
		Resource:  audit.ResourcePayment,
		Details:   audit.PaymentDetails{OrderID: fmt.Sprintf("ord-%d", i), Amount: 12.5}.Map(),
		Status:    audit.StatusSuccess,
	}
}

func (s *PostgresStoreSuite) TestInitIsIdempotent() {
	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			s.NoError(s.store.Init(s.ctx))
		})
	}
	wg.Wait()
}

func (s *PostgresStoreSuite) TestRetentionKeepsNewest() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 8 {
		s.Require().NoError(s.store.Append(s.ctx, event(i, base.Add(time.Duration(i)*time.Second))))
	}

	snapshot, err := s.store.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(snapshot, 5)
	s.Equal("evt-003", snapshot[0].ID)
	s.Equal("evt-007", snapshot[4].ID)
	s.Equal("ord-7", snapshot[4].Details["orderId"])
}

func (s *PostgresStoreSuite) TestQueryMatchesInMemoryEngine() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Two events share a timestamp so the tie-break is exercised.
	stamps := []time.Time{base, base.Add(time.Second), base.Add(time.Second), base.Add(2 * time.Second)}
	for i, ts := range stamps {
		s.Require().NoError(s.store.Append(s.ctx, event(i, ts)))
	}

	start := base.Add(time.Second)
	filters := []audit.Filter{
		{},
		{Action: "release"},
		{Action: "Release"},
		{UserID: "user-1"},
		{StartDate: &start},
		{EndDate: &start, Limit: 1},
	}

	snapshot, err := s.store.Snapshot(s.ctx)
	s.Require().NoError(err)
	for _, f := range filters {
		got, err := s.store.Query(s.ctx, f)
		s.Require().NoError(err)
		s.Equal(ids(audit.Query(snapshot, f)), ids(got), "filter %+v", f)
	}
}

func (s *PostgresStoreSuite) TestConcurrentAppendsRespectCap() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			s.NoError(s.store.Append(s.ctx, event(i, base)))
		})
	}
	wg.Wait()

	snapshot, err := s.store.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Len(snapshot, 5)
}

func (s *PostgresStoreSuite) TestAppendJoinsCallerTransaction() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tx, err := s.pg.Pool.Begin(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(txcontext.WithTx(s.ctx, tx), event(1, base)))
	s.Require().NoError(tx.Rollback(s.ctx))

	snapshot, err := s.store.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Empty(snapshot, "rolled back caller transaction discards the event")

	tx, err = s.pg.Pool.Begin(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(txcontext.WithTx(s.ctx, tx), event(2, base)))
	s.Require().NoError(tx.Commit(s.ctx))

	snapshot, err = s.store.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"evt-002"}, ids(snapshot))
}

func ids(events []audit.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
