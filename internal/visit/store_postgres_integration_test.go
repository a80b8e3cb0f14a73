//go:build integration

package visit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatehouse/internal/host"
	id "gatehouse/pkg/domain"
	"gatehouse/pkg/platform/sentinel"
	"gatehouse/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	store  *Postgres
	hosts  *host.Postgres
	hostID id.HostID
	ctx    context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration suite in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetPostgres(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.hosts = host.NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "check_events", "visits", "hosts"))
	s.hostID = id.NewHostID()
	s.Require().NoError(s.hosts.Create(s.ctx, &host.Host{
		ID:        s.hostID,
		Name:      "Sam Host",
		Site:      id.LocationBarwaTowers,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}))
}

func (s *PostgresStoreSuite) newVisit(status Status, token string) *Visit {
	now := time.Now().UTC().Truncate(time.Microsecond)
	v := &Visit{
		ID:           id.NewVisitID(),
		SessionToken: token,
		VisitorName:  "Jordan Reyes",
		HostID:       s.hostID,
		Location:     id.LocationBarwaTowers,
		Status:       status,
		CreatedAt:    now,
	}
	if status == StatusCheckedIn {
		v.CheckInAt = &now
	}
	return v
}

func (s *PostgresStoreSuite) TestInsertAndFind() {
	v := s.newVisit(StatusCheckedIn, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	s.Require().NoError(s.store.Insert(s.ctx, v))

	byID, err := s.store.FindByID(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(v.SessionToken, byID.SessionToken)
	s.Equal(StatusCheckedIn, byID.Status)
	s.Require().NotNil(byID.CheckInAt)
	s.WithinDuration(*v.CheckInAt, *byID.CheckInAt, time.Millisecond)

	byToken, err := s.store.FindByToken(s.ctx, v.SessionToken)
	s.Require().NoError(err)
	s.Equal(v.ID, byToken.ID)

	_, err = s.store.FindByID(s.ctx, id.NewVisitID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestTokenUniqueConstraint() {
	first := s.newVisit(StatusCheckedIn, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	s.Require().NoError(s.store.Insert(s.ctx, first))

	dup := s.newVisit(StatusCheckedIn, first.SessionToken)
	err := s.store.Insert(s.ctx, dup)
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)

	// The failed insert must leave no row behind.
	_, err = s.store.FindByID(s.ctx, dup.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestExecuteValidatesBeforeMutating() {
	v := s.newVisit(StatusPendingApproval, "cccccccccccccccccccccccccccccccc")
	s.Require().NoError(s.store.Insert(s.ctx, v))

	now := time.Now().UTC()
	updated, err := s.store.Execute(s.ctx, v.ID,
		func(v *Visit) error { return v.CanApprove() },
		func(v *Visit) { v.ApplyApproval(now) },
	)
	s.Require().NoError(err)
	s.Equal(StatusApproved, updated.Status)
	s.Require().NotNil(updated.ApprovedAt)

	// A second approval must fail validation and leave the row untouched.
	_, err = s.store.Execute(s.ctx, v.ID,
		func(v *Visit) error { return v.CanApprove() },
		func(v *Visit) { v.ApplyApproval(now) },
	)
	s.Require().Error(err)

	stored, err := s.store.FindByID(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(StatusApproved, stored.Status)
}

func (s *PostgresStoreSuite) TestConcurrentCheckoutSingleWinner() {
	v := s.newVisit(StatusCheckedIn, "dddddddddddddddddddddddddddddddd")
	s.Require().NoError(s.store.Insert(s.ctx, v))

	const callers = 10
	var wg sync.WaitGroup
	results := make(chan error, callers)
	now := time.Now().UTC()

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.ExecuteByToken(s.ctx, v.SessionToken,
				func(v *Visit) error { return v.CanCheckOut() },
				func(v *Visit) { v.ApplyCheckOut(now) },
			)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		}
	}
	s.Equal(1, successes, "row lock must let exactly one checkout through")

	stored, err := s.store.FindByID(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(StatusCheckedOut, stored.Status)
	s.Require().NotNil(stored.CheckOutAt)
}

func (s *PostgresStoreSuite) TestListQueries() {
	active := s.newVisit(StatusCheckedIn, "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	s.Require().NoError(s.store.Insert(s.ctx, active))

	pending := s.newVisit(StatusPendingApproval, "ffffffffffffffffffffffffffffffff")
	pending.Location = id.LocationMarina50
	s.Require().NoError(s.store.Insert(s.ctx, pending))

	all, err := s.store.ListActive(s.ctx, "")
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(active.ID, all[0].ID)

	none, err := s.store.ListActive(s.ctx, id.LocationMarina50)
	s.Require().NoError(err)
	s.Empty(none)

	history, err := s.store.ListHistory(s.ctx, HistoryFilter{}, 10)
	s.Require().NoError(err)
	s.Len(history, 2)

	forHost, err := s.store.ListPendingForHost(s.ctx, s.hostID)
	s.Require().NoError(err)
	s.Require().Len(forHost, 1)
	s.Equal(pending.ID, forHost[0].ID)
}

func (s *PostgresStoreSuite) TestCheckEvents() {
	v := s.newVisit(StatusCheckedIn, "99999999999999999999999999999999")
	s.Require().NoError(s.store.Insert(s.ctx, v))

	actor := id.NewUserID()
	in := CheckEvent{VisitID: v.ID, Type: CheckEventIn, ActorID: &actor, OccurredAt: time.Now().UTC()}
	out := CheckEvent{VisitID: v.ID, Type: CheckEventOut, OccurredAt: time.Now().UTC().Add(time.Minute)}
	s.Require().NoError(s.store.AppendCheckEvent(s.ctx, in))
	s.Require().NoError(s.store.AppendCheckEvent(s.ctx, out))

	events, err := s.store.ListCheckEvents(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(CheckEventIn, events[0].Type)
	s.Require().NotNil(events[0].ActorID)
	s.Equal(actor, *events[0].ActorID)
	s.Equal(CheckEventOut, events[1].Type)
	s.Nil(events[1].ActorID)
}
