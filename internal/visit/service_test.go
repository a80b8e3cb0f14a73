package visit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse/internal/host"
	"gatehouse/internal/notify"
	id "gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/requestcontext"
	"gatehouse/pkg/testutil"
)

// captureNotifier records dispatched events for assertions.
type captureNotifier struct {
	mu        sync.Mutex
	arrivals  []notify.Event
	decisions []notify.Event
}

func (c *captureNotifier) HostArrival(_ context.Context, event notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arrivals = append(c.arrivals, event)
}

func (c *captureNotifier) VisitorDecision(_ context.Context, event notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions = append(c.decisions, event)
}

func (c *captureNotifier) arrivalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.arrivals)
}

func (c *captureNotifier) decisionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.decisions)
}

// sequenceIssuer returns scripted tokens before delegating to the real
// issuer, to force insert collisions.
type sequenceIssuer struct {
	mu     sync.Mutex
	queued []string
	real   RandomTokenIssuer
}

func (s *sequenceIssuer) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queued) > 0 {
		next := s.queued[0]
		s.queued = s.queued[1:]
		return next
	}
	return s.real.Generate()
}

func (s *sequenceIssuer) Bind(v *Visit, hostName string) Artifact {
	return s.real.Bind(v, hostName)
}

type serviceFixture struct {
	service  *Service
	visits   *InMemory
	hosts    *host.InMemory
	notifier *captureNotifier
	issuer   *sequenceIssuer

	hostID    id.HostID
	reception requestcontext.ActingIdentity
	owner     requestcontext.ActingIdentity
	now       time.Time
	ctx       context.Context
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		visits:   NewInMemory(),
		hosts:    host.NewInMemory(),
		notifier: &captureNotifier{},
		issuer:   &sequenceIssuer{},
		hostID:   id.NewHostID(),
		now:      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.ctx = requestcontext.WithTime(context.Background(), f.now)
	f.reception = testutil.ReceptionIdentity()
	f.owner = testutil.HostIdentity(f.hostID)

	require.NoError(t, f.hosts.Create(f.ctx, &host.Host{
		ID:        f.hostID,
		Name:      "Sam Host",
		Company:   "Acme",
		Email:     "sam@acme.example",
		Site:      id.LocationMarina50,
		Active:    true,
		CreatedAt: f.now.Add(-24 * time.Hour),
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewService(f.visits, f.hosts, f.issuer, f.notifier, logger)
	return f
}

func (f *serviceFixture) walkIn(t *testing.T) *CreatedVisit {
	t.Helper()
	created, err := f.service.CreateWalkIn(f.ctx, CreateWalkInRequest{
		HostID:      f.hostID,
		VisitorName: "Jordan Reyes",
		Purpose:     "Meeting",
		Location:    "Barwa Towers",
	}, f.reception)
	require.NoError(t, err)
	return created
}

func (f *serviceFixture) preRegister(t *testing.T, email string) *CreatedVisit {
	t.Helper()
	expected := f.now.Add(48 * time.Hour)
	created, err := f.service.PreRegister(f.ctx, PreRegisterRequest{
		VisitorName:  "Ada Visitor",
		VisitorEmail: email,
		Purpose:      "Interview",
		ExpectedDate: &expected,
	}, f.owner)
	require.NoError(t, err)
	return created
}

func TestCreateWalkIn(t *testing.T) {
	t.Run("creates a checked-in visit with token, audit event, and host notification", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.walkIn(t)

		v := created.Visit
		assert.Equal(t, StatusCheckedIn, v.Status)
		require.NotNil(t, v.CheckInAt)
		assert.Equal(t, f.now, *v.CheckInAt)
		assert.Nil(t, v.CheckOutAt)
		assert.Len(t, v.SessionToken, 32)
		assert.Equal(t, id.LocationBarwaTowers, v.Location)
		assert.Equal(t, v.SessionToken, created.Artifact.Token)
		assert.Equal(t, "Sam Host", created.Artifact.Host)

		events, err := f.visits.ListCheckEvents(f.ctx, v.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, CheckEventIn, events[0].Type)
		require.NotNil(t, events[0].ActorID)
		assert.Equal(t, f.reception.UserID, *events[0].ActorID)

		assert.Equal(t, 1, f.notifier.arrivalCount())
	})

	t.Run("fails with InvalidReference for an unknown host", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.service.CreateWalkIn(f.ctx, CreateWalkInRequest{
			HostID:      id.NewHostID(),
			VisitorName: "Jordan",
		}, f.reception)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidReference))
	})

	t.Run("fails with InvalidReference for an inactive host and creates nothing", func(t *testing.T) {
		f := newServiceFixture(t)
		inactive := id.NewHostID()
		require.NoError(t, f.hosts.Create(f.ctx, &host.Host{
			ID: inactive, Name: "Gone", Site: id.LocationElement, Active: false, CreatedAt: f.now,
		}))

		_, err := f.service.CreateWalkIn(f.ctx, CreateWalkInRequest{
			HostID:      inactive,
			VisitorName: "Jordan",
		}, f.reception)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidReference))

		active, err := f.visits.ListActive(f.ctx, "")
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("fails with InvalidReference for a soft-deleted host", func(t *testing.T) {
		f := newServiceFixture(t)
		deleted := id.NewHostID()
		deletedAt := f.now.Add(-time.Hour)
		require.NoError(t, f.hosts.Create(f.ctx, &host.Host{
			ID: deleted, Name: "Left", Site: id.LocationElement, Active: true,
			CreatedAt: f.now, DeletedAt: &deletedAt,
		}))

		_, err := f.service.CreateWalkIn(f.ctx, CreateWalkInRequest{
			HostID:      deleted,
			VisitorName: "Jordan",
		}, f.reception)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidReference))
	})

	t.Run("rejects a missing visitor name", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.service.CreateWalkIn(f.ctx, CreateWalkInRequest{HostID: f.hostID}, f.reception)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("recovers from a token collision without surfacing it", func(t *testing.T) {
		f := newServiceFixture(t)
		first := f.walkIn(t)

		// Script the next generation to collide with the existing token.
		f.issuer.queued = []string{first.Visit.SessionToken}

		second, err := f.service.CreateWalkIn(f.ctx, CreateWalkInRequest{
			HostID:      f.hostID,
			VisitorName: "Second Visitor",
		}, f.reception)
		require.NoError(t, err)
		assert.NotEqual(t, first.Visit.SessionToken, second.Visit.SessionToken)
	})

	t.Run("requires an authenticated caller", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.service.CreateWalkIn(f.ctx, CreateWalkInRequest{
			HostID: f.hostID, VisitorName: "Jordan",
		}, requestcontext.ActingIdentity{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestPreRegister(t *testing.T) {
	t.Run("creates a pending visit with expected date and the host's own site", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "ada@visitor.example")

		v := created.Visit
		assert.Equal(t, StatusPendingApproval, v.Status)
		require.NotNil(t, v.ExpectedDate)
		assert.Nil(t, v.CheckInAt)
		assert.Equal(t, id.LocationMarina50, v.Location, "location defaults from the host's site")
		require.NotNil(t, v.PreRegisteredByUserID)
		assert.Equal(t, f.owner.UserID, *v.PreRegisteredByUserID)
		assert.Len(t, v.SessionToken, 32)

		events, err := f.visits.ListCheckEvents(f.ctx, v.ID)
		require.NoError(t, err)
		assert.Empty(t, events, "pre-registration has no check events")
		assert.Equal(t, 0, f.notifier.arrivalCount())
	})

	t.Run("honors an explicit location", func(t *testing.T) {
		f := newServiceFixture(t)
		created, err := f.service.PreRegister(f.ctx, PreRegisterRequest{
			VisitorName: "Ada",
			Location:    "Element mall",
		}, f.owner)
		require.NoError(t, err)
		assert.Equal(t, id.LocationElement, created.Visit.Location)
	})

	t.Run("fails with Forbidden when the caller has no host account", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.service.PreRegister(f.ctx, PreRegisterRequest{VisitorName: "Ada"}, f.reception)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func TestApprove(t *testing.T) {
	t.Run("owner approval stamps ApprovedAt and notifies the visitor", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "ada@visitor.example")

		v, err := f.service.Approve(f.ctx, created.Visit.ID, f.owner)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, v.Status)
		require.NotNil(t, v.ApprovedAt)
		assert.Equal(t, f.now, *v.ApprovedAt)
		assert.Equal(t, 1, f.notifier.decisionCount())
	})

	t.Run("skips visitor notification when no email was given", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "")

		_, err := f.service.Approve(f.ctx, created.Visit.ID, f.owner)
		require.NoError(t, err)
		assert.Equal(t, 0, f.notifier.decisionCount())
	})

	t.Run("fails with Forbidden for a different host and leaves the visit pending", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "")

		stranger := requestcontext.ActingIdentity{
			UserID: id.NewUserID(),
			HostID: id.NewHostID(),
			Role:   requestcontext.RoleHost,
		}
		_, err := f.service.Approve(f.ctx, created.Visit.ID, stranger)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

		stored, err := f.visits.FindByID(f.ctx, created.Visit.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPendingApproval, stored.Status)
		assert.Nil(t, stored.ApprovedAt)
	})

	t.Run("ownership is checked before status, so Forbidden wins on settled visits", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "")
		_, err := f.service.Approve(f.ctx, created.Visit.ID, f.owner)
		require.NoError(t, err)

		stranger := requestcontext.ActingIdentity{
			UserID: id.NewUserID(), HostID: id.NewHostID(), Role: requestcontext.RoleHost,
		}
		_, err = f.service.Approve(f.ctx, created.Visit.ID, stranger)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("fails with InvalidStateTransition when not pending", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "")
		_, err := f.service.Approve(f.ctx, created.Visit.ID, f.owner)
		require.NoError(t, err)

		_, err = f.service.Approve(f.ctx, created.Visit.ID, f.owner)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("fails with NotFound for an unknown visit", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.service.Approve(f.ctx, id.NewVisitID(), f.owner)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestReject(t *testing.T) {
	t.Run("owner rejection stores the reason", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "")

		v, err := f.service.Reject(f.ctx, created.Visit.ID, f.owner, "host unavailable")
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, v.Status)
		require.NotNil(t, v.RejectedAt)
		assert.Equal(t, "host unavailable", v.RejectionReason)
	})

	t.Run("fails with Forbidden for a non-owner", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "")

		stranger := requestcontext.ActingIdentity{
			UserID: id.NewUserID(), HostID: id.NewHostID(), Role: requestcontext.RoleHost,
		}
		_, err := f.service.Reject(f.ctx, created.Visit.ID, stranger, "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("rejected is terminal: no later approve succeeds", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "")
		_, err := f.service.Reject(f.ctx, created.Visit.ID, f.owner, "")
		require.NoError(t, err)

		_, err = f.service.Approve(f.ctx, created.Visit.ID, f.owner)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func TestConfirmArrival(t *testing.T) {
	t.Run("checks in an approved visit, appends the audit event, notifies the host", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "")
		_, err := f.service.Approve(f.ctx, created.Visit.ID, f.owner)
		require.NoError(t, err)

		v, err := f.service.ConfirmArrival(f.ctx, created.Visit.SessionToken, f.reception)
		require.NoError(t, err)
		assert.Equal(t, StatusCheckedIn, v.Status)
		require.NotNil(t, v.CheckInAt)

		events, err := f.visits.ListCheckEvents(f.ctx, v.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, CheckEventIn, events[0].Type)
		assert.Equal(t, 1, f.notifier.arrivalCount())
	})

	t.Run("fails with InvalidStateTransition for a pending visit", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.preRegister(t, "")

		_, err := f.service.ConfirmArrival(f.ctx, created.Visit.SessionToken, f.reception)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func TestCheckout(t *testing.T) {
	t.Run("checks out exactly once; the second scan reports already checked out", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.walkIn(t)
		token := created.Visit.SessionToken

		v, err := f.service.Checkout(f.ctx, token, f.reception)
		require.NoError(t, err)
		assert.Equal(t, StatusCheckedOut, v.Status)
		require.NotNil(t, v.CheckOutAt)

		_, err = f.service.Checkout(f.ctx, token, f.reception)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.Contains(t, err.Error(), "already checked out")

		events, err := f.visits.ListCheckEvents(f.ctx, v.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, CheckEventIn, events[0].Type)
		assert.Equal(t, CheckEventOut, events[1].Type)
		assert.False(t, events[1].OccurredAt.Before(events[0].OccurredAt))
	})

	t.Run("accepts scanner input shapes", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.walkIn(t)

		v, err := f.service.Checkout(f.ctx,
			"https://gate.example.com/verify?token="+created.Visit.SessionToken, f.reception)
		require.NoError(t, err)
		assert.Equal(t, StatusCheckedOut, v.Status)
	})

	t.Run("fails with NotFound for an unknown token", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.service.Checkout(f.ctx, "ffffffffffffffffffffffffffffffff", f.reception)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("two simultaneous checkouts succeed exactly once", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.walkIn(t)
		token := created.Visit.SessionToken

		const callers = 20
		var wg sync.WaitGroup
		var successes atomic.Int32
		var stateFailures atomic.Int32

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.service.Checkout(f.ctx, token, f.reception)
				switch {
				case err == nil:
					successes.Add(1)
				case dErrors.HasCode(err, dErrors.CodeInvalidState):
					stateFailures.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), successes.Load())
		assert.Equal(t, int32(callers-1), stateFailures.Load())

		events, err := f.visits.ListCheckEvents(f.ctx, created.Visit.ID)
		require.NoError(t, err)
		assert.Len(t, events, 2, "one CHECK_IN plus exactly one CHECK_OUT")
	})
}

func TestReadQueries(t *testing.T) {
	t.Run("GetByToken resolves artifact input", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.walkIn(t)

		v, err := f.service.GetByToken(f.ctx, created.Artifact.Encode())
		require.NoError(t, err)
		assert.Equal(t, created.Visit.ID, v.ID)
	})

	t.Run("Active lists only checked-in visits, filtered by location", func(t *testing.T) {
		f := newServiceFixture(t)
		created := f.walkIn(t)
		f.preRegister(t, "")

		active, err := f.service.Active(f.ctx, "")
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, created.Visit.ID, active[0].ID)

		none, err := f.service.Active(f.ctx, "marina 50 tower")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("History is bounded by the configured page size", func(t *testing.T) {
		f := newServiceFixture(t)
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		small := NewService(f.visits, f.hosts, f.issuer, f.notifier, logger, WithHistoryLimit(2))

		for i := 0; i < 5; i++ {
			f.walkIn(t)
		}
		page, err := small.History(f.ctx, HistoryFilter{})
		require.NoError(t, err)
		assert.Len(t, page, 2)
	})

	t.Run("PendingForHost requires a host account", func(t *testing.T) {
		f := newServiceFixture(t)
		f.preRegister(t, "")

		pending, err := f.service.PendingForHost(f.ctx, f.owner)
		require.NoError(t, err)
		assert.Len(t, pending, 1)

		_, err = f.service.PendingForHost(f.ctx, f.reception)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func TestPreRegisteredLifecycle(t *testing.T) {
	f := newServiceFixture(t)

	testutil.Given(t, "a host pre-registers a visitor", func(t *testing.T) {
		created := f.preRegister(t, "ada@visitor.example")
		token := created.Visit.SessionToken

		testutil.When(t, "the host approves and the visitor arrives", func(t *testing.T) {
			_, err := f.service.Approve(f.ctx, created.Visit.ID, f.owner)
			require.NoError(t, err)

			arrived, err := f.service.ConfirmArrival(f.ctx, token, f.reception)
			require.NoError(t, err)
			require.Equal(t, StatusCheckedIn, arrived.Status)

			testutil.Then(t, "checkout closes the visit with a complete audit trail", func(t *testing.T) {
				done, err := f.service.Checkout(f.ctx, token, f.reception)
				require.NoError(t, err)
				assert.Equal(t, StatusCheckedOut, done.Status)

				events, err := f.service.CheckEvents(f.ctx, done.ID)
				require.NoError(t, err)
				require.Len(t, events, 2)
				assert.Equal(t, CheckEventIn, events[0].Type)
				assert.Equal(t, CheckEventOut, events[1].Type)
			})
		})
	})
}
