package visit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gatehouse/internal/host"
	"gatehouse/internal/notify"
	"gatehouse/internal/platform/metrics"
	id "gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/platform/sentinel"
	"gatehouse/pkg/requestcontext"
)

// tokenInsertAttempts bounds the regenerate-on-conflict loop. The store's
// unique constraint is the correctness mechanism; with 128-bit tokens a
// second conflict in a row means something is broken, not unlucky.
const tokenInsertAttempts = 3

// Service is the visit lifecycle state machine. All status mutation in the
// system goes through here; callers never write the store directly.
type Service struct {
	visits   Store
	hosts    host.Store
	issuer   TokenIssuer
	notifier notify.Dispatcher
	cache    *ActiveCache
	logger   *slog.Logger
	metrics  *metrics.Metrics

	historyLimit int
}

// NewService wires the lifecycle with explicit collaborators. cache and
// metrics may be nil; notifier must not be (use notify.Discard in tests).
func NewService(
	visits Store,
	hosts host.Store,
	issuer TokenIssuer,
	notifier notify.Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		visits:       visits,
		hosts:        hosts,
		issuer:       issuer,
		notifier:     notifier,
		logger:       logger,
		historyLimit: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithActiveCache attaches the Redis active-visits cache.
func WithActiveCache(c *ActiveCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithHistoryLimit overrides the maximum history page size.
func WithHistoryLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// CreateWalkInRequest carries the reception kiosk form.
type CreateWalkInRequest struct {
	HostID         id.HostID
	VisitorName    string
	VisitorCompany string
	VisitorPhone   string
	VisitorEmail   string
	Purpose        string
	Location       string
}

// PreRegisterRequest carries the host-side pre-registration form. Location
// is optional; empty defaults to the host's own site.
type PreRegisterRequest struct {
	VisitorName    string
	VisitorCompany string
	VisitorPhone   string
	VisitorEmail   string
	Purpose        string
	Location       string
	ExpectedDate   *time.Time
}

// CreatedVisit pairs a new visit with its scanner artifact.
type CreatedVisit struct {
	Visit    *Visit
	Artifact Artifact
}

// CreateWalkIn registers a visitor who is physically present and checks them
// in immediately: the visit is born CHECKED_IN with a fresh unique token,
// gets its CHECK_IN audit event, and the host is notified best-effort.
func (s *Service) CreateWalkIn(ctx context.Context, req CreateWalkInRequest, identity requestcontext.ActingIdentity) (*CreatedVisit, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	if err := validateVisitor(req.VisitorName, req.HostID); err != nil {
		return nil, err
	}

	h, err := s.availableHost(ctx, req.HostID)
	if err != nil {
		s.metrics.RecordTransition("create_walk_in", "failure")
		return nil, err
	}

	now := requestcontext.Now(ctx)
	v := &Visit{
		ID:             id.NewVisitID(),
		VisitorName:    strings.TrimSpace(req.VisitorName),
		VisitorCompany: strings.TrimSpace(req.VisitorCompany),
		VisitorPhone:   strings.TrimSpace(req.VisitorPhone),
		VisitorEmail:   strings.TrimSpace(req.VisitorEmail),
		HostID:         h.ID,
		Purpose:        strings.TrimSpace(req.Purpose),
		Location:       id.ParseLocation(req.Location),
		Status:         StatusCheckedIn,
		CreatedAt:      now,
		CheckInAt:      &now,
	}

	if err := s.insertWithFreshToken(ctx, v); err != nil {
		s.metrics.RecordTransition("create_walk_in", "failure")
		return nil, err
	}

	s.appendCheckEvent(ctx, v.ID, CheckEventIn, identity.UserID, now)
	s.cache.Invalidate(ctx, v.Location)
	s.metrics.RecordTransition("create_walk_in", "success")
	s.metrics.RecordVisitCreated("walk_in")

	s.notifier.HostArrival(ctx, notify.Event{
		VisitID:    v.ID,
		HostEmail:  h.Email,
		HostName:   h.Name,
		Visitor:    v.VisitorName,
		Company:    v.VisitorCompany,
		Purpose:    v.Purpose,
		OccurredAt: now,
	})

	return &CreatedVisit{Visit: v, Artifact: s.issuer.Bind(v, h.Name)}, nil
}

// PreRegister creates a PENDING_APPROVAL visit ahead of arrival on behalf of
// the acting user's own host account.
func (s *Service) PreRegister(ctx context.Context, req PreRegisterRequest, identity requestcontext.ActingIdentity) (*CreatedVisit, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	if !identity.HasHostAccount() {
		return nil, dErrors.New(dErrors.CodeForbidden, "pre-registration requires a host account")
	}
	if strings.TrimSpace(req.VisitorName) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "visitor name is required")
	}

	h, err := s.availableHost(ctx, identity.HostID)
	if err != nil {
		s.metrics.RecordTransition("pre_register", "failure")
		return nil, err
	}

	location := h.Site
	if strings.TrimSpace(req.Location) != "" {
		location = id.ParseLocation(req.Location)
	}

	now := requestcontext.Now(ctx)
	registeredBy := identity.UserID
	v := &Visit{
		ID:                    id.NewVisitID(),
		VisitorName:           strings.TrimSpace(req.VisitorName),
		VisitorCompany:        strings.TrimSpace(req.VisitorCompany),
		VisitorPhone:          strings.TrimSpace(req.VisitorPhone),
		VisitorEmail:          strings.TrimSpace(req.VisitorEmail),
		HostID:                h.ID,
		Purpose:               strings.TrimSpace(req.Purpose),
		Location:              location,
		Status:                StatusPendingApproval,
		ExpectedDate:          req.ExpectedDate,
		PreRegisteredByUserID: &registeredBy,
		CreatedAt:             now,
	}

	if err := s.insertWithFreshToken(ctx, v); err != nil {
		s.metrics.RecordTransition("pre_register", "failure")
		return nil, err
	}

	s.metrics.RecordTransition("pre_register", "success")
	s.metrics.RecordVisitCreated("pre_registered")

	return &CreatedVisit{Visit: v, Artifact: s.issuer.Bind(v, h.Name)}, nil
}

// Approve moves a pending visit to APPROVED. Only the owning host may
// approve; the visitor is notified by email when an address was given.
func (s *Service) Approve(ctx context.Context, visitID id.VisitID, identity requestcontext.ActingIdentity) (*Visit, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	v, err := s.visits.Execute(ctx, visitID,
		func(v *Visit) error {
			if err := CanAct(identity, v); err != nil {
				return err
			}
			return v.CanApprove()
		},
		func(v *Visit) { v.ApplyApproval(now) },
	)
	if err != nil {
		s.metrics.RecordTransition("approve", "failure")
		return nil, translateStoreErr(err, "visit")
	}

	s.metrics.RecordTransition("approve", "success")
	if v.VisitorEmail != "" {
		s.notifier.VisitorDecision(ctx, notify.Event{
			VisitID:    v.ID,
			Email:      v.VisitorEmail,
			Visitor:    v.VisitorName,
			Decision:   "approved",
			OccurredAt: now,
		})
	}
	return v, nil
}

// Reject moves a pending visit to REJECTED with an optional reason. Only the
// owning host may reject.
func (s *Service) Reject(ctx context.Context, visitID id.VisitID, identity requestcontext.ActingIdentity, reason string) (*Visit, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	v, err := s.visits.Execute(ctx, visitID,
		func(v *Visit) error {
			if err := CanAct(identity, v); err != nil {
				return err
			}
			return v.CanReject()
		},
		func(v *Visit) { v.ApplyRejection(now, reason) },
	)
	if err != nil {
		s.metrics.RecordTransition("reject", "failure")
		return nil, translateStoreErr(err, "visit")
	}
	s.metrics.RecordTransition("reject", "success")
	return v, nil
}

// ConfirmArrival checks in a pre-registered, approved visitor at the
// checkpoint: APPROVED -> CHECKED_IN. The token may arrive in any of the
// scanner input shapes.
func (s *Service) ConfirmArrival(ctx context.Context, rawToken string, identity requestcontext.ActingIdentity) (*Visit, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	token := ExtractToken(rawToken)
	if token == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session token is required")
	}

	now := requestcontext.Now(ctx)
	v, err := s.visits.ExecuteByToken(ctx, token,
		func(v *Visit) error { return v.CanCheckIn() },
		func(v *Visit) { v.ApplyCheckIn(now) },
	)
	if err != nil {
		s.metrics.RecordTransition("confirm_arrival", "failure")
		return nil, translateStoreErr(err, "visit")
	}

	s.appendCheckEvent(ctx, v.ID, CheckEventIn, identity.UserID, now)
	s.cache.Invalidate(ctx, v.Location)
	s.metrics.RecordTransition("confirm_arrival", "success")

	if h, err := s.hosts.FindByID(ctx, v.HostID); err == nil {
		s.notifier.HostArrival(ctx, notify.Event{
			VisitID:    v.ID,
			HostEmail:  h.Email,
			HostName:   h.Name,
			Visitor:    v.VisitorName,
			Company:    v.VisitorCompany,
			Purpose:    v.Purpose,
			OccurredAt: now,
		})
	}
	return v, nil
}

// Checkout ends a visit at the checkpoint: CHECKED_IN -> CHECKED_OUT. A
// second scan of the same token fails with a distinct "already checked out"
// state error rather than silently succeeding.
func (s *Service) Checkout(ctx context.Context, rawToken string, identity requestcontext.ActingIdentity) (*Visit, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	token := ExtractToken(rawToken)
	if token == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session token is required")
	}

	now := requestcontext.Now(ctx)
	v, err := s.visits.ExecuteByToken(ctx, token,
		func(v *Visit) error { return v.CanCheckOut() },
		func(v *Visit) { v.ApplyCheckOut(now) },
	)
	if err != nil {
		s.metrics.RecordTransition("checkout", "failure")
		return nil, translateStoreErr(err, "visit")
	}

	s.appendCheckEvent(ctx, v.ID, CheckEventOut, identity.UserID, now)
	s.cache.Invalidate(ctx, v.Location)
	s.metrics.RecordTransition("checkout", "success")
	return v, nil
}

// GetByToken resolves a visit from any scanner input shape.
func (s *Service) GetByToken(ctx context.Context, rawToken string) (*Visit, error) {
	token := ExtractToken(rawToken)
	if token == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session token is required")
	}
	v, err := s.visits.FindByToken(ctx, token)
	if err != nil {
		return nil, translateStoreErr(err, "visit")
	}
	return v, nil
}

// Active returns all currently checked-in visits, optionally filtered by
// site. Served from the Redis cache when fresh.
func (s *Service) Active(ctx context.Context, rawLocation string) ([]*Visit, error) {
	var location id.Location
	if strings.TrimSpace(rawLocation) != "" {
		location = id.ParseLocation(rawLocation)
	}

	if cached, ok := s.cache.Get(ctx, location); ok {
		return cached, nil
	}
	visits, err := s.visits.ListActive(ctx, location)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active visits")
	}
	s.cache.Set(ctx, location, visits)
	return visits, nil
}

// History returns a bounded, newest-first page of visits matching the
// filter. The page size is clamped server-side.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]*Visit, error) {
	visits, err := s.visits.ListHistory(ctx, filter, s.historyLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list visit history")
	}
	return visits, nil
}

// PendingForHost lists pending pre-registrations awaiting the acting user's
// decision.
func (s *Service) PendingForHost(ctx context.Context, identity requestcontext.ActingIdentity) ([]*Visit, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	if !identity.HasHostAccount() {
		return nil, dErrors.New(dErrors.CodeForbidden, "acting user has no host account")
	}
	visits, err := s.visits.ListPendingForHost(ctx, identity.HostID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending visits")
	}
	return visits, nil
}

// CheckEvents returns the audit trail for one visit.
func (s *Service) CheckEvents(ctx context.Context, visitID id.VisitID) ([]CheckEvent, error) {
	events, err := s.visits.ListCheckEvents(ctx, visitID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list check events")
	}
	return events, nil
}

// insertWithFreshToken mints a token and inserts, regenerating when the
// store's unique constraint reports the token taken. The constraint is the
// correctness mechanism; this loop only recovers from the collision, and a
// caller never sees a duplicate-token failure.
func (s *Service) insertWithFreshToken(ctx context.Context, v *Visit) error {
	for attempt := 0; attempt < tokenInsertAttempts; attempt++ {
		v.SessionToken = s.issuer.Generate()
		err := s.visits.Insert(ctx, v)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create visit")
		}
		s.metrics.RecordTokenRetry()
		s.logger.WarnContext(ctx, "session token collision, regenerating",
			"visit_id", v.ID.String(),
			"attempt", attempt+1,
		)
	}
	return dErrors.New(dErrors.CodeInternal, "could not allocate a unique session token")
}

// availableHost loads a host and enforces the creation-time reference rule:
// the host must exist, be active, and not be soft-deleted.
func (s *Service) availableHost(ctx context.Context, hostID id.HostID) (*host.Host, error) {
	h, err := s.hosts.FindByID(ctx, hostID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidReference, "host does not exist")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load host")
	}
	if !h.Available() {
		return nil, dErrors.New(dErrors.CodeInvalidReference, "host is inactive or deleted")
	}
	return h, nil
}

// appendCheckEvent records the audit row after a successful status commit.
// Deliberately best-effort: the transition stands even when the audit append
// fails, and the failure is logged for reconciliation.
func (s *Service) appendCheckEvent(ctx context.Context, visitID id.VisitID, eventType CheckEventType, actor id.UserID, now time.Time) {
	event := CheckEvent{VisitID: visitID, Type: eventType, OccurredAt: now}
	if !actor.IsZero() {
		event.ActorID = &actor
	}
	if err := s.visits.AppendCheckEvent(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "check event append failed",
			"visit_id", visitID.String(),
			"event_type", eventType,
			"error", err,
		)
	}
}

func requireIdentity(identity requestcontext.ActingIdentity) error {
	if identity.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	return nil
}

func validateVisitor(name string, hostID id.HostID) error {
	if strings.TrimSpace(name) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "visitor name is required")
	}
	if hostID.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "host id is required")
	}
	return nil
}

// translateStoreErr maps store sentinels onto caller-facing domain errors;
// coded errors from validate callbacks pass through unchanged.
func translateStoreErr(err error, what string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "storage failure")
}
