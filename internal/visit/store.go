package visit

import (
	"context"
	"time"

	id "gatehouse/pkg/domain"
)

// HistoryFilter bounds the read-side history query. Location zero value
// means all sites; nil times mean unbounded on that side.
type HistoryFilter struct {
	Location id.Location
	From     *time.Time
	To       *time.Time
}

// Store is the persistence interface for visits and their check events.
//
// Uniqueness: Insert must fail with sentinel.ErrAlreadyUsed when another
// visit already holds the session token. The backing unique constraint is
// the authoritative uniqueness mechanism; the lifecycle's regenerate loop
// only recovers from the (statistically negligible) collision.
//
// Atomicity: Execute runs validate then mutate while holding whatever the
// implementation uses for exclusion (mutex, SELECT ... FOR UPDATE), so two
// callers racing on the same visit cannot both pass validation. The loser
// sees the post-commit state and fails its precondition.
type Store interface {
	Insert(ctx context.Context, v *Visit) error
	FindByID(ctx context.Context, visitID id.VisitID) (*Visit, error)
	FindByToken(ctx context.Context, token string) (*Visit, error)
	Execute(ctx context.Context, visitID id.VisitID, validate func(*Visit) error, mutate func(*Visit)) (*Visit, error)
	ExecuteByToken(ctx context.Context, token string, validate func(*Visit) error, mutate func(*Visit)) (*Visit, error)

	ListActive(ctx context.Context, location id.Location) ([]*Visit, error)
	ListHistory(ctx context.Context, filter HistoryFilter, limit int) ([]*Visit, error)
	ListPendingForHost(ctx context.Context, hostID id.HostID) ([]*Visit, error)

	AppendCheckEvent(ctx context.Context, event CheckEvent) error
	ListCheckEvents(ctx context.Context, visitID id.VisitID) ([]CheckEvent, error)
}
