package host

import (
	"context"

	id "gatehouse/pkg/domain"
)

// Store is the narrow persistence interface for hosts. FindByID returns
// inactive and soft-deleted hosts as-is; availability is the service's call.
type Store interface {
	FindByID(ctx context.Context, hostID id.HostID) (*Host, error)
	Create(ctx context.Context, h *Host) error
	List(ctx context.Context) ([]*Host, error)
}
