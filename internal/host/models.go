package host

import (
	"time"

	id "gatehouse/pkg/domain"
)

// Host is the employee/company contact a visitor is there to see. The visit
// lifecycle only ever reads hosts; creation and editing happen through
// administrative tooling outside this module.
type Host struct {
	ID        id.HostID
	Name      string
	Company   string
	Email     string
	Phone     string
	Site      id.Location
	Active    bool
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Available reports whether the host may receive new visits: active and not
// soft-deleted. Existing visits are unaffected when a host later becomes
// unavailable; the check applies at visit creation only.
func (h *Host) Available() bool {
	return h.Active && h.DeletedAt == nil
}
