package visit

import (
	"strings"
	"time"

	id "gatehouse/pkg/domain"
	dErrors "gatehouse/pkg/domain-errors"
)

// Status is the lifecycle state of a visit.
//
// Transition graph:
//
//	PENDING_APPROVAL -> APPROVED | REJECTED
//	APPROVED         -> CHECKED_IN
//	CHECKED_IN       -> CHECKED_OUT
//
// CHECKED_IN is also a valid initial state (walk-in visitors skip the
// approval step). REJECTED and CHECKED_OUT are terminal.
type Status string

const (
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusCheckedIn       Status = "CHECKED_IN"
	StatusCheckedOut      Status = "CHECKED_OUT"
)

var transitions = map[Status][]Status{
	StatusPendingApproval: {StatusApproved, StatusRejected},
	StatusApproved:        {StatusCheckedIn},
	StatusCheckedIn:       {StatusCheckedOut},
	StatusRejected:        {},
	StatusCheckedOut:      {},
}

// CanTransitionTo reports whether the edge s -> target exists.
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Visit is one record of a person's presence on site, from arrival (or
// pre-registration) through departure.
//
// Invariants held at every committed state:
//   - SessionToken is globally unique and immutable once assigned
//   - Status only moves along the transition graph above
//   - CheckOutAt is set iff Status == CHECKED_OUT; CheckInAt is set iff
//     Status is CHECKED_IN or CHECKED_OUT
//   - ApprovedAt / RejectedAt / RejectionReason are only set by an
//     approve/reject transition out of PENDING_APPROVAL
//   - HostID referred to an available host at creation time; later host
//     deactivation does not invalidate the visit
type Visit struct {
	ID           id.VisitID
	SessionToken string

	VisitorName    string
	VisitorCompany string
	VisitorPhone   string
	VisitorEmail   string

	HostID   id.HostID
	Purpose  string
	Location id.Location
	Status   Status

	ExpectedDate          *time.Time
	PreRegisteredByUserID *id.UserID

	CreatedAt       time.Time
	CheckInAt       *time.Time
	CheckOutAt      *time.Time
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	RejectionReason string
}

// CanApprove validates the approve transition precondition.
func (v *Visit) CanApprove() error {
	return v.requireStatus(StatusPendingApproval, "approve")
}

// ApplyApproval transitions the visit to APPROVED. Call CanApprove first.
func (v *Visit) ApplyApproval(now time.Time) {
	v.Status = StatusApproved
	v.ApprovedAt = &now
}

// CanReject validates the reject transition precondition.
func (v *Visit) CanReject() error {
	return v.requireStatus(StatusPendingApproval, "reject")
}

// ApplyRejection transitions the visit to REJECTED. Call CanReject first.
func (v *Visit) ApplyRejection(now time.Time, reason string) {
	v.Status = StatusRejected
	v.RejectedAt = &now
	v.RejectionReason = strings.TrimSpace(reason)
}

// CanCheckIn validates the confirm-arrival transition precondition.
func (v *Visit) CanCheckIn() error {
	return v.requireStatus(StatusApproved, "check in")
}

// ApplyCheckIn transitions the visit to CHECKED_IN. Call CanCheckIn first.
func (v *Visit) ApplyCheckIn(now time.Time) {
	v.Status = StatusCheckedIn
	v.CheckInAt = &now
}

// CanCheckOut validates the checkout transition precondition. A visit that
// is already CHECKED_OUT gets its own message so a double scan reads as
// "already checked out" at the desk, not a generic state error.
func (v *Visit) CanCheckOut() error {
	if v.Status == StatusCheckedOut {
		return dErrors.New(dErrors.CodeInvalidState, "visit already checked out")
	}
	return v.requireStatus(StatusCheckedIn, "check out")
}

// ApplyCheckOut transitions the visit to CHECKED_OUT. Call CanCheckOut first.
func (v *Visit) ApplyCheckOut(now time.Time) {
	v.Status = StatusCheckedOut
	v.CheckOutAt = &now
}

func (v *Visit) requireStatus(want Status, action string) error {
	if v.Status != want {
		return dErrors.New(dErrors.CodeInvalidState,
			"cannot "+action+" a visit in status "+string(v.Status))
	}
	return nil
}

// CheckEventType labels a physical passage through the checkpoint.
type CheckEventType string

const (
	CheckEventIn  CheckEventType = "CHECK_IN"
	CheckEventOut CheckEventType = "CHECK_OUT"
)

// CheckEvent is an immutable audit row recording one physical check-in or
// check-out. Appended exactly once per passage; never updated or deleted.
type CheckEvent struct {
	VisitID    id.VisitID
	Type       CheckEventType
	ActorID    *id.UserID
	OccurredAt time.Time
}
