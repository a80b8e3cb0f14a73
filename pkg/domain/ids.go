// Package domain defines typed identifiers shared across the module. Distinct
// UUID-backed types keep a HostID from ever being passed where a VisitID is
// expected; the compiler enforces what code review would otherwise have to.
package domain

import (
	"fmt"

	"github.com/google/uuid"

	dErrors "gatehouse/pkg/domain-errors"
)

type (
	// VisitID identifies one visit record.
	VisitID uuid.UUID
	// HostID identifies the employee/company contact a visitor is there to see.
	HostID uuid.UUID
	// UserID identifies an authenticated caller (reception, host user, admin).
	UserID uuid.UUID
)

func (id VisitID) String() string { return uuid.UUID(id).String() }
func (id HostID) String() string  { return uuid.UUID(id).String() }
func (id UserID) String() string  { return uuid.UUID(id).String() }

func (id VisitID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }
func (id HostID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders IDs as canonical UUID strings in JSON and cache
// payloads; defined types do not inherit uuid.UUID's encoding methods.
func (id VisitID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id HostID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

func (id *VisitID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = VisitID(parsed)
	return nil
}

func (id *HostID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = HostID(parsed)
	return nil
}

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = UserID(parsed)
	return nil
}

// NewVisitID mints a fresh visit identifier.
func NewVisitID() VisitID { return VisitID(uuid.New()) }

// NewHostID mints a fresh host identifier.
func NewHostID() HostID { return HostID(uuid.New()) }

// NewUserID mints a fresh user identifier.
func NewUserID() UserID { return UserID(uuid.New()) }

func parseUUID(raw, kind string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid %s id", kind))
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("%s id must not be nil", kind))
	}
	return parsed, nil
}

// ParseVisitID validates raw as a non-nil UUID at a trust boundary.
func ParseVisitID(raw string) (VisitID, error) {
	parsed, err := parseUUID(raw, "visit")
	if err != nil {
		return VisitID{}, err
	}
	return VisitID(parsed), nil
}

// ParseHostID validates raw as a non-nil UUID at a trust boundary.
func ParseHostID(raw string) (HostID, error) {
	parsed, err := parseUUID(raw, "host")
	if err != nil {
		return HostID{}, err
	}
	return HostID(parsed), nil
}

// ParseUserID validates raw as a non-nil UUID at a trust boundary.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user")
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}
