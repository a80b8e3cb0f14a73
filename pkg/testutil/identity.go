package testutil

import (
	id "gatehouse/pkg/domain"
	"gatehouse/pkg/requestcontext"
)

// ReceptionIdentity builds a reception-role identity with a fresh user ID.
func ReceptionIdentity() requestcontext.ActingIdentity {
	return requestcontext.ActingIdentity{
		UserID: id.NewUserID(),
		Role:   requestcontext.RoleReception,
	}
}

// HostIdentity builds a host-role identity bound to the given host account.
func HostIdentity(hostID id.HostID) requestcontext.ActingIdentity {
	return requestcontext.ActingIdentity{
		UserID: id.NewUserID(),
		HostID: hostID,
		Role:   requestcontext.RoleHost,
	}
}
