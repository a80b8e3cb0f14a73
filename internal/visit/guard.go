package visit

import (
	dErrors "gatehouse/pkg/domain-errors"
	"gatehouse/pkg/requestcontext"
)

// CanAct enforces host ownership: the acting identity must carry a host
// account and that host must own the visit. Approve and reject sit behind
// this; walk-in creation, token lookup, and checkout only need an
// authenticated caller (a reception role is fine) and are gated upstream.
func CanAct(identity requestcontext.ActingIdentity, v *Visit) error {
	if !identity.HasHostAccount() {
		return dErrors.New(dErrors.CodeForbidden, "acting user has no host account")
	}
	if identity.HostID != v.HostID {
		return dErrors.New(dErrors.CodeForbidden, "visit belongs to a different host")
	}
	return nil
}
