package service

import (
	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Require fails with ErrForbidden unless the principal holds perm.
func Require(p model.Principal, perm model.Permission) error {
	if !p.Can(perm) {
		return errs.ErrForbidden
	}
	return nil
}

// RequireOwnerOrAdmin fails with ErrForbidden unless the principal owns the
// resource or holds adminPerm.
func RequireOwnerOrAdmin(p model.Principal, owner uuid.UUID, adminPerm model.Permission) error {
	if !p.IsAnonymous() && p.ID() == owner {
		return nil
	}
	return Require(p, adminPerm)
}

// RequireConfirmed fails for authenticated principals that have not confirmed their email.
// Anonymous callers pass; permission checks reject them later.
func RequireConfirmed(p model.Principal) error {
	if !p.IsAnonymous() && !p.Confirmed() {
		return errs.ErrUnconfirmed
	}
	return nil
}

// requireUser fails with ErrUnauthorized for anonymous callers.
func requireUser(p model.Principal) error {
	if p.IsAnonymous() {
		return errs.ErrUnauthorized
	}
	return nil
}
