// Package model defines domain entities used by services and repositories.
package model

import "github.com/gofrs/uuid/v5"

// Permission is a bit set of capabilities granted by a role.
type Permission int

// Individual permission bits.
const (
	PermFollow           Permission = 0x01
	PermComment          Permission = 0x02
	PermWriteArticles    Permission = 0x04
	PermModerateComments Permission = 0x08
	PermAdminister       Permission = 0x80

	// PermAll is every bit of the permission byte.
	PermAll Permission = 0xff
)

// Has reports whether every bit of q is present in p.
func (p Permission) Has(q Permission) bool { return p&q == q }

// Role is a named permission set assigned to users.
type Role struct {
	ID          uuid.UUID  // PK
	Name        string     // unique
	Default     bool       // assigned to new users
	Permissions Permission // granted bits
}

// Can reports whether the role grants all bits of perm.
func (r Role) Can(perm Permission) bool { return r.Permissions.Has(perm) }

// RoleDefinition is one row of the role seeding table.
type RoleDefinition struct {
	Name        string
	Permissions Permission
	Default     bool
}

// DefaultRoles is the canonical role table applied at deploy time.
var DefaultRoles = []RoleDefinition{
	{Name: "User", Permissions: PermFollow | PermComment | PermWriteArticles, Default: true},
	{Name: "Moderator", Permissions: PermFollow | PermComment | PermWriteArticles | PermModerateComments},
	{Name: "Administrator", Permissions: PermAll},
}
