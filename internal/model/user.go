package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// User represents an account. The password is never stored in plaintext.
type User struct {
	ID          uuid.UUID // PK
	Email       string    // unique
	Username    string    // unique
	Role        Role      // resolved role, never empty for stored users
	PwdHash     []byte    // Argon2id(password, SaltAuth)
	SaltAuth    []byte    // per-user auth salt
	Confirmed   bool
	Name        string
	Location    string
	AboutMe     string
	AvatarHash  string // md5 of the lower-cased email
	MemberSince time.Time
	LastSeen    time.Time
}

// Can reports whether the user's role grants perm.
func (u *User) Can(perm Permission) bool { return u != nil && u.Role.Can(perm) }

// IsAdministrator reports whether the user holds PermAdminister.
func (u *User) IsAdministrator() bool { return u.Can(PermAdminister) }

// AvatarHashFor returns the Gravatar hash of an email address.
func AvatarHashFor(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// Gravatar returns the avatar URL for the user.
func (u *User) Gravatar(size int, secure bool) string {
	base := "http://www.gravatar.com/avatar"
	if secure {
		base = "https://secure.gravatar.com/avatar"
	}
	hash := u.AvatarHash
	if hash == "" {
		hash = AvatarHashFor(u.Email)
	}
	return fmt.Sprintf("%s/%s?s=%d&d=identicon&r=g", base, hash, size)
}

// Principal is the identity attached to a request after authentication.
type Principal struct {
	User      *User // nil for anonymous callers
	TokenUsed bool  // authenticated with a session token rather than a password
}

// Anonymous is the principal of callers that supplied no credentials.
var Anonymous = Principal{}

// IsAnonymous reports whether no user is attached.
func (p Principal) IsAnonymous() bool { return p.User == nil }

// Can reports whether the principal holds perm. Anonymous holds nothing.
func (p Principal) Can(perm Permission) bool { return p.User.Can(perm) }

// IsAdministrator reports whether the principal holds PermAdminister.
func (p Principal) IsAdministrator() bool { return p.User.IsAdministrator() }

// Confirmed reports whether the attached user confirmed their email.
func (p Principal) Confirmed() bool { return p.User != nil && p.User.Confirmed }

// ID returns the user's id or uuid.Nil.
func (p Principal) ID() uuid.UUID {
	if p.User == nil {
		return uuid.Nil
	}
	return p.User.ID
}

// FollowEntry is one row of a followers/followed listing.
type FollowEntry struct {
	User  User
	Since time.Time
}

// AuthToken is a session token handed out by the token endpoint.
type AuthToken struct {
	Token      string
	Expiration time.Duration
}
