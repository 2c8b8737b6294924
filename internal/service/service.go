// Package service contains the application services: authentication, roles,
// the social graph, posts, comments and user administration.
package service

import (
	"context"
	"time"

	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/token"
)

// Claim keys distinguishing token purposes.
const (
	ClaimConfirm     = "confirm"
	ClaimReset       = "reset"
	ClaimChangeEmail = "change_email"
	ClaimNewEmail    = "new_email"
	ClaimSession     = "id"
)

// Mail template names.
const (
	MailConfirm       = "confirm"
	MailResetPassword = "reset_password"
	MailChangeEmail   = "change_email"
	MailNewUser       = "new_user"
)

// Mailer queues an email for background delivery. Delivery errors are not reported.
type Mailer interface {
	Send(ctx context.Context, to, subject, template string, data map[string]any)
}

// TokenCodec issues and redeems signed claim sets.
type TokenCodec interface {
	Issue(claims token.Claims, ttl time.Duration) (string, error)
	Redeem(tok, key string) (token.Claims, error)
}

// Paging holds the page sizes of the listings.
type Paging struct {
	Posts     int
	Comments  int
	Followers int
}

// DefaultPaging matches the stock configuration.
var DefaultPaging = Paging{Posts: 20, Comments: 30, Followers: 50}

func pageOf[T any](items []T, total, page, perPage int) model.Page[T] {
	if page < 1 {
		page = 1
	}
	return model.Page[T]{Items: items, Page: page, PerPage: perPage, Total: total}
}
