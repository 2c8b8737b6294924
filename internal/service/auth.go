package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/flasky/internal/crypto"
	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/repository"
	"github.com/and161185/flasky/internal/token"
	"github.com/gofrs/uuid/v5"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*$`)

const maxFieldLen = 64

// AuthService defines registration, authentication and account token flows.
type AuthService interface {
	// Register creates an unconfirmed user and mails a confirmation token.
	Register(ctx context.Context, email, username, password string) (*model.User, error)
	// Authenticate resolves a credential pair to a principal.
	Authenticate(ctx context.Context, identity, secret string) (model.Principal, error)
	// IssueToken mints a session token for a password-authenticated principal.
	IssueToken(ctx context.Context, p model.Principal) (model.AuthToken, error)
	// Confirm marks the principal confirmed if tok is its confirmation token.
	Confirm(ctx context.Context, p model.Principal, tok string) error
	// ResendConfirmation mails a fresh confirmation token.
	ResendConfirmation(ctx context.Context, p model.Principal) error
	// ChangePassword replaces the password after verifying the old one.
	ChangePassword(ctx context.Context, p model.Principal, oldPassword, newPassword string) error
	// RequestPasswordReset mails a reset token if the email is registered.
	RequestPasswordReset(ctx context.Context, email string) error
	// ResetPassword sets a new password using a reset token.
	ResetPassword(ctx context.Context, tok, email, newPassword string) error
	// RequestEmailChange mails a change token to the new address.
	RequestEmailChange(ctx context.Context, p model.Principal, newEmail, password string) error
	// ChangeEmail applies the address carried by a change token.
	ChangeEmail(ctx context.Context, p model.Principal, tok string) error
	// Ping refreshes the last-seen time of an authenticated principal.
	Ping(ctx context.Context, p model.Principal) error
}

// AuthOptions carries the tunables of AuthServiceImpl.
type AuthOptions struct {
	AdminEmail string        // registrations with this address get the administrator role
	TokenTTL   time.Duration // lifetime of every issued token
}

// AuthServiceImpl implements AuthService.
type AuthServiceImpl struct {
	users  repository.UserRepository
	roles  repository.RoleRepository
	codec  TokenCodec
	mailer Mailer
	opts   AuthOptions
	now    func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, roles repository.RoleRepository, codec TokenCodec, mailer Mailer, opts AuthOptions) *AuthServiceImpl {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	opts.AdminEmail = strings.ToLower(strings.TrimSpace(opts.AdminEmail))
	return &AuthServiceImpl{users: users, roles: roles, codec: codec, mailer: mailer, opts: opts, now: time.Now}
}

func validateEmail(email string) error {
	if email == "" || len(email) > maxFieldLen {
		return errs.Validation("Invalid email address.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errs.Validation("Invalid email address.")
	}
	return nil
}

func validateUsername(username string) error {
	if username == "" || len(username) > maxFieldLen || !usernameRe.MatchString(username) {
		return errs.Validation("Usernames must have only letters, numbers, dots or underscores")
	}
	return nil
}

// emailTaken reports whether another user holds email.
func emailTaken(ctx context.Context, users repository.UserRepository, email string, self uuid.UUID) (bool, error) {
	u, err := users.GetByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.ID != self, nil
}

func usernameTaken(ctx context.Context, users repository.UserRepository, username string, self uuid.UUID) (bool, error) {
	u, err := users.GetByUsername(ctx, username)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.ID != self, nil
}

// Register validates input, resolves the role and stores the user with its self-follow.
func (s *AuthServiceImpl) Register(ctx context.Context, email, username, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, errs.Validation("Password is required.")
	}
	if taken, err := emailTaken(ctx, s.users, email, uuid.Nil); err != nil {
		return nil, err
	} else if taken {
		return nil, errs.Validation("Email already registered.")
	}
	if taken, err := usernameTaken(ctx, s.users, username, uuid.Nil); err != nil {
		return nil, err
	} else if taken {
		return nil, errs.Validation("Username already in use.")
	}

	role, err := s.roleFor(ctx, email)
	if err != nil {
		return nil, err
	}
	cred, err := pkgcrypto.NewCredential(password)
	if err != nil {
		return nil, err
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &model.User{
		ID:          uid,
		Email:       email,
		Username:    username,
		Role:        *role,
		PwdHash:     cred.Hash,
		SaltAuth:    cred.Salt,
		AvatarHash:  model.AvatarHashFor(email),
		MemberSince: now,
		LastSeen:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.sendConfirmation(ctx, u); err != nil {
		return nil, err
	}
	if s.opts.AdminEmail != "" {
		s.mailer.Send(ctx, s.opts.AdminEmail, "New User", MailNewUser, map[string]any{"User": u})
	}
	return u, nil
}

// roleFor picks the administrator role for the admin address, else the default role.
func (s *AuthServiceImpl) roleFor(ctx context.Context, email string) (*model.Role, error) {
	if s.opts.AdminEmail != "" && email == s.opts.AdminEmail {
		role, err := s.roles.GetByPermissions(ctx, model.PermAll)
		if err == nil {
			return role, nil
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
	}
	role, err := s.roles.GetDefault(ctx)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrNoDefaultRole
	}
	return role, err
}

func (s *AuthServiceImpl) sendConfirmation(ctx context.Context, u *model.User) error {
	tok, err := s.codec.Issue(token.Claims{ClaimConfirm: u.ID.String()}, s.opts.TokenTTL)
	if err != nil {
		return err
	}
	s.mailer.Send(ctx, u.Email, "Confirm Your Account", MailConfirm, map[string]any{"User": u, "Token": tok})
	return nil
}

// Authenticate resolves identity/secret. An empty identity yields Anonymous,
// an empty secret treats identity as a session token, otherwise identity is an email.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, identity, secret string) (model.Principal, error) {
	if identity == "" {
		return model.Anonymous, nil
	}
	if secret == "" {
		claims, err := s.codec.Redeem(identity, ClaimSession)
		if err != nil {
			return model.Anonymous, errs.ErrUnauthorized
		}
		id, err := uuid.FromString(claims.String(ClaimSession))
		if err != nil {
			return model.Anonymous, errs.ErrUnauthorized
		}
		u, err := s.users.GetByID(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			return model.Anonymous, errs.ErrUnauthorized
		}
		if err != nil {
			return model.Anonymous, err
		}
		return model.Principal{User: u, TokenUsed: true}, nil
	}

	u, err := s.users.GetByEmail(ctx, strings.ToLower(identity))
	if errors.Is(err, errs.ErrNotFound) {
		return model.Anonymous, errs.ErrUnauthorized
	}
	if err != nil {
		return model.Anonymous, err
	}
	if !(pkgcrypto.Credential{Hash: u.PwdHash, Salt: u.SaltAuth}).Verify(secret) {
		return model.Anonymous, errs.ErrUnauthorized
	}
	return model.Principal{User: u}, nil
}

// IssueToken refuses anonymous and token-derived principals.
func (s *AuthServiceImpl) IssueToken(_ context.Context, p model.Principal) (model.AuthToken, error) {
	if p.IsAnonymous() || p.TokenUsed {
		return model.AuthToken{}, errs.ErrUnauthorized
	}
	tok, err := s.codec.Issue(token.Claims{ClaimSession: p.ID().String()}, s.opts.TokenTTL)
	if err != nil {
		return model.AuthToken{}, err
	}
	return model.AuthToken{Token: tok, Expiration: s.opts.TokenTTL}, nil
}

// redeemFor checks the token purpose and that it belongs to owner.
func (s *AuthServiceImpl) redeemFor(tok, key string, owner uuid.UUID) (token.Claims, error) {
	claims, err := s.codec.Redeem(tok, key)
	if err != nil {
		return nil, errs.ErrInvalidToken
	}
	if claims.String(key) != owner.String() {
		return nil, errs.ErrInvalidToken
	}
	return claims, nil
}

// Confirm is a no-op for already confirmed users.
func (s *AuthServiceImpl) Confirm(ctx context.Context, p model.Principal, tok string) error {
	if err := requireUser(p); err != nil {
		return err
	}
	if p.Confirmed() {
		return nil
	}
	if _, err := s.redeemFor(tok, ClaimConfirm, p.ID()); err != nil {
		return err
	}
	u := *p.User
	u.Confirmed = true
	return s.users.Update(ctx, &u)
}

// ResendConfirmation mails a new confirmation token to an unconfirmed user.
func (s *AuthServiceImpl) ResendConfirmation(ctx context.Context, p model.Principal) error {
	if err := requireUser(p); err != nil {
		return err
	}
	if p.Confirmed() {
		return nil
	}
	return s.sendConfirmation(ctx, p.User)
}

// ChangePassword verifies the old password first.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, p model.Principal, oldPassword, newPassword string) error {
	if err := requireUser(p); err != nil {
		return err
	}
	if !(pkgcrypto.Credential{Hash: p.User.PwdHash, Salt: p.User.SaltAuth}).Verify(oldPassword) {
		return errs.Validation("Invalid password.")
	}
	return s.setPassword(ctx, *p.User, newPassword)
}

func (s *AuthServiceImpl) setPassword(ctx context.Context, u model.User, password string) error {
	cred, err := pkgcrypto.NewCredential(password)
	if errors.Is(err, pkgcrypto.ErrEmptyPassword) {
		return errs.Validation("Password is required.")
	}
	if err != nil {
		return err
	}
	u.PwdHash, u.SaltAuth = cred.Hash, cred.Salt
	return s.users.Update(ctx, &u)
}

// RequestPasswordReset does not reveal whether the address is registered.
func (s *AuthServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	tok, err := s.codec.Issue(token.Claims{ClaimReset: u.ID.String()}, s.opts.TokenTTL)
	if err != nil {
		return err
	}
	s.mailer.Send(ctx, u.Email, "Reset Your Password", MailResetPassword, map[string]any{"User": u, "Token": tok})
	return nil
}

// ResetPassword requires the token to belong to the user registered under email.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, tok, email, newPassword string) error {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrInvalidToken
	}
	if err != nil {
		return err
	}
	if _, err := s.redeemFor(tok, ClaimReset, u.ID); err != nil {
		return err
	}
	return s.setPassword(ctx, *u, newPassword)
}

// RequestEmailChange verifies the password and mails a token to newEmail.
func (s *AuthServiceImpl) RequestEmailChange(ctx context.Context, p model.Principal, newEmail, password string) error {
	if err := requireUser(p); err != nil {
		return err
	}
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if err := validateEmail(newEmail); err != nil {
		return err
	}
	if !(pkgcrypto.Credential{Hash: p.User.PwdHash, Salt: p.User.SaltAuth}).Verify(password) {
		return errs.Validation("Invalid email or password.")
	}
	if taken, err := emailTaken(ctx, s.users, newEmail, p.ID()); err != nil {
		return err
	} else if taken {
		return errs.Validation("Email already registered.")
	}
	tok, err := s.codec.Issue(token.Claims{ClaimChangeEmail: p.ID().String(), ClaimNewEmail: newEmail}, s.opts.TokenTTL)
	if err != nil {
		return err
	}
	s.mailer.Send(ctx, newEmail, "Confirm your email address", MailChangeEmail, map[string]any{"User": p.User, "Token": tok})
	return nil
}

// ChangeEmail applies the new address if it is still free and refreshes the avatar hash.
func (s *AuthServiceImpl) ChangeEmail(ctx context.Context, p model.Principal, tok string) error {
	if err := requireUser(p); err != nil {
		return err
	}
	claims, err := s.redeemFor(tok, ClaimChangeEmail, p.ID())
	if err != nil {
		return err
	}
	newEmail := claims.String(ClaimNewEmail)
	if newEmail == "" {
		return errs.ErrInvalidToken
	}
	if taken, err := emailTaken(ctx, s.users, newEmail, p.ID()); err != nil {
		return err
	} else if taken {
		return errs.Validation("Email already registered.")
	}
	u := *p.User
	u.Email = newEmail
	u.AvatarHash = model.AvatarHashFor(newEmail)
	return s.users.Update(ctx, &u)
}

// Ping records activity of authenticated principals.
func (s *AuthServiceImpl) Ping(ctx context.Context, p model.Principal) error {
	if p.IsAnonymous() {
		return nil
	}
	return s.users.Touch(ctx, p.ID(), s.now().UTC())
}
