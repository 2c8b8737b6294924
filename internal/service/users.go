package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// ProfileEdit holds the self-editable profile fields. Nil fields are left unchanged.
type ProfileEdit struct {
	Name     *string
	Location *string
	AboutMe  *string
}

// AdminEdit holds the fields an administrator may change. Nil fields are left unchanged.
type AdminEdit struct {
	ProfileEdit
	Email     *string
	Username  *string
	Confirmed *bool
	Role      *string // role name
}

// UserService reads and administers user accounts.
type UserService interface {
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	PostCount(ctx context.Context, id uuid.UUID) (int, error)
	EditProfile(ctx context.Context, p model.Principal, in ProfileEdit) (*model.User, error)
	AdminEdit(ctx context.Context, p model.Principal, id uuid.UUID, in AdminEdit) (*model.User, error)
	Delete(ctx context.Context, p model.Principal, id uuid.UUID) error
}

// UserServiceImpl implements UserService.
type UserServiceImpl struct {
	users repository.UserRepository
	roles repository.RoleRepository
	posts repository.PostRepository
}

// NewUserService constructs UserService.
func NewUserService(users repository.UserRepository, roles repository.RoleRepository, posts repository.PostRepository) *UserServiceImpl {
	return &UserServiceImpl{users: users, roles: roles, posts: posts}
}

// Get loads a user.
func (s *UserServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// GetByUsername loads a user by username.
func (s *UserServiceImpl) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.users.GetByUsername(ctx, username)
}

// PostCount returns how many posts the user wrote.
func (s *UserServiceImpl) PostCount(ctx context.Context, id uuid.UUID) (int, error) {
	return s.posts.CountByAuthor(ctx, id)
}

func applyProfile(u *model.User, in ProfileEdit) error {
	if in.Name != nil {
		if len(*in.Name) > maxFieldLen {
			return errs.Validation("Real name is too long.")
		}
		u.Name = *in.Name
	}
	if in.Location != nil {
		if len(*in.Location) > maxFieldLen {
			return errs.Validation("Location is too long.")
		}
		u.Location = *in.Location
	}
	if in.AboutMe != nil {
		u.AboutMe = *in.AboutMe
	}
	return nil
}

// EditProfile updates the caller's own profile.
func (s *UserServiceImpl) EditProfile(ctx context.Context, p model.Principal, in ProfileEdit) (*model.User, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	u := *p.User
	if err := applyProfile(&u, in); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// AdminEdit changes any account; requires PermAdminister.
func (s *UserServiceImpl) AdminEdit(ctx context.Context, p model.Principal, id uuid.UUID, in AdminEdit) (*model.User, error) {
	if err := Require(p, model.PermAdminister); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if taken, err := emailTaken(ctx, s.users, email, u.ID); err != nil {
			return nil, err
		} else if taken {
			return nil, errs.Validation("Email already registered.")
		}
		u.Email = email
		u.AvatarHash = model.AvatarHashFor(email)
	}
	if in.Username != nil {
		if err := validateUsername(*in.Username); err != nil {
			return nil, err
		}
		if taken, err := usernameTaken(ctx, s.users, *in.Username, u.ID); err != nil {
			return nil, err
		} else if taken {
			return nil, errs.Validation("Username already in use.")
		}
		u.Username = *in.Username
	}
	if in.Confirmed != nil {
		u.Confirmed = *in.Confirmed
	}
	if in.Role != nil {
		role, err := s.roles.GetByName(ctx, *in.Role)
		if err != nil {
			return nil, errs.Validation(fmt.Sprintf("Unknown role %q.", *in.Role))
		}
		u.Role = *role
	}
	if err := applyProfile(u, in.ProfileEdit); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes an account and its follow edges; requires PermAdminister.
func (s *UserServiceImpl) Delete(ctx context.Context, p model.Principal, id uuid.UUID) error {
	if err := Require(p, model.PermAdminister); err != nil {
		return err
	}
	return s.users.Delete(ctx, id)
}
