package service

import (
	"context"
	"fmt"

	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/repository"
)

// RoleService manages the role table.
type RoleService interface {
	// SeedRoles upserts every definition by name. Safe to re-run.
	SeedRoles(ctx context.Context, defs []model.RoleDefinition) error
	// List returns all roles.
	List(ctx context.Context) ([]model.Role, error)
}

// RoleServiceImpl implements RoleService.
type RoleServiceImpl struct {
	roles repository.RoleRepository
}

// NewRoleService constructs RoleService.
func NewRoleService(roles repository.RoleRepository) *RoleServiceImpl {
	return &RoleServiceImpl{roles: roles}
}

// SeedRoles applies the definition table.
func (s *RoleServiceImpl) SeedRoles(ctx context.Context, defs []model.RoleDefinition) error {
	for _, d := range defs {
		role := model.Role{Name: d.Name, Default: d.Default, Permissions: d.Permissions}
		if err := s.roles.Upsert(ctx, &role); err != nil {
			return fmt.Errorf("seed role %s: %w", d.Name, err)
		}
	}
	return nil
}

// List returns all roles.
func (s *RoleServiceImpl) List(ctx context.Context) ([]model.Role, error) {
	return s.roles.List(ctx)
}
