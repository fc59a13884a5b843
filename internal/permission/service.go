package permission

import (
	"context"
	"log/slog"
	"sort"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/core/rbac"
)

type Service struct {
	repo   rbac.PermissionStore
	logger *slog.Logger
}

func NewService(repo rbac.PermissionStore, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// List returns every known permission ordered by module then key.
func (s *Service) List(ctx context.Context) ([]*rbac.Permission, error) {
	perms, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list permissions", "error", err)
		return nil, internal.NewInternalError("Failed to list permissions", err)
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Module != perms[j].Module {
			return perms[i].Module < perms[j].Module
		}
		return perms[i].Key < perms[j].Key
	})
	return perms, nil
}

// GroupByModule buckets the permission list for display.
func (s *Service) GroupByModule(ctx context.Context) (map[string][]*rbac.Permission, error) {
	perms, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]*rbac.Permission)
	for _, p := range perms {
		grouped[p.Module] = append(grouped[p.Module], p)
	}
	return grouped, nil
}

// Unknown returns the keys that are not present in the permission store, in
// input order and without duplicates.
func (s *Service) Unknown(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	found, err := s.repo.GetByKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(found))
	for _, p := range found {
		known[p.Key] = struct{}{}
	}

	var unknown []string
	seen := make(map[string]struct{})
	for _, k := range keys {
		if _, ok := known[k]; ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unknown = append(unknown, k)
	}
	return unknown, nil
}

// Validate checks a role's permission set: it must be non-empty and every key
// must be known.
func (s *Service) Validate(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return internal.ErrNoPermissions
	}
	unknown, err := s.Unknown(ctx, keys)
	if err != nil {
		s.logger.Error("failed to validate permission keys", "error", err)
		return internal.NewInternalError("Failed to validate permissions", err)
	}
	if len(unknown) > 0 {
		return internal.ErrInvalidPermissions.WithDetails(map[string]interface{}{
			"unknown": unknown,
		})
	}
	return nil
}

// SeedCatalog upserts the built-in permission catalog.
func (s *Service) SeedCatalog(ctx context.Context) error {
	perms := make([]*rbac.Permission, 0, len(Catalog))
	for i := range Catalog {
		p := Catalog[i]
		perms = append(perms, &p)
	}
	if err := s.repo.Upsert(ctx, perms); err != nil {
		return internal.NewInternalError("Failed to seed permissions", err)
	}
	s.logger.Info("permission catalog seeded", "count", len(perms))
	return nil
}
