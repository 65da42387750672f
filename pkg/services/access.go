package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/repositories"
)

const (
	accessibleSitesKeyPrefix = "access:sites:"
	accessibleSitesTTL       = 5 * time.Minute
)

// AccessService answers who may touch which site. Users with a privileged
// global role (admin or superuser) pass every check; everyone else needs an
// explicit per-site grant.
type AccessService interface {
	// HasSiteAccess reports whether the user may see the site at all.
	HasSiteAccess(ctx context.Context, userID, siteID uuid.UUID) (bool, error)

	// GetUserSiteRole returns the user's explicit site role. Privileged
	// global roles do not show up here; only real grants do.
	GetUserSiteRole(ctx context.Context, userID, siteID uuid.UUID) (string, bool, error)

	// HasSiteRole reports whether the user holds one of the allowed site
	// roles. Privileged global roles pass regardless of the allowed set.
	HasSiteRole(ctx context.Context, userID, siteID uuid.UUID, allowedRoles []string) (bool, error)

	// GetUserAccessibleSiteIDs lists every site the user can see.
	// Privileged users see all sites.
	GetUserAccessibleSiteIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	GrantSiteAccess(ctx context.Context, userID, siteID uuid.UUID, role string) error
	RevokeSiteAccess(ctx context.Context, userID, siteID uuid.UUID) error
	ListSiteAccess(ctx context.Context, siteID uuid.UUID) ([]*models.UserSiteAccess, error)
}

type accessService struct {
	userRepo   repositories.UserRepository
	accessRepo repositories.AccessRepository
	siteRepo   repositories.SiteRepository
	redis      *redis.Client // nil disables caching
	logger     *zap.Logger
}

// NewAccessService creates a new access service with dependencies. The redis
// client may be nil, in which case accessible-site lookups always hit the
// database.
func NewAccessService(
	userRepo repositories.UserRepository,
	accessRepo repositories.AccessRepository,
	siteRepo repositories.SiteRepository,
	redisClient *redis.Client,
	logger *zap.Logger,
) AccessService {
	return &accessService{
		userRepo:   userRepo,
		accessRepo: accessRepo,
		siteRepo:   siteRepo,
		redis:      redisClient,
		logger:     logger,
	}
}

var _ AccessService = (*accessService)(nil)

func (s *accessService) isGloballyPrivileged(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	return models.IsGloballyPrivileged(user.Role), nil
}

func (s *accessService) HasSiteAccess(ctx context.Context, userID, siteID uuid.UUID) (bool, error) {
	privileged, err := s.isGloballyPrivileged(ctx, userID)
	if err != nil {
		return false, err
	}
	if privileged {
		return true, nil
	}

	_, err = s.accessRepo.Get(ctx, userID, siteID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check site access: %w", err)
	}
	return true, nil
}

func (s *accessService) GetUserSiteRole(ctx context.Context, userID, siteID uuid.UUID) (string, bool, error) {
	access, err := s.accessRepo.Get(ctx, userID, siteID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get site role: %w", err)
	}
	return access.Role, true, nil
}

func (s *accessService) HasSiteRole(ctx context.Context, userID, siteID uuid.UUID, allowedRoles []string) (bool, error) {
	privileged, err := s.isGloballyPrivileged(ctx, userID)
	if err != nil {
		return false, err
	}
	if privileged {
		return true, nil
	}

	role, found, err := s.GetUserSiteRole(ctx, userID, siteID)
	if err != nil || !found {
		return false, err
	}
	for _, allowed := range allowedRoles {
		if role == allowed {
			return true, nil
		}
	}
	return false, nil
}

func (s *accessService) GetUserAccessibleSiteIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	privileged, err := s.isGloballyPrivileged(ctx, userID)
	if err != nil {
		return nil, err
	}
	if privileged {
		return s.siteRepo.ListAllIDs(ctx)
	}

	if ids, ok := s.cachedSiteIDs(ctx, userID); ok {
		return ids, nil
	}

	ids, err := s.accessRepo.ListSiteIDsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessible sites: %w", err)
	}
	s.cacheSiteIDs(ctx, userID, ids)
	return ids, nil
}

func (s *accessService) GrantSiteAccess(ctx context.Context, userID, siteID uuid.UUID, role string) error {
	if !models.IsValidSiteRole(role) {
		return fmt.Errorf("role %q: %w", role, apperrors.ErrInvalidRole)
	}
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if _, err := s.siteRepo.GetByID(ctx, siteID); err != nil {
		return fmt.Errorf("failed to load site: %w", err)
	}

	err := s.accessRepo.Upsert(ctx, &models.UserSiteAccess{
		UserID: userID,
		SiteID: siteID,
		Role:   role,
	})
	if err != nil {
		return fmt.Errorf("failed to grant site access: %w", err)
	}

	s.invalidateSiteIDs(ctx, userID)
	s.logger.Info("Site access granted",
		zap.String("user_id", userID.String()),
		zap.String("site_id", siteID.String()),
		zap.String("role", role))
	return nil
}

func (s *accessService) RevokeSiteAccess(ctx context.Context, userID, siteID uuid.UUID) error {
	if err := s.accessRepo.Delete(ctx, userID, siteID); err != nil {
		return fmt.Errorf("failed to revoke site access: %w", err)
	}
	s.invalidateSiteIDs(ctx, userID)
	s.logger.Info("Site access revoked",
		zap.String("user_id", userID.String()),
		zap.String("site_id", siteID.String()))
	return nil
}

func (s *accessService) ListSiteAccess(ctx context.Context, siteID uuid.UUID) ([]*models.UserSiteAccess, error) {
	return s.accessRepo.ListForSite(ctx, siteID)
}

// Cache helpers. Failures here degrade to database reads, never to errors.

func (s *accessService) cachedSiteIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, bool) {
	if s.redis == nil {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, accessibleSitesKeyPrefix+userID.String()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Failed to read accessible-sites cache", zap.Error(err))
		}
		return nil, false
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func (s *accessService) cacheSiteIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, accessibleSitesKeyPrefix+userID.String(), raw, accessibleSitesTTL).Err(); err != nil {
		s.logger.Warn("Failed to write accessible-sites cache", zap.Error(err))
	}
}

func (s *accessService) invalidateSiteIDs(ctx context.Context, userID uuid.UUID) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, accessibleSitesKeyPrefix+userID.String()).Err(); err != nil {
		s.logger.Warn("Failed to invalidate accessible-sites cache", zap.Error(err))
	}
}
