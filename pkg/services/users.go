package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
	"github.com/siteforge-ai/siteforge-engine/pkg/repositories"
)

// Identity is the verified identity carried by an access token.
type Identity struct {
	Subject string
	Issuer  string
	Email   string
	Name    *string
}

// UserService manages local user accounts backed by an external identity
// provider.
type UserService interface {
	// GetOrCreateFromIdentity resolves a verified token identity to a local
	// user, provisioning one on first sight and refreshing stale profile
	// fields on subsequent logins.
	GetOrCreateFromIdentity(ctx context.Context, identity Identity) (*models.User, error)

	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type userService struct {
	userRepo repositories.UserRepository
	logger   *zap.Logger
}

// NewUserService creates a new user service with dependencies.
func NewUserService(userRepo repositories.UserRepository, logger *zap.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		logger:   logger,
	}
}

var _ UserService = (*userService)(nil)

func (s *userService) GetOrCreateFromIdentity(ctx context.Context, identity Identity) (*models.User, error) {
	user, err := s.userRepo.GetByIdentity(ctx, identity.Subject, identity.Issuer)
	if err == nil {
		if profileChanged(user, identity) {
			if err := s.userRepo.UpdateProfile(ctx, user.ID, identity.Email, identity.Name); err != nil {
				return nil, fmt.Errorf("failed to refresh user profile: %w", err)
			}
			user.Email = identity.Email
			user.Name = identity.Name
		}
		if err := s.userRepo.TouchLastLogin(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("failed to record login: %w", err)
		}
		now := time.Now().UTC()
		user.LastLogin = &now
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	now := time.Now().UTC()
	user = &models.User{
		IdpSubject:   identity.Subject,
		IdpIssuer:    identity.Issuer,
		Email:        identity.Email,
		Name:         identity.Name,
		Role:         models.GlobalRoleUser,
		IsIndividual: true,
		LastLogin:    &now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// Two requests for the same identity can race on first login. The
		// loser rereads the row the winner inserted.
		if errors.Is(err, apperrors.ErrConflict) {
			return s.userRepo.GetByIdentity(ctx, identity.Subject, identity.Issuer)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("Provisioned new user",
		zap.String("user_id", user.ID.String()),
		zap.String("issuer", identity.Issuer))
	return user, nil
}

func profileChanged(user *models.User, identity Identity) bool {
	if user.Email != identity.Email {
		return true
	}
	switch {
	case user.Name == nil && identity.Name == nil:
		return false
	case user.Name == nil || identity.Name == nil:
		return true
	default:
		return *user.Name != *identity.Name
	}
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) List(ctx context.Context) ([]*models.User, error) {
	return s.userRepo.List(ctx)
}

func (s *userService) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	if !models.IsValidGlobalRole(role) {
		return fmt.Errorf("role %q: %w", role, apperrors.ErrInvalidRole)
	}
	if err := s.userRepo.UpdateRole(ctx, id, role); err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	s.logger.Info("User role updated",
		zap.String("user_id", id.String()),
		zap.String("role", role))
	return nil
}

func (s *userService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.userRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.logger.Info("User deleted", zap.String("user_id", id.String()))
	return nil
}
