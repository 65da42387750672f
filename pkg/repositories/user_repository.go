package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/siteforge-ai/siteforge-engine/pkg/apperrors"
	"github.com/siteforge-ai/siteforge-engine/pkg/database"
	"github.com/siteforge-ai/siteforge-engine/pkg/models"
)

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// GetByIdentity looks a user up by the identity provider's (subject, issuer) pair.
	GetByIdentity(ctx context.Context, subject, issuer string) (*models.User, error)
	// UpdateProfile refreshes email and display name.
	UpdateProfile(ctx context.Context, id uuid.UUID, email string, name *string) error
	// TouchLastLogin stamps last_login with the current time.
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
	List(ctx context.Context) ([]*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// userRepository implements UserRepository using PostgreSQL.
type userRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *database.DB) UserRepository {
	return &userRepository{db: db}
}

var _ UserRepository = (*userRepository)(nil)

const userColumns = `id, company_id, idp_subject, idp_issuer, email, name, role, is_individual, created_at, updated_at, last_login`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.CompanyID,
		&user.IdpSubject,
		&user.IdpIssuer,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.IsIndividual,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// Create inserts a new user. A duplicate (idp_subject, idp_issuer) pair
// returns ErrConflict so callers can resolve concurrent provisioning.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.GlobalRoleUser
	}

	query := `
		INSERT INTO users (id, company_id, idp_subject, idp_issuer, email, name, role, is_individual, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.CompanyID,
		user.IdpSubject,
		user.IdpIssuer,
		user.Email,
		user.Name,
		user.Role,
		user.IsIndividual,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastLogin,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("user with identity already exists: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by primary key.
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetByIdentity looks a user up by the identity provider's (subject, issuer) pair.
func (r *userRepository) GetByIdentity(ctx context.Context, subject, issuer string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE idp_subject = $1 AND idp_issuer = $2`
	return scanUser(r.db.QueryRow(ctx, query, subject, issuer))
}

// UpdateProfile refreshes email and display name.
func (r *userRepository) UpdateProfile(ctx context.Context, id uuid.UUID, email string, name *string) error {
	query := `UPDATE users SET email = $1, name = $2, updated_at = $3 WHERE id = $4`

	result, err := r.db.Exec(ctx, query, email, name, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}

	return nil
}

// TouchLastLogin stamps last_login with the current time.
func (r *userRepository) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET last_login = $1 WHERE id = $2`

	result, err := r.db.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch last login: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}

	return nil
}

// UpdateRole changes a user's global role.
func (r *userRepository) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	query := `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(ctx, query, role, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}

	return nil
}

// List retrieves all users ordered by creation time.
func (r *userRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// Delete removes a user. Historical uploads and inference requests keep a
// nulled-out user reference; access grants are removed by cascade.
func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user: %w", apperrors.ErrNotFound)
	}

	return nil
}
