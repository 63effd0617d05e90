package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"spottedAPI/internal/apperrors"
	"spottedAPI/internal/user"
)

// UserService is the user directory the challenge engine resolves ids and
// usernames against. Reads are treated as eventually consistent; a miss
// returns (nil, nil) and the caller decides whether that is fatal.
type UserService struct {
	db *pgxpool.Pool
}

func NewUserService(db *pgxpool.Pool) *UserService {
	return &UserService{db: db}
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	query := `
	SELECT id, clerk_id, email, username, avatar_url, created_at
	FROM users
	WHERE clerk_id = $1
	`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, clerkID).Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.AvatarURL,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to get user", err)
	}

	return u, nil
}

// FindByID returns (nil, nil) when no user exists with the given id.
func (s *UserService) FindByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	query := `
	SELECT id, clerk_id, email, username, avatar_url, created_at
	FROM users
	WHERE id = $1
	`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.AvatarURL,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return u, nil
}

// FindByUsername returns (nil, nil) when no user exists with the given
// username. Used by the invite fan-out on challenge creation, where unknown
// usernames are silently skipped.
func (s *UserService) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	query := `
	SELECT id, clerk_id, email, username, avatar_url, created_at
	FROM users
	WHERE username = $1
	`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, username).Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.AvatarURL,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return u, nil
}
