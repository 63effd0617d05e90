package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// SetupTestDB connects to the test database, skipping the test when no
// database is configured so the suite stays runnable on a bare checkout.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if err := godotenv.Load("../../.env"); err != nil {
		_ = godotenv.Load()
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL not set, skipping database test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	return pool
}

// CreateTestUser inserts a user with a unique username and returns its id.
func CreateTestUser(t *testing.T, pool *pgxpool.Pool, usernamePrefix string) uuid.UUID {
	t.Helper()

	suffix := uuid.New().String()[:8]
	username := fmt.Sprintf("%s_%s", usernamePrefix, suffix)

	var id uuid.UUID
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (clerk_id, email, username)
		VALUES ($1, $2, $3)
		RETURNING id
	`, "clerk_test_"+suffix, fmt.Sprintf("test_%s@example.com", suffix), username).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return id
}

// CleanupTestDB removes test users (cascades to their challenges,
// participants, invites and achievements) and closes the pool.
func CleanupTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, `
		DELETE FROM challenges WHERE created_by IN (SELECT id FROM users WHERE email LIKE 'test_%@example.com')
	`)
	if err != nil {
		t.Logf("Warning: failed to cleanup test challenges: %v", err)
	}

	_, err = pool.Exec(ctx, "DELETE FROM users WHERE email LIKE 'test_%@example.com'")
	if err != nil {
		t.Logf("Warning: failed to cleanup test users: %v", err)
	}

	pool.Close()
}
