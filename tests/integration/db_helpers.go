package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/averycrane/gatehouse/internal/database"
	"github.com/averycrane/gatehouse/internal/models"
	pkgauth "github.com/averycrane/gatehouse/pkg/auth"
)

// TestDB manages a PostgreSQL testcontainer and the migrated schema.
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase starts a PostgreSQL container, runs all migrations, and
// returns a ready TestDB.
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("gatehouse"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &database.DB{Pool: pool}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"audit_events",
		"invitations",
		"memberships",
		"organizations",
		"external_identities",
		"verification_tokens",
		"refresh_tokens",
		"credentials",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedUser inserts a verified user with a credential row and returns the
// user model.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, password string, verified bool) (*models.User, error) {
	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	userID := uuid.NewString()
	now := time.Now().UTC()

	query := `
		INSERT INTO users (id, email, normalized_email, is_active, is_verified,
			custom_schema_version, created_at, updated_at)
		VALUES ($1, $2, lower($2), TRUE, $3, 1, $4, $4)
		RETURNING id, email, normalized_email, is_active, is_verified, created_at, updated_at
	`

	var user models.User
	err = pool.QueryRow(ctx, query, userID, email, verified, now).Scan(
		&user.ID,
		&user.Email,
		&user.NormalizedEmail,
		&user.IsActive,
		&user.IsVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	credQuery := `
		INSERT INTO credentials (user_id, password_hash, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $3, $3)
	`
	if _, err := pool.Exec(ctx, credQuery, userID, hashedPassword, now); err != nil {
		return nil, fmt.Errorf("failed to insert credential: %w", err)
	}

	return &user, nil
}

// SeedOrgWithMembership creates an organization and gives the user the role.
func SeedOrgWithMembership(ctx context.Context, pool *pgxpool.Pool, userID, name, slug string, role models.Role) (string, error) {
	orgID := uuid.NewString()
	now := time.Now().UTC()

	orgQuery := `
		INSERT INTO organizations (id, name, slug, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4)
	`
	if _, err := pool.Exec(ctx, orgQuery, orgID, name, slug, now); err != nil {
		return "", fmt.Errorf("failed to insert organization: %w", err)
	}

	memberQuery := `
		INSERT INTO memberships (id, user_id, org_id, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	memberID := uuid.NewString()
	if _, err := pool.Exec(ctx, memberQuery, memberID, userID, orgID, string(role), now); err != nil {
		return "", fmt.Errorf("failed to insert membership: %w", err)
	}

	return orgID, nil
}
