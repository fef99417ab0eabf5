package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/labforge/trackd/internal/database"
	"github.com/labforge/trackd/internal/models"
	"github.com/labforge/trackd/pkg/auth"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("trackd"),
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

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a stdlib DB connection
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
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
		"activity_log",
		"notifications",
		"comments",
		"tasks",
		"project_members",
		"projects",
		"login_attempts",
		"sessions",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedUser inserts a test user with hashed password
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, password string, role models.Role) (*models.User, error) {
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (email, password_hash, name, role, status)
		VALUES ($1, $2, $3, $4, 'active')
		RETURNING id, email, password_hash, name, role, status, created_at, updated_at
	`

	var user models.User
	var roleStr string
	err = pool.QueryRow(ctx, query, email, hashedPassword, "Test User", string(role)).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&roleStr,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	user.Role = models.Role(roleStr)

	return &user, nil
}

// SeedProject inserts a project owned by the given lecturer
func SeedProject(ctx context.Context, pool *pgxpool.Pool, title, ownerID string) (*models.Project, error) {
	query := `
		INSERT INTO projects (title, description, owner_id)
		VALUES ($1, '', $2)
		RETURNING id, title, description, owner_id, progress, created_at, updated_at
	`

	var project models.Project
	err := pool.QueryRow(ctx, query, title, ownerID).Scan(
		&project.ID,
		&project.Title,
		&project.Description,
		&project.OwnerID,
		&project.Progress,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}

	return &project, nil
}

// SeedProjectMember enrolls a student in a project
func SeedProjectMember(ctx context.Context, pool *pgxpool.Pool, projectID, userID string) error {
	_, err := pool.Exec(ctx,
		`INSERT INTO project_members (project_id, user_id) VALUES ($1, $2)`,
		projectID, userID,
	)
	return err
}

// SeedTask inserts a task with the given status
func SeedTask(ctx context.Context, pool *pgxpool.Pool, projectID, title, status string, assigneeID *string) (*models.Task, error) {
	query := `
		INSERT INTO tasks (project_id, title, status, assignee_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, project_id, title, status, assignee_id, created_at, updated_at
	`

	var task models.Task
	err := pool.QueryRow(ctx, query, projectID, title, status, assigneeID).Scan(
		&task.ID,
		&task.ProjectID,
		&task.Title,
		&task.Status,
		&task.AssigneeID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	return &task, nil
}
