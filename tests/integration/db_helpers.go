package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lendfast/drawbridge/internal/database"
	"github.com/lendfast/drawbridge/internal/repositories"
)

// TestDB manages the PostgreSQL testcontainer behind the integration suite
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase starts a PostgreSQL container, applies the embedded
// migrations, and returns the wrapped pool
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("drawbridge"),
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

	db := database.NewFromPool(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))

	goose.SetLogger(goose.NopLogger())
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

// CleanupTables truncates every drawbridge table for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"rate_limit_counters",
		"audit_logs",
		"admin_mfa_devices",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates the repository set backed by the test pool
func InitializeRepositories(db *database.DB) (
	*repositories.RateLimitRepository,
	*repositories.AuditLogRepository,
	repositories.MFADeviceRepository,
	*repositories.StatementExecutor,
) {
	return repositories.NewRateLimitRepository(db),
		repositories.NewAuditLogRepository(db),
		repositories.NewMFADeviceRepository(db.Pool),
		repositories.NewStatementExecutor(db)
}

// BackdateWindow shifts a counter row's window into the past, simulating
// the passage of wall-clock time for rollover and staleness tests.
func BackdateWindow(ctx context.Context, pool *pgxpool.Pool, identifier, endpoint string, by time.Duration) error {
	tag, err := pool.Exec(ctx,
		`UPDATE rate_limit_counters
		 SET window_start = window_start - make_interval(secs => $3)
		 WHERE identifier = $1 AND endpoint = $2`,
		identifier, endpoint, by.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to backdate window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no counter row for %s/%s", identifier, endpoint)
	}
	return nil
}

// BackdateDeviceLastUse ages an admin MFA device's last_used_at so a fresh
// TOTP code clears the replay window without waiting it out.
func BackdateDeviceLastUse(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID, by time.Duration) error {
	tag, err := pool.Exec(ctx,
		`UPDATE admin_mfa_devices
		 SET last_used_at = NOW() - make_interval(secs => $2)
		 WHERE user_id = $1`,
		userID, by.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to backdate device use: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no MFA device for user %s", userID)
	}
	return nil
}

// CountAuditLogs returns how many audit rows exist for an event type
func CountAuditLogs(ctx context.Context, pool *pgxpool.Pool, eventType string) (int, error) {
	var count int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE event_type = $1`, eventType,
	).Scan(&count)
	return count, err
}

// SeedLoanNotes creates and fills the scratch business table console tests
// run statements against. The drawbridge schema owns no business tables, so
// the suite provides one.
func SeedLoanNotes(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS loan_notes (
			id SERIAL PRIMARY KEY,
			borrower_email TEXT NOT NULL,
			note TEXT NOT NULL
		)`,
		`TRUNCATE TABLE loan_notes RESTART IDENTITY`,
		`INSERT INTO loan_notes (borrower_email, note) VALUES
			('jane@example.com', 'income verified'),
			('sam@example.com', 'awaiting W-2'),
			('lee@example.com', 'escalated to underwriting')`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to seed loan_notes: %w", err)
		}
	}
	return nil
}

// LoanNote reads a single note back for assertions
func LoanNote(ctx context.Context, pool *pgxpool.Pool, id int) (string, error) {
	var note string
	err := pool.QueryRow(ctx, `SELECT note FROM loan_notes WHERE id = $1`, id).Scan(&note)
	return note, err
}
