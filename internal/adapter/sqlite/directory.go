package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/tenantgrid/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: Directory implements domain.TenantDirectory.
var _ domain.TenantDirectory = (*Directory)(nil)

// availabilityProbeInterval is the pause between WaitForAvailable pings.
const availabilityProbeInterval = 250 * time.Millisecond

// Directory implements domain.TenantDirectory using SQLite. Tenant records
// are rows in a tenants table; metadata is stored as a JSON object.
type Directory struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready directory.
func New(dataSourceName string) (*Directory, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and
// returns a ready directory. Use this when the *sql.DB has been
// pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Directory, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Directory{db: db}, nil
}

// Close closes the underlying database connection.
func (d *Directory) Close() error {
	return d.db.Close()
}

// DB returns the underlying database connection for use by other adapters
// (e.g., river).
func (d *Directory) DB() *sql.DB {
	return d.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// WaitForAvailable pings the database until it answers or the context
// expires. For an embedded database this settles almost immediately, but
// callers treat the directory like any remote service.
func (d *Directory) WaitForAvailable(ctx context.Context) error {
	for {
		if err := d.db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-time.After(availabilityProbeInterval):
		case <-ctx.Done():
			return fmt.Errorf("tenant directory unavailable: %w", ctx.Err())
		}
	}
}

const timeFormat = "2006-01-02T15:04:05Z"

// Create registers a tenant record in the directory. Used by seeding and
// provisioning tooling; the orchestrator itself only reads.
func (d *Directory) Create(ctx context.Context, record domain.TenantRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, metadata, created_at)
		 VALUES (?, ?, ?, ?)`,
		record.ID, record.Name, string(metadata),
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

// GetTenantByID returns the record for the given id, or ErrTenantUnknown.
func (d *Directory) GetTenantByID(ctx context.Context, id string) (domain.TenantRecord, error) {
	var record domain.TenantRecord
	var metadata string

	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, metadata FROM tenants WHERE id = ?`, id,
	).Scan(&record.ID, &record.Name, &metadata)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.TenantRecord{}, domain.ErrTenantUnknown
		}
		return domain.TenantRecord{}, fmt.Errorf("scanning tenant: %w", err)
	}

	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &record.Metadata); err != nil {
			return domain.TenantRecord{}, fmt.Errorf("decoding metadata: %w", err)
		}
	}

	return record, nil
}
