package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/odooghost/odooghost/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteRegistry
// =============================================================================

// SQLiteRegistry implements Registry using SQLite.
type SQLiteRegistry struct {
	db *sqlx.DB
}

// stackRow represents a stacks row in the database.
type stackRow struct {
	Name      string `db:"name"`
	Config    string `db:"config"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

// NewSQLiteRegistry opens the database and runs migrations.
func NewSQLiteRegistry(dsn string) (*SQLiteRegistry, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteRegistry", "", "", "failed to open database", ErrConnectionFailed)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteRegistry", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteRegistry", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteRegistry{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// =============================================================================
// Stack Operations
// =============================================================================

func (r *SQLiteRegistry) Create(ctx context.Context, cfg *domain.StackConfig) error {
	data, err := encode("Create", cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO stacks (name, config, created_at, updated_at)
		VALUES (:name, :config, :created_at, :updated_at)`

	_, err = r.db.NamedExecContext(ctx, query, stackRow{
		Name:      cfg.Name,
		Config:    string(data),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: stacks.name") {
			return alreadyExists("Create", cfg.Name)
		}
		return NewStoreError("Create", "stack", cfg.Name, err.Error(), err)
	}
	return nil
}

func (r *SQLiteRegistry) Get(ctx context.Context, name string) (*domain.StackConfig, error) {
	var row stackRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM stacks WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Get", name)
		}
		return nil, NewStoreError("Get", "stack", name, err.Error(), err)
	}
	return decode("Get", name, []byte(row.Config))
}

func (r *SQLiteRegistry) Update(ctx context.Context, cfg *domain.StackConfig) error {
	data, err := encode("Update", cfg)
	if err != nil {
		return err
	}

	query := `
		UPDATE stacks SET
			config = :config,
			updated_at = :updated_at
		WHERE name = :name`

	res, err := r.db.NamedExecContext(ctx, query, map[string]any{
		"name":       cfg.Name,
		"config":     string(data),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return NewStoreError("Update", "stack", cfg.Name, err.Error(), err)
	}
	return checkAffected("Update", cfg.Name, res)
}

func (r *SQLiteRegistry) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stacks WHERE name = ?`, name)
	if err != nil {
		return NewStoreError("Delete", "stack", name, err.Error(), err)
	}
	return checkAffected("Delete", name, res)
}

func (r *SQLiteRegistry) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM stacks WHERE name = ?`, name); err != nil {
		return false, NewStoreError("Exists", "stack", name, err.Error(), err)
	}
	return n > 0, nil
}

func (r *SQLiteRegistry) List(ctx context.Context) ([]*domain.StackConfig, error) {
	var rows []stackRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM stacks ORDER BY name`); err != nil {
		return nil, NewStoreError("List", "stack", "", err.Error(), err)
	}
	out := make([]*domain.StackConfig, 0, len(rows))
	for _, row := range rows {
		cfg, err := decode("List", row.Name, []byte(row.Config))
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (r *SQLiteRegistry) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM stacks`); err != nil {
		return 0, NewStoreError("Count", "stack", "", err.Error(), err)
	}
	return n, nil
}

func checkAffected(op, name string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return NewStoreError(op, "stack", name, err.Error(), err)
	}
	if n == 0 {
		return notFound(op, name)
	}
	return nil
}
