package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/odooghost/odooghost/internal/core/domain"
)

// =============================================================================
// Registry Interface
// =============================================================================

// Registry records which stacks exist and how they were declared. Stack
// lifecycle writes it last on create and clears it last on drop, so an entry
// means the stack was fully created.
type Registry interface {
	Create(ctx context.Context, cfg *domain.StackConfig) error
	Get(ctx context.Context, name string) (*domain.StackConfig, error)
	Update(ctx context.Context, cfg *domain.StackConfig) error
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	// List returns every entry sorted by name.
	List(ctx context.Context) ([]*domain.StackConfig, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// =============================================================================
// Backends
// =============================================================================

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the registry backend under appDir. dsn is only used by the
// SQLite backend and defaults to <appDir>/registry.db.
func Open(backend, appDir, dsn string) (Registry, error) {
	switch backend {
	case "", BackendFile:
		return NewFileRegistry(filepath.Join(appDir, "stacks"))
	case BackendSQLite:
		if dsn == "" {
			dsn = filepath.Join(appDir, "registry.db")
		}
		return NewSQLiteRegistry(dsn)
	default:
		return nil, NewStoreError("Open", "", "", fmt.Sprintf("unknown registry backend %q", backend), ErrConnectionFailed)
	}
}

func encode(op string, cfg *domain.StackConfig) ([]byte, error) {
	data, err := domain.Marshal(cfg)
	if err != nil {
		return nil, NewStoreError(op, "stack", cfg.Name, "failed to encode config", fmt.Errorf("%w: %w", ErrInvalidData, err))
	}
	return data, nil
}

func decode(op, name string, data []byte) (*domain.StackConfig, error) {
	cfg, err := domain.Unmarshal(data)
	if err != nil {
		return nil, NewStoreError(op, "stack", name, "failed to decode config", fmt.Errorf("%w: %w", ErrInvalidData, err))
	}
	return cfg, nil
}
