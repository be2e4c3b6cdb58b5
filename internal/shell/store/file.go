package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/odooghost/odooghost/internal/core/domain"
)

// =============================================================================
// FileRegistry
// =============================================================================

// FileRegistry keeps one JSON document per stack, <dir>/<name>.json.
type FileRegistry struct {
	dir string
	mu  sync.Mutex
}

// NewFileRegistry creates dir when needed.
func NewFileRegistry(dir string) (*FileRegistry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewStoreError("NewFileRegistry", "", dir, err.Error(), ErrConnectionFailed)
	}
	return &FileRegistry{dir: dir}, nil
}

// Dir returns the directory holding the entries.
func (r *FileRegistry) Dir() string { return r.dir }

func (r *FileRegistry) path(op, name string) (string, error) {
	// The name becomes a file name, so it must not carry separators.
	if err := domain.ValidateStackName(name); err != nil {
		return "", NewStoreError(op, "stack", name, err.Error(), err)
	}
	return filepath.Join(r.dir, name+".json"), nil
}

func (r *FileRegistry) Create(_ context.Context, cfg *domain.StackConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.path("Create", cfg.Name)
	if err != nil {
		return err
	}
	if fileExists(p) {
		return alreadyExists("Create", cfg.Name)
	}
	return r.write("Create", p, cfg)
}

func (r *FileRegistry) Get(_ context.Context, name string) (*domain.StackConfig, error) {
	p, err := r.path("Get", name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound("Get", name)
	}
	if err != nil {
		return nil, NewStoreError("Get", "stack", name, err.Error(), err)
	}
	return decode("Get", name, data)
}

func (r *FileRegistry) Update(_ context.Context, cfg *domain.StackConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.path("Update", cfg.Name)
	if err != nil {
		return err
	}
	if !fileExists(p) {
		return notFound("Update", cfg.Name)
	}
	return r.write("Update", p, cfg)
}

func (r *FileRegistry) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.path("Delete", name)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return notFound("Delete", name)
	}
	if err != nil {
		return NewStoreError("Delete", "stack", name, err.Error(), err)
	}
	return nil
}

func (r *FileRegistry) Exists(_ context.Context, name string) (bool, error) {
	p, err := r.path("Exists", name)
	if err != nil {
		return false, err
	}
	return fileExists(p), nil
}

func (r *FileRegistry) List(ctx context.Context) ([]*domain.StackConfig, error) {
	names, err := r.names()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.StackConfig, 0, len(names))
	for _, n := range names {
		cfg, err := r.Get(ctx, n)
		if errors.Is(err, ErrNotFound) {
			continue // deleted meanwhile
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (r *FileRegistry) Count(context.Context) (int, error) {
	names, err := r.names()
	return len(names), err
}

func (r *FileRegistry) Close() error { return nil }

func (r *FileRegistry) names() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, NewStoreError("List", "", "", err.Error(), err)
	}
	var names []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || e.IsDir() || domain.ValidateStackName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// write replaces p atomically through a temp file in the same directory.
func (r *FileRegistry) write(op, p string, cfg *domain.StackConfig) error {
	data, err := encode(op, cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.dir, "."+cfg.Name+".*.tmp")
	if err != nil {
		return NewStoreError(op, "stack", cfg.Name, err.Error(), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return NewStoreError(op, "stack", cfg.Name, err.Error(), err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return NewStoreError(op, "stack", cfg.Name, err.Error(), err)
	}
	if err := tmp.Close(); err != nil {
		return NewStoreError(op, "stack", cfg.Name, err.Error(), err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return NewStoreError(op, "stack", cfg.Name, err.Error(), err)
	}
	return nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
