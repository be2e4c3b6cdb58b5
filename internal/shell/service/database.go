package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/shell/docker"
)

// DumpFormat is a pg_dump output format.
type DumpFormat string

const (
	DumpPlain     DumpFormat = "p"
	DumpCustom    DumpFormat = "c"
	DumpDirectory DumpFormat = "d"
	DumpTar       DumpFormat = "t"
)

// ParseDumpFormat accepts the pg_dump letters.
func ParseDumpFormat(s string) (DumpFormat, error) {
	switch f := DumpFormat(s); f {
	case DumpPlain, DumpCustom, DumpDirectory, DumpTar:
		return f, nil
	}
	return "", domain.NewConfigError("format", fmt.Sprintf("unknown dump format %q", s), domain.ErrUnknownFormat)
}

var dbNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// now is replaced in tests.
var now = time.Now

// =============================================================================
// DatabaseAdmin
// =============================================================================

// DatabaseAdmin runs PostgreSQL client tools inside the db container as the
// postgres system user.
type DatabaseAdmin struct {
	container *docker.Container
	user      string
}

// NewDatabaseAdmin binds the helpers to a running db container. user is the
// PostgreSQL role to connect as.
func NewDatabaseAdmin(ct *docker.Container, user string) *DatabaseAdmin {
	if user == "" {
		user = domain.DefaultDatabaseUser
	}
	return &DatabaseAdmin{container: ct, user: user}
}

func (a *DatabaseAdmin) run(ctx context.Context, op string, cmd ...string) (string, error) {
	res, err := a.container.ExecRun(ctx, docker.ExecOptions{Command: cmd, User: "postgres"})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	out := string(res.Output)
	if res.ExitCode != 0 {
		return out, fmt.Errorf("%w: %s exited with %d: %s", ErrDatabaseCommand, op, res.ExitCode, strings.TrimSpace(out))
	}
	return out, nil
}

func checkName(name string) error {
	if !dbNamePattern.MatchString(name) {
		return domain.NewConfigError("database", fmt.Sprintf("invalid database name %q", name), domain.ErrInvalidDatabase)
	}
	return nil
}

// Exists reports whether database name exists.
func (a *DatabaseAdmin) Exists(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	out, err := a.run(ctx, "psql", "psql", "-U", a.user, "-d", "postgres", "-tAc",
		fmt.Sprintf("SELECT 1 FROM pg_database WHERE datname='%s';", name))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "1", nil
}

// Create creates database name from template (template1 when empty).
func (a *DatabaseAdmin) Create(ctx context.Context, name, template string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if template == "" {
		template = "template1"
	}
	_, err := a.run(ctx, "createdb", "createdb", "-U", a.user, "-T", template, name)
	return err
}

// Drop terminates the sessions of database name and drops it.
func (a *DatabaseAdmin) Drop(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	terminate := fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE pid <> pg_backend_pid() AND datname = '%s';", name)
	if _, err := a.run(ctx, "psql", "psql", "-U", a.user, "-d", "postgres", "-c", terminate); err != nil {
		return err
	}
	_, err := a.run(ctx, "dropdb", "dropdb", "-U", a.user, name)
	return err
}

// Dump writes a pg_dump of name inside the container and returns its path:
// /tmp/odooghost_dump_<db>_<YYYY-MM-DD_HH-MM-SS>, with .sql or .tar for
// the plain and tar formats. Directory dumps run with jobs workers.
func (a *DatabaseAdmin) Dump(ctx context.Context, name string, format DumpFormat, jobs int) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	path := fmt.Sprintf("/tmp/odooghost_dump_%s_%s", name, now().Format("2006-01-02_15-04-05"))
	switch format {
	case DumpPlain:
		path += ".sql"
	case DumpTar:
		path += ".tar"
	}

	cmd := []string{"pg_dump", "-U", a.user, "-F" + string(format)}
	if format == DumpDirectory && jobs > 0 {
		cmd = append(cmd, "-j", fmt.Sprint(jobs))
	}
	cmd = append(cmd, "-f", path, name)
	if _, err := a.run(ctx, "pg_dump", cmd...); err != nil {
		return "", err
	}
	return path, nil
}

// Restore loads a dump into name: psql for .sql files, pg_restore otherwise.
func (a *DatabaseAdmin) Restore(ctx context.Context, name, path string, jobs int) error {
	if err := checkName(name); err != nil {
		return err
	}
	if strings.HasSuffix(path, ".sql") {
		_, err := a.run(ctx, "psql", "psql", "-U", a.user, "--dbname="+name, "-q", "-f", path)
		return err
	}
	cmd := []string{"pg_restore", "-U", a.user, "--no-owner", "--dbname=" + name}
	if jobs > 0 {
		cmd = append(cmd, fmt.Sprintf("--jobs=%d", jobs))
	}
	cmd = append(cmd, path)
	_, err := a.run(ctx, "pg_restore", cmd...)
	return err
}

// ResetBaseURL drops the frozen web.base.url so the restored database
// follows the local address.
func (a *DatabaseAdmin) ResetBaseURL(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := a.run(ctx, "psql", "psql", "-U", a.user, "--dbname="+name, "-c",
		"DELETE FROM ir_config_parameter WHERE key = 'web.base.url.freeze';")
	return err
}

// RemovePath deletes a file or directory inside the container.
func (a *DatabaseAdmin) RemovePath(ctx context.Context, path string) error {
	_, err := a.run(ctx, "rm", "rm", "-rf", path)
	return err
}
