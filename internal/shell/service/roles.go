package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-shellwords"

	"github.com/odooghost/odooghost/internal/core/dockerfile"
	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/shell/addons"
	"github.com/odooghost/odooghost/internal/shell/archive"
	"github.com/odooghost/odooghost/internal/shell/docker"
)

// Container-side paths of the data volumes.
const (
	PostgresDataDir = "/var/lib/postgresql/data"
	OdooDataDir     = "/var/lib/odoo"
	MailDataDir     = "/maildir"
)

// FilestorePath is where the application keeps the attachments of db.
func FilestorePath(db string) string {
	return OdooDataDir + "/filestore/" + db
}

// noHooks provides the lifecycle hooks of roles without addons or builds.
type noHooks struct{}

func (noHooks) beforeCreate(context.Context, CreateOptions) error { return nil }
func (noHooks) beforePull(context.Context) error                  { return nil }
func (noHooks) stageContext(string) error                         { return nil }
func (noHooks) command() ([]string, error)                        { return nil, nil }
func (noHooks) mounts() []docker.VolumeMount                      { return nil }
func (noHooks) tty() bool                                         { return false }

// =============================================================================
// Database
// =============================================================================

// Database is the PostgreSQL role. A remote database has no image, volume
// or container.
type Database struct {
	noHooks
	cfg *domain.DatabaseConfig
}

func (d *Database) name() string                 { return domain.RoleDatabase }
func (d *Database) config() domain.ServiceConfig { return d.cfg }
func (d *Database) baseImageTag() string         { return fmt.Sprintf("postgres:%d", d.cfg.Version) }
func (d *Database) imageTag() string             { return d.baseImageTag() }
func (d *Database) hasCustomImage() bool         { return false }
func (d *Database) isRemote() bool               { return d.cfg.IsRemote() }
func (d *Database) containerPort() int           { return 5432 }
func (d *Database) volumeTarget() string         { return PostgresDataDir }

func (d *Database) environment() map[string]string {
	return map[string]string{
		"POSTGRES_DB":       d.cfg.DatabaseName(),
		"POSTGRES_USER":     d.cfg.Username(),
		"POSTGRES_PASSWORD": d.cfg.Secret(),
	}
}

// =============================================================================
// Application
// =============================================================================

// Application is the Odoo role. It always builds a custom image on top of
// the official one.
type Application struct {
	stack  *domain.StackConfig
	cfg    *domain.ApplicationConfig
	addons *addons.Handler
}

func newApplication(stack *domain.StackConfig, deps Deps) *Application {
	cfg := stack.Services.Odoo
	return &Application{
		stack:  stack,
		cfg:    cfg,
		addons: addons.NewHandler(cfg.Version, cfg.Addons, deps.WorkingDir, deps.Git, deps.Logger),
	}
}

func (a *Application) name() string                 { return domain.RoleApplication }
func (a *Application) config() domain.ServiceConfig { return a.cfg }
func (a *Application) baseImageTag() string         { return "odoo:" + a.cfg.Version.String() }
func (a *Application) imageTag() string             { return domain.ImageTag(a.stack.Name, a.cfg.Version) }
func (a *Application) hasCustomImage() bool         { return true }
func (a *Application) isRemote() bool               { return false }
func (a *Application) containerPort() int           { return 8069 }
func (a *Application) volumeTarget() string         { return OdooDataDir }
func (a *Application) tty() bool                    { return true }

// Addons returns the addon handler.
func (a *Application) Addons() *addons.Handler { return a.addons }

func (a *Application) environment() map[string]string {
	db := a.stack.Services.DB
	host := db.Host
	if host == "" {
		host = a.stack.Hostname(domain.RoleDatabase)
	}
	return map[string]string{
		"HOST":     host,
		"USER":     db.Username(),
		"PASSWORD": db.Secret(),
	}
}

func (a *Application) command() ([]string, error) {
	var args []string
	if a.cfg.Cmdline != "" {
		parsed, err := shellwords.Parse(a.cfg.Cmdline)
		if err != nil {
			return nil, fmt.Errorf("parse cmdline: %w", err)
		}
		args = parsed
	}
	if path := a.addons.AddonsPath(); path != "" {
		args = append(args, "--addons-path="+path)
	}
	return args, nil
}

func (a *Application) mounts() []docker.VolumeMount {
	var out []docker.VolumeMount
	for _, src := range a.addons.MountAddons() {
		out = append(out, docker.VolumeMount{
			Source: a.addons.HostPath(src),
			Target: src.ContainerPath(),
		})
	}
	return out
}

func (a *Application) beforeCreate(ctx context.Context, opts CreateOptions) error {
	if !opts.EnsureAddons {
		return nil
	}
	return a.addons.Ensure(ctx)
}

func (a *Application) beforePull(ctx context.Context) error {
	return a.addons.Pull(ctx)
}

// stageContext lays out copy addons, requirement files and the Dockerfile.
func (a *Application) stageContext(dir string) error {
	for _, src := range a.addons.CopyAddons() {
		dst := filepath.Join(dir, filepath.FromSlash(src.ContextPath()))
		if err := archive.CopyTree(a.addons.HostPath(src), dst); err != nil {
			return fmt.Errorf("stage addons %s: %w", src.Name(), err)
		}
	}
	for _, req := range a.cfg.Dependencies.RequirementFiles() {
		dst := filepath.Join(dir, filepath.FromSlash(req.ContextPath()))
		if err := archive.CopyFile(req.HostPath, dst); err != nil {
			return fmt.Errorf("stage requirements %s: %w", req.HostPath, err)
		}
	}

	content, err := dockerfile.Render(dockerfile.ParamsFor(
		a.cfg,
		a.addons.CopyAddons(),
		a.addons.MountAddons(),
		a.addons.AddonsPath(),
	))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(content), 0o644)
}

// =============================================================================
// Auxiliary
// =============================================================================

// Auxiliary is the MailHog role.
type Auxiliary struct {
	noHooks
	cfg *domain.AuxiliaryConfig
}

func (m *Auxiliary) name() string                   { return domain.RoleMail }
func (m *Auxiliary) config() domain.ServiceConfig   { return m.cfg }
func (m *Auxiliary) baseImageTag() string           { return "mailhog/mailhog:" + m.cfg.ImageVersion() }
func (m *Auxiliary) imageTag() string               { return m.baseImageTag() }
func (m *Auxiliary) hasCustomImage() bool           { return false }
func (m *Auxiliary) isRemote() bool                 { return false }
func (m *Auxiliary) containerPort() int             { return 8025 }
func (m *Auxiliary) volumeTarget() string           { return MailDataDir }
func (m *Auxiliary) environment() map[string]string { return nil }
