package stack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/odooghost/odooghost/internal/core/domain"
	"github.com/odooghost/odooghost/internal/shell/archive"
	"github.com/odooghost/odooghost/internal/shell/docker"
	"github.com/odooghost/odooghost/internal/shell/service"
)

// =============================================================================
// Options
// =============================================================================

// ExportOptions configures ExportData.
type ExportOptions struct {
	Database  string
	Dir       string // "." when empty
	Format    service.DumpFormat
	Jobs      int
	Filestore bool
}

// ExportResult lists the files ExportData wrote.
type ExportResult struct {
	DumpPath      string
	FilestorePath string
}

// ImportOptions configures ImportData. DumpPath is a .tar.gz written by
// ExportData, a plain .sql file, or a pg_dump directory. FilestorePath is
// optional and is either a .tar.gz or a directory.
type ImportOptions struct {
	Database      string
	DumpPath      string
	FilestorePath string
	Force         bool
	Jobs          int
}

// =============================================================================
// Export
// =============================================================================

// ExportData dumps a database of the stack, and optionally its filestore,
// into compressed tarballs on the host.
func (s *Stack) ExportData(ctx context.Context, opts ExportOptions) (*ExportResult, error) {
	if err := s.guard(ctx, "export"); err != nil {
		return nil, err
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Format == "" {
		opts.Format = service.DumpCustom
	}
	db := opts.Database

	dbCt, admin, err := s.databaseAdmin(ctx, "export")
	if err != nil {
		return nil, err
	}
	exists, err := admin.Exists(ctx, db)
	if err != nil {
		return nil, NewStackError("export", s.Name(), "", err, nil)
	}
	if !exists {
		return nil, NewStackError("export", s.Name(), fmt.Sprintf("database %q does not exist", db), ErrDatabaseNotFound, nil)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	s.logger.Info("dumping database", "database", db, "format", opts.Format)
	dumpPath, err := admin.Dump(ctx, db, opts.Format, opts.Jobs)
	if err != nil {
		return nil, NewStackError("export", s.Name(), "", err, nil)
	}
	defer func() {
		if err := admin.RemovePath(context.WithoutCancel(ctx), dumpPath); err != nil {
			s.logger.Warn("failed to remove dump from container", "path", dumpPath, "error", err)
		}
	}()

	result := &ExportResult{DumpPath: filepath.Join(opts.Dir, db+".dump.tar.gz")}
	if err := copyOut(ctx, dbCt, dumpPath, result.DumpPath); err != nil {
		return nil, NewStackError("export", s.Name(), "", err, nil)
	}

	if opts.Filestore {
		appCt, err := s.serviceContainer(ctx, domain.RoleApplication)
		if err != nil {
			return nil, err
		}
		result.FilestorePath = filepath.Join(opts.Dir, db+".filestore.tar.gz")
		if err := copyOut(ctx, appCt, service.FilestorePath(db), result.FilestorePath); err != nil {
			return nil, NewStackError("export", s.Name(), "", err, nil)
		}
	}
	s.logger.Info("exported database", "database", db, "dump", result.DumpPath, "filestore", result.FilestorePath)
	return result, nil
}

func copyOut(ctx context.Context, ct *docker.Container, src, dst string) error {
	rc, err := ct.GetArchive(ctx, src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	defer rc.Close()
	return archive.WriteGzipFile(dst, rc)
}

// =============================================================================
// Import
// =============================================================================

// ImportData creates a database from a dump and optionally restores its
// filestore.
func (s *Stack) ImportData(ctx context.Context, opts ImportOptions) error {
	if err := s.guard(ctx, "import"); err != nil {
		return err
	}
	db := opts.Database

	dbCt, admin, err := s.databaseAdmin(ctx, "import")
	if err != nil {
		return err
	}
	exists, err := admin.Exists(ctx, db)
	if err != nil {
		return NewStackError("import", s.Name(), "", err, nil)
	}
	if exists {
		if !opts.Force {
			return NewStackError("import", s.Name(), fmt.Sprintf("database %q already exists", db), ErrDatabaseExists, nil)
		}
		s.logger.Info("dropping existing database", "database", db)
		if err := admin.Drop(ctx, db); err != nil {
			return NewStackError("import", s.Name(), "", err, nil)
		}
	}

	if err := admin.Create(ctx, db, ""); err != nil {
		return NewStackError("import", s.Name(), "", err, nil)
	}

	restorePath, err := s.putDump(ctx, dbCt, db, opts.DumpPath)
	if err != nil {
		return NewStackError("import", s.Name(), "", err, nil)
	}
	defer func() {
		if err := admin.RemovePath(context.WithoutCancel(ctx), restorePath); err != nil {
			s.logger.Warn("failed to remove dump from container", "path", restorePath, "error", err)
		}
	}()

	s.logger.Info("restoring database", "database", db, "dump", opts.DumpPath)
	if err := admin.Restore(ctx, db, restorePath, opts.Jobs); err != nil {
		return NewStackError("import", s.Name(), "", err, nil)
	}

	if opts.FilestorePath != "" {
		if err := s.putFilestore(ctx, db, opts.FilestorePath); err != nil {
			return NewStackError("import", s.Name(), "", err, nil)
		}
	}

	if err := admin.ResetBaseURL(ctx, db); err != nil {
		return NewStackError("import", s.Name(), "", err, nil)
	}
	s.logger.Info("imported database", "database", db)
	return nil
}

// putDump copies the dump into /tmp of the db container and returns its
// container path.
func (s *Stack) putDump(ctx context.Context, ct *docker.Container, db, src string) (string, error) {
	const dir = "/tmp"

	if archive.IsGzipTar(src) {
		name, err := gzipFirstEntry(src)
		if err != nil {
			return "", err
		}
		rc, err := archive.OpenGzipFile(src)
		if err != nil {
			return "", err
		}
		defer rc.Close()
		if err := ct.PutArchive(ctx, dir, rc); err != nil {
			return "", fmt.Errorf("copy dump: %w", err)
		}
		return path.Join(dir, name), nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	name := "odooghost_import_" + db
	if !info.IsDir() {
		if strings.HasSuffix(src, ".sql") {
			name += ".sql"
		} else {
			name += ".dump"
		}
	}
	stream := tarStream(src, name)
	defer stream.Close()
	if err := ct.PutArchive(ctx, dir, stream); err != nil {
		return "", fmt.Errorf("copy dump: %w", err)
	}
	return path.Join(dir, name), nil
}

// putFilestore unpacks a filestore under the application data volume as
// the odoo user. The application container is started when needed.
func (s *Stack) putFilestore(ctx context.Context, db, src string) error {
	ct, err := s.serviceContainer(ctx, domain.RoleApplication)
	if err != nil {
		return err
	}
	if !ct.IsRunning() {
		if err := ct.Start(ctx); err != nil {
			return err
		}
	}

	root := path.Dir(service.FilestorePath(db))
	if err := rootExec(ctx, ct, "mkdir", "-p", root); err != nil {
		return err
	}

	var content *io.PipeReader
	if archive.IsGzipTar(src) {
		rc, err := archive.OpenGzipFile(src)
		if err != nil {
			return err
		}
		defer rc.Close()
		pr, pw := io.Pipe()
		go func() { pw.CloseWithError(archive.Rebase(rc, pw, db)) }()
		content = pr
	} else {
		content = tarStream(src, db)
	}
	defer content.Close()
	if err := ct.PutArchive(ctx, root, content); err != nil {
		return fmt.Errorf("copy filestore: %w", err)
	}
	return rootExec(ctx, ct, "chown", "-R", "odoo:odoo", service.FilestorePath(db))
}

// databaseAdmin returns the db container with its helpers.
func (s *Stack) databaseAdmin(ctx context.Context, op string) (*docker.Container, *service.DatabaseAdmin, error) {
	if s.cfg.Services.DB.IsRemote() {
		return nil, nil, NewStackError(op, s.Name(), "the database is managed outside odooghost", ErrRemoteDatabase, nil)
	}
	ct, err := s.serviceContainer(ctx, domain.RoleDatabase)
	if err != nil {
		return nil, nil, err
	}
	if !ct.IsRunning() {
		return nil, nil, NewStackError(op, s.Name(), ct.Name()+" is not running", docker.ErrContainerNotRunning, nil)
	}
	return ct, service.NewDatabaseAdmin(ct, s.cfg.Services.DB.Username()), nil
}

func gzipFirstEntry(p string) (string, error) {
	rc, err := archive.OpenGzipFile(p)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return archive.FirstEntry(rc)
}

// tarStream tars src under name on the fly. Closing the reader stops the
// writer.
func tarStream(src, name string) *io.PipeReader {
	pr, pw := io.Pipe()
	go func() { pw.CloseWithError(archive.TarPath(src, name, pw)) }()
	return pr
}

func rootExec(ctx context.Context, ct *docker.Container, cmd ...string) error {
	res, err := ct.ExecRun(ctx, docker.ExecOptions{Command: cmd, User: "root"})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited with %d: %s", cmd[0], res.ExitCode, strings.TrimSpace(string(res.Output)))
	}
	return nil
}
