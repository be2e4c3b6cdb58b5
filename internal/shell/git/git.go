// Package git fetches remote addon repositories by driving the git binary.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrGitNotFound is returned when the git binary is not on PATH.
var ErrGitNotFound = errors.New("git executable not found")

// Client is the subset of git the addons handler needs.
type Client interface {
	// Clone makes a shallow clone of branch into dest, submodules included.
	Clone(ctx context.Context, url, branch, dest string) error
	// Pull fast-forwards dir to the remote branch and updates submodules.
	Pull(ctx context.Context, dir, branch string) error
	// IsDirty reports whether dir has uncommitted changes.
	IsDirty(ctx context.Context, dir string) (bool, error)
}

// ExecGit implements Client with os/exec.
type ExecGit struct {
	binary string
	depth  int
	logger *slog.Logger
}

// NewExecGit resolves the git binary. Depth below 1 means 1.
func NewExecGit(depth int, logger *slog.Logger) (*ExecGit, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if depth < 1 {
		depth = 1
	}
	bin, err := exec.LookPath("git")
	if err != nil {
		return nil, ErrGitNotFound
	}
	return &ExecGit{binary: bin, depth: depth, logger: logger}, nil
}

// Clone clones url at branch into dest.
func (g *ExecGit) Clone(ctx context.Context, url, branch, dest string) error {
	g.logger.Debug("cloning repository", "url", url, "branch", branch, "dest", dest)
	args := []string{
		"clone",
		"--depth", fmt.Sprint(g.depth),
		"--branch", branch,
		"--recurse-submodules",
		"--shallow-submodules",
		url, dest,
	}
	_, err := g.run(ctx, "", args...)
	return err
}

// Pull updates a clean checkout. Callers check IsDirty first.
func (g *ExecGit) Pull(ctx context.Context, dir, branch string) error {
	g.logger.Debug("pulling repository", "dir", dir, "branch", branch)
	if _, err := g.run(ctx, dir, "pull", "--ff-only", "origin", branch); err != nil {
		return err
	}
	_, err := g.run(ctx, dir, "submodule", "update", "--init", "--recursive")
	return err
}

// IsDirty runs status --porcelain.
func (g *ExecGit) IsDirty(ctx context.Context, dir string) (bool, error) {
	out, err := g.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func (g *ExecGit) run(ctx context.Context, dir string, args ...string) (string, error) {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		sub := args[0]
		if dir != "" {
			sub = args[2]
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("git %s: %s", sub, msg)
		}
		return "", fmt.Errorf("git %s: %w", sub, err)
	}
	return stdout.String(), nil
}
