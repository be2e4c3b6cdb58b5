// Package terminal relays a local terminal to a hijacked container stream.
//
// It owns raw mode, window-size forwarding and the stop-then-kill signal
// escalation used by one-off runs.
package terminal

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/docker/docker/pkg/stdcopy"
	"golang.org/x/term"
)

// Conn is the remote end of an attach or exec session.
type Conn interface {
	io.Reader
	io.Writer
	CloseWrite() error
}

// ResizeFunc forwards a terminal size to the remote session.
type ResizeFunc func(ctx context.Context, height, width uint) error

// Options configures Relay.
type Options struct {
	In     io.Reader // nil disables input forwarding
	Out    io.Writer
	Err    io.Writer
	TTY    bool
	Resize ResizeFunc
}

// Relay copies In to conn and conn to Out/Err until the remote output ends or
// ctx is done. With TTY set and a terminal In, the local terminal is switched
// to raw mode for the duration and size changes are forwarded to Resize.
func Relay(ctx context.Context, conn Conn, opts Options) error {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Err == nil {
		opts.Err = opts.Out
	}

	if opts.TTY {
		if fd, ok := terminalFd(opts.In); ok {
			state, err := term.MakeRaw(fd)
			if err != nil {
				return err
			}
			defer term.Restore(fd, state)
		}
		if opts.Resize != nil {
			if fd, ok := terminalFd(opts.Out); ok {
				stop := watchResize(ctx, fd, opts.Resize)
				defer stop()
			} else if fd, ok := terminalFd(opts.In); ok {
				stop := watchResize(ctx, fd, opts.Resize)
				defer stop()
			}
		}
	}

	outDone := make(chan error, 1)
	go func() {
		var err error
		if opts.TTY {
			_, err = io.Copy(opts.Out, conn)
		} else {
			_, err = stdcopy.StdCopy(opts.Out, opts.Err, conn)
		}
		outDone <- err
	}()

	if opts.In != nil {
		go func() {
			_, _ = io.Copy(conn, opts.In)
			_ = conn.CloseWrite()
		}()
	} else {
		_ = conn.CloseWrite()
	}

	select {
	case err := <-outDone:
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTerminal reports whether r is a terminal file.
func IsTerminal(r any) bool {
	_, ok := terminalFd(r)
	return ok
}

// Size returns the size of the terminal behind f, if any.
func Size(f any) (height, width uint, ok bool) {
	fd, isTerm := terminalFd(f)
	if !isTerm {
		return 0, 0, false
	}
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return uint(h), uint(w), true
}

func terminalFd(v any) (int, bool) {
	f, ok := v.(*os.File)
	if !ok || f == nil {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// sendSize pushes the current size once. Errors are ignored; the session may
// not have started yet.
func sendSize(ctx context.Context, fd int, resize ResizeFunc) {
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return
	}
	_ = resize(ctx, uint(h), uint(w))
}
