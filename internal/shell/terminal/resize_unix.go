//go:build unix

package terminal

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// watchResize forwards the initial size and every SIGWINCH until stop is
// called or ctx is done.
func watchResize(ctx context.Context, fd int, resize ResizeFunc) (stop func()) {
	sendSize(ctx, fd, resize)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGWINCH)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-sigCh:
				ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
				if err != nil || ws.Row == 0 || ws.Col == 0 {
					continue
				}
				_ = resize(ctx, uint(ws.Row), uint(ws.Col))
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
