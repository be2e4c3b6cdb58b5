//go:build !unix

package terminal

import "context"

// watchResize only forwards the initial size; there is no SIGWINCH.
func watchResize(ctx context.Context, fd int, resize ResizeFunc) (stop func()) {
	sendSize(ctx, fd, resize)
	return func() {}
}
