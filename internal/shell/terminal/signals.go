package terminal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// WatchSignals escalates interrupts for a foreground container.
//
// The first SIGINT or SIGTERM calls onStop. Any later signal, or a SIGHUP at
// any time, calls onKill. Handlers run on the watcher goroutine. When sigs is
// nil the process signals are subscribed via signal.Notify. Call stop to
// detach.
func WatchSignals(ctx context.Context, sigs <-chan os.Signal, onStop, onKill func()) (stop func()) {
	var notifyCh chan os.Signal
	if sigs == nil {
		notifyCh = make(chan os.Signal, 2)
		signal.Notify(notifyCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		sigs = notifyCh
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		stopped := false
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case sig, ok := <-sigs:
				if !ok {
					return
				}
				if stopped || sig == syscall.SIGHUP {
					if onKill != nil {
						onKill()
					}
					continue
				}
				stopped = true
				if onStop != nil {
					onStop()
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if notifyCh != nil {
				signal.Stop(notifyCh)
			}
			close(done)
			wg.Wait()
		})
	}
}
