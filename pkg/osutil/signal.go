package osutil

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// InterruptContext returns a context that lives until Ctrl+C is pressed twice.
// The first Ctrl+C only calls onFirst so the caller can wind down gracefully.
func InterruptContext(parent context.Context, onFirst func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)

		count := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				count++
				if count == 1 && onFirst != nil {
					onFirst()
					continue
				}
				cancel()
				return
			}
		}
	}()

	return ctx, cancel
}
