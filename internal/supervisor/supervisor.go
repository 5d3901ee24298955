// Package supervisor couples a foreground and a background unit of work:
// the process lives as long as the foreground unit does.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
)

// Unit is a blocking unit of work that stops when its context is cancelled.
type Unit func(ctx context.Context) error

// Run starts background in its own goroutine and runs foreground inline.
// When foreground returns, background is cancelled and foreground's result
// is returned without waiting for background to unwind, since it may be
// blocked on a read that cancellation cannot interrupt. Background finishing
// first, cleanly or not, is logged and leaves foreground running.
func Run(ctx context.Context, logger *slog.Logger, foreground, background Unit) error {
	if logger == nil {
		logger = slog.Default()
	}

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		err := background(bgCtx)
		switch {
		case err == nil:
			logger.Info("background transport finished")
		case errors.Is(err, context.Canceled) && bgCtx.Err() != nil:
			logger.Debug("background transport cancelled")
		default:
			logger.Error("background transport failed", slog.Any("err", err))
		}
	}()

	return foreground(ctx)
}
