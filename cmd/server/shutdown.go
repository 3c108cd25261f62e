package main

import (
	"context"
	"log/slog"
	"time"
)

// stopper is satisfied by *http.Server and *supervisor.Supervisor.
type stopper interface {
	Shutdown(ctx context.Context) error
}

type shutdownStep struct {
	name string
	stop stopper
}

// shutdown runs the steps in order, each under its own timeout, and
// returns the first error. A step that uses its whole budget does not
// shorten the next one.
func shutdown(log *slog.Logger, timeout time.Duration, steps ...shutdownStep) error {
	var first error
	for _, step := range steps {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := step.stop.Shutdown(ctx)
		cancel()
		if err != nil {
			log.Error("shutdown step failed", "step", step.name, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
