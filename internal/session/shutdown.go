package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"optionscore/pkg/utils"
)

// Closer is one subsystem that must be drained at shutdown.
type Closer struct {
	Name  string
	Close func(context.Context) error
}

// Drain shuts subsystems down in order under a hard wall-clock deadline
// (default 60 s). Errors are accumulated rather than aborting the
// drain: a stuck ledger flush must not prevent broker connections from
// closing cleanly.
func Drain(deadline time.Duration, log *utils.Logger, closers ...Closer) error {
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	var err error
	for _, c := range closers {
		select {
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("%s: drain deadline exceeded", c.Name))
			continue
		default:
		}
		start := time.Now()
		if cerr := c.Close(ctx); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", c.Name, cerr))
			log.Sugar().Errorf("shutdown: %s failed after %s: %v", c.Name, time.Since(start), cerr)
			continue
		}
		log.Sugar().Infof("shutdown: %s drained in %s", c.Name, time.Since(start))
	}
	return err
}
