package engine

import (
	"context"
	"fmt"
)

// runInterval runs t.task right away and then every t.every, measured from
// the start of the previous run. A slow run is followed immediately by the
// next one. An error or panic ends the session.
func (e *Engine) runInterval(ctx context.Context, t interval) error {
	for {
		started := e.clock.Now()
		err := call(ctx, "interval", func(ctx context.Context) error {
			return t.task(ctx, e)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("interval task (every %s): %w", t.every, err)
		}

		wait := max(0, t.every-e.clock.Now().Sub(started))
		if err := e.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}
