package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/showdown"
)

// hookRunner runs hooks of one session in tracked goroutines.
type hookRunner struct {
	ctx    context.Context
	log    zerolog.Logger
	strict bool
	wg     sync.WaitGroup
	failed chan error
}

func newHookRunner(ctx context.Context, log zerolog.Logger, strict bool) *hookRunner {
	return &hookRunner{
		ctx:    ctx,
		log:    log,
		strict: strict,
		failed: make(chan error, 1),
	}
}

// fire runs fn in a new goroutine.
func (r *hookRunner) fire(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := call(r.ctx, name, fn); err != nil {
			r.report(err)
		}
	}()
}

// detach runs fn like a hook, but a failure is only logged.
func (r *hookRunner) detach(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := call(r.ctx, name, fn); err != nil {
			r.log.Warn().Err(err).Str("task", name).Msg("background task failed")
		}
	}()
}

func (r *hookRunner) report(err error) {
	r.log.Error().Err(err).Msg("hook failed")
	if !r.strict {
		return
	}
	select {
	case r.failed <- err:
	default:
	}
}

// watch returns the first hook failure. Only used in strict mode.
func (r *hookRunner) watch(ctx context.Context) error {
	select {
	case err := <-r.failed:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait blocks until every hook returned or grace elapsed, and reports
// whether all of them returned.
func (r *hookRunner) wait(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// call runs fn, turning an error or a panic into a *showdown.HookError.
func call(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &showdown.HookError{Hook: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if err := fn(ctx); err != nil {
		return &showdown.HookError{Hook: name, Err: err}
	}
	return nil
}
