package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/luciancaetano/showdown"
	"github.com/luciancaetano/showdown/internal/scheduler"
	"github.com/luciancaetano/showdown/internal/websocket"
)

// session is one connection, from dial to teardown.
type session struct {
	engine    *Engine
	id        string
	transport Transport
	log       zerolog.Logger
	ctx       context.Context
	group     *errgroup.Group
	hooks     *hookRunner

	// Owned by the receive goroutine.
	challengeKeyID string
	challenge      string

	// Guarded by engine.mu.
	active bool
}

func (e *Engine) websocketURL(ctx context.Context) (string, error) {
	switch {
	case e.cfg.WebsocketURL != "":
		return e.cfg.WebsocketURL, nil
	case e.cfg.Host != "":
		return websocket.ServerURL(e.cfg.Scheme, e.cfg.Host), nil
	}

	host, err := e.resolver.ResolveHost(ctx, e.cfg.ExpandURL(e.cfg.ServerInfoURL))
	if err != nil {
		return "", fmt.Errorf("resolve host of server %q: %w", e.cfg.ServerID, err)
	}
	return websocket.ServerURL(e.cfg.Scheme, host), nil
}

// runSession dials and serves one connection. connected reports whether the
// dial succeeded, i.e. whether there is anything to tear down.
func (e *Engine) runSession(ctx context.Context) (connected bool, err error) {
	e.setState(showdown.StateConnecting)

	url, err := e.websocketURL(ctx)
	if err != nil {
		e.setState(showdown.StateDisconnected)
		return false, err
	}
	tr, err := e.dial(ctx, url)
	if err != nil {
		e.setState(showdown.StateDisconnected)
		return false, err
	}

	g, gctx := errgroup.WithContext(ctx)
	sess := &session{
		engine:    e,
		id:        tr.ID(),
		transport: tr,
		log:       e.log.With().Str("session", tr.ID()).Logger(),
		ctx:       gctx,
		group:     g,
	}
	sess.hooks = newHookRunner(gctx, sess.log, e.cfg.StrictHooks)

	e.mu.Lock()
	e.session = sess
	e.mu.Unlock()
	sess.log.Info().Str("url", url).Msg("connected")

	g.Go(func() error {
		<-gctx.Done()
		tr.Close()
		return nil
	})
	g.Go(func() error { return e.receive(gctx, sess) })
	if e.cfg.StrictHooks {
		g.Go(func() error { return sess.hooks.watch(gctx) })
	}

	err = g.Wait()
	if !sess.hooks.wait(e.cfg.HookGrace) {
		sess.log.Warn().Dur("grace", e.cfg.HookGrace).Msg("hooks still running after session end")
	}
	e.teardown(sess)

	switch {
	case ctx.Err() != nil:
		sess.log.Info().Msg("session closed")
	case errors.Is(err, errLoopExited):
		sess.log.Info().Msg("session ended")
	default:
		sess.log.Error().Err(err).Msg("session failed")
	}
	return true, err
}

// activate starts the loops of the Active state: the output scheduler and
// every registered interval task.
func (e *Engine) activate(sess *session) {
	sched := scheduler.New(e.queue, sess.transport, scheduler.Config{
		RequeueDelay: e.cfg.RequeueDelay,
		PacePerLine:  e.cfg.PacePerLine,
		Clock:        e.clock,
		Logger:       sess.log,
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if sess.active {
		return
	}
	sess.active = true
	e.setState(showdown.StateActive)

	sess.group.Go(func() error {
		if err := sched.Run(sess.ctx); err != nil {
			return err
		}
		return errLoopExited
	})
	for _, t := range slices.Clone(e.intervals) {
		sess.startIntervalLocked(t)
	}
	sess.log.Info().Int("pending", e.queue.Len()).Int("intervals", len(e.intervals)).Msg("session active")
}

func (e *Engine) teardown(sess *session) {
	e.mu.Lock()
	sess.active = false
	e.session = nil
	e.challenges = showdown.ChallengeSet{}
	e.self = showdown.Identity{}
	e.mu.Unlock()
	e.setState(showdown.StateDisconnected)

	e.rooms.Reset()
	if !e.cfg.KeepPendingOutput {
		if n := e.queue.Clear(); n > 0 {
			sess.log.Debug().Int("discarded", n).Msg("pending outputs dropped")
		}
	}
}

// startIntervalLocked launches t if the session is active and its group is
// still running. engine.mu must be held.
func (s *session) startIntervalLocked(t interval) {
	// The group's context is cancelled before Wait can return.
	if !s.active || s.ctx.Err() != nil {
		return
	}
	s.group.Go(func() error { return s.engine.runInterval(s.ctx, t) })
}
