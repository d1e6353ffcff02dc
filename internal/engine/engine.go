// Package engine implements showdown.Client: the connection lifecycle, the
// receive loop and its dispatch to room state and hooks, periodic tasks and
// reconnects.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/showdown"
	"github.com/luciancaetano/showdown/internal/action"
	"github.com/luciancaetano/showdown/internal/roomstate"
	"github.com/luciancaetano/showdown/internal/scheduler"
	"github.com/luciancaetano/showdown/internal/websocket"
)

// errLoopExited ends a session when one of its loops returns without error.
var errLoopExited = errors.New("session loop exited")

// Transport is an open websocket to the server.
type Transport interface {
	ID() string
	// Read blocks for the next text frame.
	Read() (string, error)
	Send(ctx context.Context, frame string) error
	Close() error
}

// Dialer opens a Transport to url.
type Dialer func(ctx context.Context, url string) (Transport, error)

// HostResolver looks the websocket host of a server up.
type HostResolver interface {
	ResolveHost(ctx context.Context, serverInfoURL string) (string, error)
}

// Options are the collaborators of an Engine. Zero fields get production
// defaults built from the Config.
type Options struct {
	Auth     showdown.Authenticator
	Resolver HostResolver
	Teams    showdown.TeamEncoder
	Dial     Dialer
	// Sleep waits between reconnect attempts.
	Sleep func(ctx context.Context, d time.Duration) error
	// Clock drives the output scheduler and interval tasks.
	Clock scheduler.Clock
}

type interval struct {
	every time.Duration
	task  showdown.IntervalTask
}

// Engine is a showdown.Client.
type Engine struct {
	cfg   showdown.Config
	hooks showdown.Hooks
	log   zerolog.Logger

	auth     showdown.Authenticator
	resolver HostResolver
	teams    showdown.TeamEncoder
	dial     Dialer
	sleep    func(ctx context.Context, d time.Duration) error
	clock    scheduler.Clock

	queue *scheduler.Queue
	rooms *roomstate.Table

	state   atomic.Int32
	running atomic.Bool

	mu         sync.RWMutex
	session    *session
	challenges showdown.ChallengeSet
	self       showdown.Identity
	intervals  []interval
	stop       context.CancelFunc
	closed     bool
}

var _ showdown.Client = (*Engine)(nil)

// New returns an Engine for cfg. hooks may be nil.
func New(cfg *showdown.Config, hooks showdown.Hooks, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = showdown.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if hooks == nil {
		hooks = showdown.NopHooks{}
	}

	e := &Engine{
		cfg:      *cfg,
		hooks:    hooks,
		log:      cfg.Logger.With().Str("component", "engine").Logger(),
		auth:     opts.Auth,
		resolver: opts.Resolver,
		teams:    opts.Teams,
		dial:     opts.Dial,
		sleep:    opts.Sleep,
		clock:    opts.Clock,
	}

	if e.auth == nil || e.resolver == nil {
		ac := action.New(action.Config{
			ActionURL:  cfg.ExpandURL(cfg.ActionURL),
			HTTPClient: httpClient(cfg.HTTPClient),
			Rate:       rate.Limit(cfg.ActionRate),
			Burst:      cfg.ActionBurst,
			Logger:     cfg.Logger,
		})
		if e.auth == nil {
			e.auth = ac
		}
		if e.resolver == nil {
			e.resolver = ac
		}
	}
	if e.teams == nil {
		e.teams = showdown.PackedTeam
	}
	if e.clock == nil {
		e.clock = scheduler.RealClock()
	}
	if e.sleep == nil {
		e.sleep = e.clock.Sleep
	}
	if e.dial == nil {
		e.dial = e.dialWebsocket
	}

	e.queue = scheduler.NewQueue(e.clock)
	e.rooms = roomstate.New(cfg.MaxRoomLogs, cfg.Logger)
	return e, nil
}

func httpClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (e *Engine) dialWebsocket(ctx context.Context, url string) (Transport, error) {
	conn, err := websocket.Dial(ctx, url, websocket.Options{
		PingInterval:     e.cfg.PingInterval,
		WriteTimeout:     e.cfg.WriteTimeout,
		HandshakeTimeout: e.cfg.HandshakeTimeout,
		Logger:           e.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Start connects and serves sessions until ctx ends, Close is called, or a
// session ends while auto-reconnect is off.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return showdown.ErrAlreadyRunning
	}
	defer e.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.stop = cancel
	e.mu.Unlock()

	delay := e.cfg.ReconnectDelay
	for {
		connected, err := e.runSession(ctx)
		stopped := ctx.Err() != nil
		willReconnect := e.cfg.AutoReconnect && !stopped

		if connected {
			e.fireDisconnect(ctx, willReconnect)
		}
		if stopped {
			e.log.Info().Msg("client stopped")
			return nil
		}
		if !willReconnect {
			return err
		}

		e.log.Warn().Err(err).Dur("retry_in", delay).Msg("session ended, reconnecting")
		if err := e.sleep(ctx, delay); err != nil {
			return nil
		}
		delay = min(delay*2, e.cfg.MaxReconnectDelay)
	}
}

// Close stops a running Start. A Start called after Close returns nil at
// once. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	stop := e.stop
	e.mu.Unlock()

	if stop != nil {
		stop()
	}
	return nil
}

func (e *Engine) fireDisconnect(ctx context.Context, willReconnect bool) {
	err := call(context.WithoutCancel(ctx), "OnDisconnect", func(ctx context.Context) error {
		return e.hooks.OnDisconnect(ctx, e, willReconnect)
	})
	if err != nil {
		e.log.Error().Err(err).Msg("hook failed")
	}
}

// RegisterInterval adds a periodic task. Tasks start with every activation;
// one registered while the client is active starts right away.
func (e *Engine) RegisterInterval(every time.Duration, task showdown.IntervalTask) error {
	if every <= 0 {
		return showdown.InvalidArgument("interval must be positive, got %s", every)
	}
	if task == nil {
		return showdown.InvalidArgument("interval task is nil")
	}

	t := interval{every: every, task: task}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intervals = append(e.intervals, t)
	if e.session != nil {
		e.session.startIntervalLocked(t)
	}
	return nil
}

func (e *Engine) State() showdown.State { return showdown.State(e.state.Load()) }

func (e *Engine) setState(s showdown.State) {
	if old := showdown.State(e.state.Swap(int32(s))); old != s {
		e.log.Debug().Stringer("from", old).Stringer("to", s).Msg("state changed")
	}
}

// SessionID returns the id of the current connection, or "".
func (e *Engine) SessionID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return ""
	}
	return e.session.id
}

func (e *Engine) Self() showdown.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.self
}

func (e *Engine) Rooms() []showdown.Room { return e.rooms.Rooms() }

func (e *Engine) Room(id string) (showdown.Room, bool) { return e.rooms.Room(id) }

func (e *Engine) Challenges() showdown.ChallengeSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.challenges.Clone()
}

// Pending returns the number of outputs waiting in the queue.
func (e *Engine) Pending() int { return e.queue.Len() }
