package client

import (
	"context"
	"time"

	"github.com/luciancaetano/showdown"
	"github.com/luciancaetano/showdown/internal/engine"
	"github.com/luciancaetano/showdown/internal/websocket"
)

type Transport = engine.Transport
type Dialer = engine.Dialer
type HostResolver = engine.HostResolver

// Option customises the collaborators of a client.
type Option func(*engine.Options)

// New creates a client for cfg. hooks may be nil.
//
// Parameters:
//   - cfg: Connection settings. Use DefaultConfig() or LoadConfigFromEnv()
//   - hooks: Callbacks for protocol events. Embed showdown.NopHooks to
//     implement only some of them.
//   - opts: Optional collaborators, e.g. WithTeamEncoder
//
// Example:
//
//	cfg := client.DefaultConfig()
//	cfg.Username, cfg.Password = "mybot", "secret"
//	c, err := client.New(cfg, &myHooks{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = c.Start(ctx)
func New(cfg *showdown.Config, hooks showdown.Hooks, opts ...Option) (showdown.Client, error) {
	var o engine.Options
	for _, opt := range opts {
		opt(&o)
	}
	e, err := engine.New(cfg, hooks, o)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// DefaultConfig returns the configuration for the main server.
func DefaultConfig() *showdown.Config {
	return showdown.DefaultConfig()
}

// LoadConfigFromEnv returns DefaultConfig overridden by SHOWDOWN_* variables.
func LoadConfigFromEnv() *showdown.Config {
	return showdown.LoadFromEnv()
}

// WithAuthenticator replaces the HTTP action client used for login and
// replay upload.
func WithAuthenticator(auth showdown.Authenticator) Option {
	return func(o *engine.Options) { o.Auth = auth }
}

// WithHostResolver replaces the server info lookup.
func WithHostResolver(r HostResolver) Option {
	return func(o *engine.Options) { o.Resolver = r }
}

// WithTeamEncoder sets how team text is packed before upload. Teams are
// sent as given by default.
func WithTeamEncoder(enc showdown.TeamEncoder) Option {
	return func(o *engine.Options) { o.Teams = enc }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(o *engine.Options) { o.Dial = d }
}

// WithReconnectSleep replaces the wait between reconnect attempts.
func WithReconnectSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *engine.Options) { o.Sleep = sleep }
}

// ServerURL returns a websocket URL for host in the layout the server
// expects.
func ServerURL(scheme, host string) string {
	return websocket.ServerURL(scheme, host)
}
