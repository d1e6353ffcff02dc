package showdown

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Default endpoints of the main server.
const (
	DefaultServerID      = "showdown"
	DefaultServerInfoURL = "https://pokemonshowdown.com/servers/{server_id}.json"
	DefaultActionURL     = "https://play.pokemonshowdown.com/~~{server_id}/action.php"
)

// Config is everything the connection engine needs. There is no
// process-wide state: server tables and endpoints all live here.
type Config struct {
	// Username and Password are the account to log in as.
	Username string
	Password string
	// AutoLogin logs in as soon as the server sends its challenge. When
	// false the client stays anonymous.
	AutoLogin bool

	// ServerID picks the server in the public server list.
	ServerID string
	// Host is "host:port" of the websocket server. Resolved from ServerID
	// through ServerInfoURL when empty.
	Host string
	// Scheme of the websocket URL built from Host, "ws" or "wss".
	Scheme string
	// WebsocketURL, when set, is dialled as-is and Host is ignored.
	WebsocketURL string
	// ServerInfoURL and ActionURL are templates; "{server_id}" is replaced
	// by ServerID.
	ServerInfoURL string
	ActionURL     string

	// AutoReconnect redials after the session ends.
	AutoReconnect bool
	// ReconnectDelay is the first backoff sleep; it doubles per consecutive
	// failure up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// MaxRoomLogs bounds the log buffer kept for each room.
	MaxRoomLogs int
	// MaxMessageLength bounds chat and private message content.
	MaxMessageLength int

	// RequeueDelay is the pause after requeueing an output that is not ready.
	RequeueDelay time.Duration
	// PacePerLine is the pause after a send, per line sent.
	PacePerLine time.Duration
	// KeepPendingOutput keeps queued outputs across reconnects.
	KeepPendingOutput bool

	// StrictHooks ends the session when a hook fails.
	StrictHooks bool
	// HookGrace bounds how long a session end waits for running hooks.
	// Hooks still running after it are left behind.
	HookGrace time.Duration

	// Websocket keep-alive and deadlines.
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration

	// ActionRate and ActionBurst limit requests to the action endpoint.
	ActionRate  float64
	ActionBurst int

	// HTTPClient is used for the action endpoint. http.DefaultClient if nil.
	HTTPClient *http.Client
	// Logger receives all engine logs.
	Logger zerolog.Logger
}

// DefaultConfig returns the configuration used against the main server.
func DefaultConfig() *Config {
	return &Config{
		Username:          "",
		AutoLogin:         true,
		ServerID:          DefaultServerID,
		Scheme:            "ws",
		ServerInfoURL:     DefaultServerInfoURL,
		ActionURL:         DefaultActionURL,
		AutoReconnect:     false,
		ReconnectDelay:    5 * time.Second,
		MaxReconnectDelay: 180 * time.Second,
		MaxRoomLogs:       5000,
		MaxMessageLength:  300,
		RequeueDelay:      50 * time.Millisecond,
		PacePerLine:       500 * time.Millisecond,
		HookGrace:         5 * time.Second,
		PingInterval:      54 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ActionRate:        2,
		ActionBurst:       4,
		Logger:            zerolog.Nop(),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ServerID == "" && c.Host == "" && c.WebsocketURL == "" {
		return errors.New("one of server id, host or websocket url is required")
	}
	if c.WebsocketURL == "" && c.Scheme != "ws" && c.Scheme != "wss" {
		return fmt.Errorf("websocket scheme must be ws or wss, got %q", c.Scheme)
	}
	if c.ActionURL == "" {
		return errors.New("action url cannot be empty")
	}
	if c.Host == "" && c.WebsocketURL == "" && c.ServerInfoURL == "" {
		return errors.New("server info url is required to resolve the host")
	}
	if c.ReconnectDelay <= 0 {
		return errors.New("reconnect delay must be positive")
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		return errors.New("max reconnect delay must not be below reconnect delay")
	}
	if c.MaxRoomLogs <= 0 {
		return errors.New("max room logs must be positive")
	}
	if c.MaxMessageLength <= 0 {
		return errors.New("max message length must be positive")
	}
	if c.RequeueDelay < 0 || c.PacePerLine < 0 {
		return errors.New("scheduler delays must be non-negative")
	}
	if c.HookGrace <= 0 {
		return errors.New("hook grace must be positive")
	}
	if c.PingInterval <= 0 || c.WriteTimeout <= 0 || c.HandshakeTimeout <= 0 {
		return errors.New("websocket timeouts must be positive")
	}
	if c.ActionRate <= 0 || c.ActionBurst <= 0 {
		return errors.New("action rate and burst must be positive")
	}
	return nil
}

// LoadFromEnv overrides the defaults with SHOWDOWN_* environment variables.
// Unparseable values are ignored.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if v := os.Getenv("SHOWDOWN_USERNAME"); v != "" {
		config.Username = v
	}
	if v := os.Getenv("SHOWDOWN_PASSWORD"); v != "" {
		config.Password = v
	}
	if v := os.Getenv("SHOWDOWN_SERVER_ID"); v != "" {
		config.ServerID = v
	}
	if v := os.Getenv("SHOWDOWN_HOST"); v != "" {
		config.Host = v
	}
	if v := os.Getenv("SHOWDOWN_SCHEME"); v != "" {
		config.Scheme = v
	}
	if v := os.Getenv("SHOWDOWN_WEBSOCKET_URL"); v != "" {
		config.WebsocketURL = v
	}
	if v := os.Getenv("SHOWDOWN_ACTION_URL"); v != "" {
		config.ActionURL = v
	}
	if v := os.Getenv("SHOWDOWN_AUTOLOGIN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.AutoLogin = b
		}
	}
	if v := os.Getenv("SHOWDOWN_AUTORECONNECT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.AutoReconnect = b
		}
	}
	if v := os.Getenv("SHOWDOWN_STRICT_HOOKS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.StrictHooks = b
		}
	}
	if v := os.Getenv("SHOWDOWN_RECONNECT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReconnectDelay = d
		}
	}
	if v := os.Getenv("SHOWDOWN_MAX_RECONNECT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.MaxReconnectDelay = d
		}
	}
	if v := os.Getenv("SHOWDOWN_MAX_ROOM_LOGS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.MaxRoomLogs = n
		}
	}

	return config
}

// ExpandURL substitutes "{server_id}" in an endpoint template.
func (c *Config) ExpandURL(template string) string {
	return strings.ReplaceAll(template, "{server_id}", c.ServerID)
}
