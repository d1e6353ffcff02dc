package showdown

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfigIsValid tests that the default configuration validates
func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())
}

// TestConfigValidate tests each invalid setting reported by Validate
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"no server", func(c *Config) { c.ServerID = "" }},
		{"bad scheme", func(c *Config) { c.Scheme = "http" }},
		{"no action url", func(c *Config) { c.ActionURL = "" }},
		{"no server info url", func(c *Config) { c.ServerInfoURL = "" }},
		{"zero reconnect delay", func(c *Config) { c.ReconnectDelay = 0 }},
		{"max below base", func(c *Config) { c.MaxReconnectDelay = time.Second }},
		{"no logs", func(c *Config) { c.MaxRoomLogs = 0 }},
		{"no message length", func(c *Config) { c.MaxMessageLength = 0 }},
		{"negative pace", func(c *Config) { c.PacePerLine = -1 }},
		{"no hook grace", func(c *Config) { c.HookGrace = 0 }},
		{"no ping", func(c *Config) { c.PingInterval = 0 }},
		{"no action rate", func(c *Config) { c.ActionRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.ServerID, cfg.ServerInfoURL, cfg.Scheme = "", "", ""
	cfg.WebsocketURL = "ws://localhost:8000/showdown/websocket"
	assert.NoError(t, cfg.Validate(), "an explicit websocket url needs no server")
}

// TestLoadFromEnv tests overriding the defaults from the environment
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHOWDOWN_USERNAME", "MyBot")
	t.Setenv("SHOWDOWN_PASSWORD", "hunter2")
	t.Setenv("SHOWDOWN_SERVER_ID", "smogtours")
	t.Setenv("SHOWDOWN_AUTOLOGIN", "false")
	t.Setenv("SHOWDOWN_AUTORECONNECT", "true")
	t.Setenv("SHOWDOWN_RECONNECT_DELAY", "2s")
	t.Setenv("SHOWDOWN_MAX_ROOM_LOGS", "not a number")

	cfg := LoadFromEnv()
	assert.Equal(t, "MyBot", cfg.Username)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, "smogtours", cfg.ServerID)
	assert.False(t, cfg.AutoLogin)
	assert.True(t, cfg.AutoReconnect)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, DefaultConfig().MaxRoomLogs, cfg.MaxRoomLogs)
	assert.Equal(t, "https://play.pokemonshowdown.com/~~smogtours/action.php", cfg.ExpandURL(cfg.ActionURL))
}

// TestSendOptions tests resolving and validating send options
func TestSendOptions(t *testing.T) {
	t.Parallel()

	o := ApplySendOptions()
	assert.Equal(t, SendOptions{ExpireAfter: Forever}, o)
	assert.NoError(t, o.Validate())

	o = ApplySendOptions(WithDelay(time.Second), WithExpiry(3*time.Second), WithStrictLength(), nil)
	assert.Equal(t, SendOptions{Delay: time.Second, ExpireAfter: 3 * time.Second, StrictLength: true}, o)
	assert.NoError(t, o.Validate())

	for _, bad := range []SendOptions{
		{Delay: -1, ExpireAfter: Forever},
		{ExpireAfter: -1},
		{Delay: time.Second, ExpireAfter: time.Second},
	} {
		assert.ErrorIs(t, bad.Validate(), ErrInvalidArgument, "%+v", bad)
	}
}

// TestErrorClasses tests that typed errors unwrap to their class
func TestErrorClasses(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	tests := []struct {
		err   error
		class error
		msg   string
	}{
		{&ProtocolError{Reason: "bad frame", Input: "x", Err: cause}, ErrProtocol, `bad frame "x": boom`},
		{&AuthError{User: "mybot", Reason: "login refused"}, ErrAuth, `login refused (user "mybot")`},
		{&TransportError{Op: "read", Err: cause}, ErrTransport, "read: boom"},
		{&HookError{Hook: "OnLogin", Err: cause}, ErrHook, "hook OnLogin: boom"},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, tt.err, tt.class)
		assert.Equal(t, tt.msg, tt.err.Error())
	}
	assert.ErrorIs(t, &HookError{Hook: "x", Err: cause}, cause)
}
