package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/luciancaetano/showdown"
	"github.com/luciancaetano/showdown/internal/showdowntest"
)

const waitTimeout = 5 * time.Second

type mockAuth struct{ mock.Mock }

func (m *mockAuth) Login(_ context.Context, name, password, keyID, challenge string) (showdown.LoginResult, error) {
	args := m.Called(name, password, keyID, challenge)
	return args.Get(0).(showdown.LoginResult), args.Error(1)
}

func (m *mockAuth) UploadReplay(_ context.Context, data map[string]any) error {
	return m.Called(data).Error(0)
}

type event struct {
	hook    string
	roomID  string
	msgType string
	room    showdown.Room
	chat    showdown.ChatMessage
	pm      showdown.PrivateMessage
	query   string
	flag    bool
}

// recorder is a Hooks implementation that reports every call on a channel.
type recorder struct {
	showdown.NopHooks
	events chan event
}

func newRecorder() *recorder { return &recorder{events: make(chan event, 1024)} }

func (r *recorder) OnConnect(context.Context, showdown.Client) error {
	r.events <- event{hook: "OnConnect"}
	return nil
}

func (r *recorder) OnLogin(context.Context, showdown.Client, showdown.LoginResult) error {
	r.events <- event{hook: "OnLogin"}
	return nil
}

func (r *recorder) OnDisconnect(_ context.Context, _ showdown.Client, willReconnect bool) error {
	r.events <- event{hook: "OnDisconnect", flag: willReconnect}
	return nil
}

func (r *recorder) OnRoomInit(_ context.Context, _ showdown.Client, room showdown.Room) error {
	r.events <- event{hook: "OnRoomInit", room: room}
	return nil
}

func (r *recorder) OnRoomDeinit(_ context.Context, _ showdown.Client, room showdown.Room) error {
	r.events <- event{hook: "OnRoomDeinit", room: room}
	return nil
}

func (r *recorder) OnQueryResponse(_ context.Context, _ showdown.Client, queryType string, _ json.RawMessage) error {
	r.events <- event{hook: "OnQueryResponse", query: queryType}
	return nil
}

func (r *recorder) OnChallengeUpdate(context.Context, showdown.Client, showdown.ChallengeSet) error {
	r.events <- event{hook: "OnChallengeUpdate"}
	return nil
}

func (r *recorder) OnChatMessage(_ context.Context, _ showdown.Client, msg showdown.ChatMessage) error {
	r.events <- event{hook: "OnChatMessage", chat: msg}
	return nil
}

func (r *recorder) OnPrivateMessage(_ context.Context, _ showdown.Client, msg showdown.PrivateMessage) error {
	r.events <- event{hook: "OnPrivateMessage", pm: msg}
	return nil
}

func (r *recorder) OnReceive(_ context.Context, _ showdown.Client, roomID, msgType string, _ []string) error {
	r.events <- event{hook: "OnReceive", roomID: roomID, msgType: msgType}
	return nil
}

// waitFor returns the next event accepted by match, skipping the others.
func (r *recorder) waitFor(t *testing.T, match func(event) bool) event {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.events:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for hook event")
		}
	}
}

func hook(name string) func(event) bool {
	return func(ev event) bool { return ev.hook == name }
}

// drain returns every event still buffered.
func (r *recorder) drain() []event {
	var out []event
	for {
		select {
		case ev := <-r.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func testConfig(srv *showdowntest.Server) *showdown.Config {
	cfg := showdown.DefaultConfig()
	cfg.WebsocketURL = srv.WebsocketURL()
	cfg.ActionURL = srv.ActionURL()
	cfg.Username = "mybot"
	cfg.Password = "hunter2"
	cfg.PacePerLine = time.Millisecond
	cfg.RequeueDelay = time.Millisecond
	return cfg
}

func newServer(t *testing.T) *showdowntest.Server {
	t.Helper()
	srv := showdowntest.NewServer(showdowntest.Config{
		ChallengeKeyID: "4",
		Challenge:      "abc",
		Accounts:       map[string]string{"mybot": "hunter2"},
	})
	t.Cleanup(srv.Close)
	return srv
}

// start runs e in the background and returns Start's result channel. The
// engine is closed when the test ends.
func start(t *testing.T, e *Engine) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background()) }()
	t.Cleanup(func() {
		e.Close()
		select {
		case <-done:
		case <-time.After(waitTimeout):
		}
	})
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("Start did not return")
		return nil
	}
}

func nextPeer(t *testing.T, srv *showdowntest.Server) *showdowntest.Peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	peer, err := srv.NextPeer(ctx)
	require.NoError(t, err)
	return peer
}

func receiveLines(t *testing.T, peer *showdowntest.Peer) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	lines, err := peer.ReceiveLines(ctx)
	require.NoError(t, err)
	return lines
}

// TestSessionLifecycle tests login, commands and a battle room from init to deinit
func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	rec := newRecorder()
	e, err := New(testConfig(srv), rec, Options{})
	require.NoError(t, err)
	done := start(t, e)

	peer := nextPeer(t, srv)
	assert.Equal(t, []string{"|/trn mybot,0,assert-mybot"}, receiveLines(t, peer))
	rec.waitFor(t, hook("OnLogin"))
	require.Eventually(t, func() bool { return e.State() == showdown.StateActive }, waitTimeout, 5*time.Millisecond)
	assert.NotEmpty(t, e.SessionID())

	require.NoError(t, e.Join("techcode"))
	require.NoError(t, e.Say("lobby", "hi"))
	assert.Equal(t, []string{"|/join techcode"}, receiveLines(t, peer))
	assert.Equal(t, []string{"|hi"}, receiveLines(t, peer))

	room := "battle-gen9ou-1"
	require.NoError(t, peer.SendLines(room,
		"|init|battle",
		"|title|Alice vs. Bob",
		"|player|p1|Alice|1",
		"|player|p2|Bob|2",
		"|win|Alice",
	))
	created := rec.waitFor(t, hook("OnRoomInit"))
	assert.Equal(t, room, created.room.ID)
	assert.True(t, created.room.IsBattle())

	require.Eventually(t, func() bool {
		r, ok := e.Room(room)
		return ok && r.Battle.Ended
	}, waitTimeout, 5*time.Millisecond)

	require.NoError(t, peer.SendLines(room, "|deinit"))
	deinit := rec.waitFor(t, hook("OnRoomDeinit"))
	require.NotNil(t, deinit.room.Battle.Winner)
	assert.Equal(t, "alice", deinit.room.Battle.Winner.ID)
	assert.Equal(t, showdown.OutcomeKnockout, deinit.room.Battle.Outcome)

	require.NoError(t, peer.SendLines(room, "|j|Carol"))
	rec.waitFor(t, func(ev event) bool { return ev.hook == "OnReceive" && ev.msgType == "j" })
	_, tracked := e.Room(room)
	assert.False(t, tracked, "room must stay evicted after deinit")

	require.NoError(t, e.Close())
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, showdown.StateDisconnected, e.State())
	assert.Empty(t, e.SessionID())

	var roomHooks, disconnects int
	for _, ev := range rec.drain() {
		switch ev.hook {
		case "OnRoomDeinit", "OnRoomInit":
			roomHooks++
		case "OnDisconnect":
			disconnects++
			assert.False(t, ev.flag, "a closed client does not reconnect")
		}
	}
	assert.Zero(t, roomHooks, "init and deinit hooks fire exactly once")
	assert.Equal(t, 1, disconnects)
}

// TestSessionMessages tests the hooks fired for user, chat, pm, challenge and query lines
func TestSessionMessages(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	rec := newRecorder()
	e, err := New(testConfig(srv), rec, Options{})
	require.NoError(t, err)
	start(t, e)

	peer := nextPeer(t, srv)
	receiveLines(t, peer) // trn
	rec.waitFor(t, hook("OnLogin"))

	require.NoError(t, peer.SendLines("", "|updateuser| MyBot|1|1|{}"))
	require.Eventually(t, func() bool { return e.Self().ID == "mybot" }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, peer.SendLines("lobby", "|c:|1700000000|+Bob|hi|there"))
	chat := rec.waitFor(t, hook("OnChatMessage")).chat
	assert.Equal(t, "lobby", chat.RoomID)
	assert.Equal(t, '+', chat.Author.Rank)
	assert.Equal(t, "hi|there", chat.Content)
	assert.Equal(t, int64(1700000000), chat.Timestamp.Unix())

	require.NoError(t, peer.SendLines("", "|pm| Alice|~MyBot|hello there"))
	pm := rec.waitFor(t, hook("OnPrivateMessage")).pm
	assert.Equal(t, "alice", pm.Author.ID)
	assert.Equal(t, "mybot", pm.Recipient.ID)
	assert.Equal(t, "hello there", pm.Content)

	require.NoError(t, peer.SendLines("", `|updatechallenges|{"challengesFrom":{"Alice":"gen9ou"},"challengeTo":null}`))
	rec.waitFor(t, hook("OnChallengeUpdate"))
	assert.Equal(t, map[string]string{"alice": "gen9ou"}, e.Challenges().Incoming)

	require.NoError(t, peer.SendLines("", `|queryresponse|savereplay|{"id":"gen9ou-1","log":"|win|Alice"}`))
	q := rec.waitFor(t, hook("OnQueryResponse"))
	assert.Equal(t, showdown.QuerySaveReplay, q.query)
	require.Eventually(t, func() bool { return len(srv.Replays()) == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, "gen9ou-1", srv.Replays()[0].Get("id"))
	assert.Equal(t, "|win|Alice", srv.Replays()[0].Get("log"))
}

// TestLoginWithAuthenticator tests logging in through a custom authenticator
func TestLoginWithAuthenticator(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	auth := &mockAuth{}
	auth.On("Login", "mybot", "hunter2", "4", "abc").
		Return(showdown.LoginResult{ActionSuccess: true, Assertion: "signed"}, nil).
		Once()

	e, err := New(testConfig(srv), nil, Options{Auth: auth})
	require.NoError(t, err)
	start(t, e)

	peer := nextPeer(t, srv)
	assert.Equal(t, []string{"|/trn mybot,0,signed"}, receiveLines(t, peer))
	auth.AssertExpectations(t)
}

// TestLoginFailureEndsSession tests that a refused login ends the session
func TestLoginFailureEndsSession(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.Password = "wrong"
	rec := newRecorder()

	e, err := New(cfg, rec, Options{})
	require.NoError(t, err)
	done := start(t, e)

	err = waitDone(t, done)
	require.ErrorIs(t, err, showdown.ErrAuth)
	rec.waitFor(t, func(ev event) bool { return ev.hook == "OnDisconnect" && !ev.flag })
}

// TestLoginWithoutPassword tests that a missing password ends the session before login
func TestLoginWithoutPassword(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.Password = ""
	auth := &mockAuth{}

	e, err := New(cfg, nil, Options{Auth: auth})
	require.NoError(t, err)
	done := start(t, e)

	err = waitDone(t, done)
	var authErr *showdown.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, showdown.ErrMsgNoPassword, authErr.Reason)
	auth.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestAnonymousSession tests a session that never logs in
func TestAnonymousSession(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.AutoLogin = false
	auth := &mockAuth{}

	e, err := New(cfg, nil, Options{Auth: auth})
	require.NoError(t, err)
	start(t, e)

	peer := nextPeer(t, srv)
	require.Eventually(t, func() bool { return e.State() == showdown.StateActive }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, e.QueryRooms())
	assert.Equal(t, []string{"|/cmd rooms"}, receiveLines(t, peer))
	auth.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

type failingHooks struct {
	showdown.NopHooks
}

func (failingHooks) OnConnect(context.Context, showdown.Client) error {
	return errors.New("refusing to connect")
}

// TestStrictHooksEndSession tests that a failing hook ends a strict session
func TestStrictHooksEndSession(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.AutoLogin = false
	cfg.StrictHooks = true

	e, err := New(cfg, failingHooks{}, Options{})
	require.NoError(t, err)
	done := start(t, e)

	err = waitDone(t, done)
	require.ErrorIs(t, err, showdown.ErrHook)
	var hookErr *showdown.HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "OnConnect", hookErr.Hook)
}

// TestLenientHooksKeepSession tests that a failing hook is only logged by default
func TestLenientHooksKeepSession(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.AutoLogin = false

	e, err := New(cfg, failingHooks{}, Options{})
	require.NoError(t, err)
	start(t, e)

	peer := nextPeer(t, srv)
	require.Eventually(t, func() bool { return e.State() == showdown.StateActive }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, e.SetAvatar("caitlin"))
	assert.Equal(t, []string{"|/avatar caitlin"}, receiveLines(t, peer))
}

// TestStartTwice tests that a running client cannot be started again
func TestStartTwice(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	e, err := New(testConfig(srv), nil, Options{})
	require.NoError(t, err)
	start(t, e)
	nextPeer(t, srv)

	err = e.Start(context.Background())
	assert.ErrorIs(t, err, showdown.ErrAlreadyRunning)
}

// TestStartReturnsOnContextCancel tests that cancelling the context stops Start
func TestStartReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	e, err := New(testConfig(srv), nil, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()
	nextPeer(t, srv)

	cancel()
	assert.NoError(t, waitDone(t, done))
}

// TestServerCloseEndsSession tests that a server close ends the session and drops pending output
func TestServerCloseEndsSession(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	e, err := New(testConfig(srv), nil, Options{})
	require.NoError(t, err)
	done := start(t, e)

	peer := nextPeer(t, srv)
	receiveLines(t, peer)
	require.NoError(t, e.Say("lobby", "queued", showdown.WithDelay(time.Hour)))
	peer.Close()

	err = waitDone(t, done)
	assert.ErrorIs(t, err, showdown.ErrTransport)
	assert.Zero(t, e.Pending(), "pending outputs are dropped at disconnect")
}

// TestIntervalTaskReachesServer tests that an interval task runs once the session is active
func TestIntervalTaskReachesServer(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.AutoLogin = false

	e, err := New(cfg, nil, Options{})
	require.NoError(t, err)
	require.NoError(t, e.RegisterInterval(time.Hour, func(ctx context.Context, c showdown.Client) error {
		return c.QueryBattles("gen9ou", 1500)
	}))
	start(t, e)

	peer := nextPeer(t, srv)
	assert.Equal(t, []string{"|/cmd roomlist gen9ou, 1500"}, receiveLines(t, peer))
}

// TestIntervalErrorEndsSession tests that a failing interval task ends the session
func TestIntervalErrorEndsSession(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.AutoLogin = false

	e, err := New(cfg, nil, Options{})
	require.NoError(t, err)
	require.NoError(t, e.RegisterInterval(time.Second, func(context.Context, showdown.Client) error {
		return errors.New("boom")
	}))
	done := start(t, e)

	err = waitDone(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

// TestRegisterIntervalValidation tests the arguments accepted by RegisterInterval
func TestRegisterIntervalValidation(t *testing.T) {
	t.Parallel()

	e, err := New(nil, nil, Options{})
	require.NoError(t, err)

	task := func(context.Context, showdown.Client) error { return nil }
	assert.ErrorIs(t, e.RegisterInterval(0, task), showdown.ErrInvalidArgument)
	assert.ErrorIs(t, e.RegisterInterval(time.Second, nil), showdown.ErrInvalidArgument)
}

// TestResolveWebsocketURL tests building the websocket URL from the server info document
func TestResolveWebsocketURL(t *testing.T) {
	t.Parallel()

	srv := showdowntest.NewServer(showdowntest.Config{})
	defer srv.Close()

	cfg := showdown.DefaultConfig()
	cfg.ServerInfoURL = srv.ServerInfoURL()

	e, err := New(cfg, nil, Options{})
	require.NoError(t, err)

	url, err := e.websocketURL(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "ws://"+srv.Host()+"/showdown/"), url)
	assert.True(t, strings.HasSuffix(url, "/websocket"), url)
}

// TestReconnectBackoff tests the doubling and capped reconnect delays
func TestReconnectBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		first time.Duration
		want  []time.Duration
	}{
		{"doubles", 5 * time.Second, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}},
		{"capped", 60 * time.Second, []time.Duration{60 * time.Second, 120 * time.Second, 180 * time.Second, 180 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := showdown.DefaultConfig()
			cfg.WebsocketURL = "ws://127.0.0.1:1/showdown/websocket"
			cfg.AutoReconnect = true
			cfg.ReconnectDelay = tt.first

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var (
				mu     sync.Mutex
				sleeps []time.Duration
				dials  int
			)
			e, err := New(cfg, nil, Options{
				Dial: func(context.Context, string) (Transport, error) {
					mu.Lock()
					dials++
					mu.Unlock()
					return nil, &showdown.TransportError{Op: "dial", Err: errors.New("connection refused")}
				},
				Sleep: func(ctx context.Context, d time.Duration) error {
					mu.Lock()
					defer mu.Unlock()
					sleeps = append(sleeps, d)
					if len(sleeps) == len(tt.want) {
						cancel()
						return ctx.Err()
					}
					return nil
				},
			})
			require.NoError(t, err)

			require.NoError(t, e.Start(ctx))
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tt.want, sleeps)
			assert.Equal(t, len(tt.want), dials)
		})
	}
}

// TestNoReconnectReturnsError tests that Start returns the error when reconnect is off
func TestNoReconnectReturnsError(t *testing.T) {
	t.Parallel()

	cfg := showdown.DefaultConfig()
	cfg.WebsocketURL = "ws://127.0.0.1:1/showdown/websocket"

	e, err := New(cfg, nil, Options{
		Dial: func(context.Context, string) (Transport, error) {
			return nil, &showdown.TransportError{Op: "dial", Err: errors.New("connection refused")}
		},
		Sleep: func(context.Context, time.Duration) error {
			t.Error("no backoff without auto reconnect")
			return nil
		},
	})
	require.NoError(t, err)

	err = e.Start(context.Background())
	assert.ErrorIs(t, err, showdown.ErrTransport)
	assert.Equal(t, showdown.StateDisconnected, e.State())
}

// TestCallRecoversPanics tests that hook panics become hook errors
func TestCallRecoversPanics(t *testing.T) {
	t.Parallel()

	err := call(context.Background(), "OnReceive", func(context.Context) error {
		panic("kaboom")
	})
	var hookErr *showdown.HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "OnReceive", hookErr.Hook)
	assert.Contains(t, err.Error(), "kaboom")

	assert.NoError(t, call(context.Background(), "OnReceive", func(context.Context) error { return nil }))
}

// TestPendingOutputSurvivesReconnect tests that KeepPendingOutput carries a
// delayed output over a dropped connection and sends it on the next one.
func TestPendingOutputSurvivesReconnect(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.AutoLogin = false
	cfg.AutoReconnect = true
	cfg.KeepPendingOutput = true
	rec := newRecorder()

	e, err := New(cfg, rec, Options{
		Sleep: func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	})
	require.NoError(t, err)
	start(t, e)

	first := nextPeer(t, srv)
	require.Eventually(t, func() bool { return e.State() == showdown.StateActive }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, e.Say("lobby", "still here", showdown.WithDelay(time.Second)))
	first.Close()

	rec.waitFor(t, func(ev event) bool { return ev.hook == "OnDisconnect" && ev.flag })
	assert.Equal(t, 1, e.Pending(), "pending output is kept across the disconnect")

	second := nextPeer(t, srv)
	assert.Equal(t, []string{"|still here"}, receiveLines(t, second))
	assert.Eventually(t, func() bool { return e.Pending() == 0 }, waitTimeout, 5*time.Millisecond)
}

type stalledHooks struct {
	showdown.NopHooks
	blocked atomic.Int32
}

func (h *stalledHooks) OnReceive(ctx context.Context, _ showdown.Client, _, _ string, _ []string) error {
	h.blocked.Add(1)
	<-ctx.Done()
	return nil
}

// TestSlowHooksDoNotStallIngestion tests that lines keep being folded into
// room state while every OnReceive hook is blocked.
func TestSlowHooksDoNotStallIngestion(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.AutoLogin = false
	hooks := &stalledHooks{}

	e, err := New(cfg, hooks, Options{})
	require.NoError(t, err)
	start(t, e)

	peer := nextPeer(t, srv)
	require.Eventually(t, func() bool { return e.State() == showdown.StateActive }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, peer.SendLines("techcode", "|init|chat", "|title|Tech Code"))
	require.NoError(t, peer.SendLines("techcode", "|j| Alice"))

	require.Eventually(t, func() bool {
		r, ok := e.Room("techcode")
		if !ok || r.Title != "Tech Code" {
			return false
		}
		_, joined := r.Users["alice"]
		return joined
	}, waitTimeout, 5*time.Millisecond)
	assert.GreaterOrEqual(t, hooks.blocked.Load(), int32(3), "hooks were running while the lines were folded")
}

type stuckHooks struct {
	showdown.NopHooks
	release chan struct{}
}

func (h *stuckHooks) OnConnect(context.Context, showdown.Client) error {
	<-h.release
	return nil
}

// TestStuckHookDoesNotBlockTeardown tests that a hook ignoring its context
// holds a session end back for HookGrace only.
func TestStuckHookDoesNotBlockTeardown(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.AutoLogin = false
	cfg.HookGrace = 50 * time.Millisecond
	hooks := &stuckHooks{release: make(chan struct{})}
	t.Cleanup(func() { close(hooks.release) })

	e, err := New(cfg, hooks, Options{})
	require.NoError(t, err)
	done := start(t, e)

	nextPeer(t, srv)
	require.Eventually(t, func() bool { return e.State() == showdown.StateActive }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, e.Close())
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, showdown.StateDisconnected, e.State())
}

// TestCloseBeforeStart tests that a Start following Close returns at once
// without dialling.
func TestCloseBeforeStart(t *testing.T) {
	t.Parallel()

	cfg := showdown.DefaultConfig()
	cfg.WebsocketURL = "ws://127.0.0.1:1/showdown/websocket"

	e, err := New(cfg, nil, Options{
		Dial: func(context.Context, string) (Transport, error) {
			t.Error("dialled after Close")
			return nil, errors.New("unreachable")
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background()) }()
	assert.NoError(t, waitDone(t, done))
	assert.Equal(t, showdown.StateDisconnected, e.State())
}

// TestNoIntervalOnEndedSession tests that intervals are not started on a
// session whose group has finished or that was torn down.
func TestNoIntervalOnEndedSession(t *testing.T) {
	t.Parallel()

	e, err := New(nil, nil, Options{})
	require.NoError(t, err)

	var runs atomic.Int32
	task := interval{every: time.Hour, task: func(context.Context, showdown.Client) error {
		runs.Add(1)
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	ended := &session{engine: e, ctx: gctx, group: g, log: zerolog.Nop(), active: true}
	cancel()
	require.NoError(t, g.Wait())

	e.mu.Lock()
	ended.startIntervalLocked(task)
	e.mu.Unlock()

	live := &session{engine: e, ctx: context.Background(), group: &errgroup.Group{}, log: zerolog.Nop(), active: true}
	e.mu.Lock()
	e.session = live
	e.mu.Unlock()
	e.teardown(live)

	e.mu.Lock()
	assert.False(t, live.active)
	live.startIntervalLocked(task)
	e.mu.Unlock()

	assert.Never(t, func() bool { return runs.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}
