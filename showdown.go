package showdown

import (
	"context"
	"encoding/json"
	"time"
)

// State is the lifecycle state of a client connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingChallenge
	StateAuthenticating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	default:
		return "disconnected"
	}
}

// Client is a connection to a Showdown server.
//
// Every send-style method queues its output on the client's scheduler and
// returns once queued; the scheduler paces and expires outputs.
//
// Example usage:
//
//	c := client.New(cfg, &myHooks{})
//	c.RegisterInterval(3*time.Second, func(ctx context.Context, c showdown.Client) error {
//	    return c.QueryBattles("gen9ou", 0, showdown.WithExpiry(3*time.Second))
//	})
//	err := c.Start(ctx)
type Client interface {
	// Start connects and serves the connection until ctx is cancelled, Close
	// is called, or the session ends with auto-reconnect disabled.
	//
	// Returns nil on a requested shutdown, otherwise the error that ended
	// the last session.
	Start(ctx context.Context) error

	// Close stops the client. A Start called after Close returns nil at
	// once. It is safe to call more than once.
	Close() error

	// RegisterInterval adds a task run every interval for as long as the
	// connection is active. A task returning an error ends the session.
	RegisterInterval(interval time.Duration, task IntervalTask) error

	State() State
	// SessionID identifies the current connection in logs; empty while
	// disconnected.
	SessionID() string
	// Self is the identity the client is logged in as.
	Self() Identity
	Rooms() []Room
	Room(id string) (Room, bool)
	Challenges() ChallengeSet

	// AddOutput queues raw protocol lines, e.g. "lobby|/help".
	AddOutput(content []string, opts ...SendOption) error
	// Command sends "/name args" to room, args joined by ", ".
	Command(roomID, name string, args []string, opts ...SendOption) error

	Join(roomID string, opts ...SendOption) error
	Leave(roomID string, opts ...SendOption) error
	Say(roomID, content string, opts ...SendOption) error
	PrivateMessage(user, content string, opts ...SendOption) error
	RequestRoomAuth(roomID string, opts ...SendOption) error

	UploadTeam(team string, opts ...SendOption) error
	ValidateTeam(team, format string, opts ...SendOption) error
	SearchBattles(team, format string, opts ...SendOption) error
	CancelSearch(opts ...SendOption) error

	SendChallenge(user, team, format string, opts ...SendOption) error
	CancelChallenge(opts ...SendOption) error
	AcceptChallenge(user, team string, opts ...SendOption) error
	RejectChallenge(user string, opts ...SendOption) error

	Forfeit(battleID string, opts ...SendOption) error
	SaveReplay(battleID string, opts ...SendOption) error
	SetTimer(battleID string, on bool, opts ...SendOption) error
	ChooseMove(battleID, move, modifier string, opts ...SendOption) error
	ChooseSwitch(battleID, slot string, opts ...SendOption) error
	ChooseTeam(battleID, order string, opts ...SendOption) error
	UndoChoice(battleID string, opts ...SendOption) error

	SetAvatar(avatarID string, opts ...SendOption) error
	QueryRooms(opts ...SendOption) error
	QueryBattles(format string, minElo int, opts ...SendOption) error
	QueryUserDetails(user string, opts ...SendOption) error
}

// IntervalTask is a periodic task registered with Client.RegisterInterval.
type IntervalTask func(ctx context.Context, c Client) error

// Hooks are the callbacks a client invokes on protocol events.
//
// Hooks triggered by inbound messages run in their own goroutines, unordered
// with respect to each other and to message ingestion. A returned error (or
// a panic) is logged, or ends the session when Config.StrictHooks is set.
// Embed NopHooks to implement only the hooks you need.
//
// The ctx of a hook is cancelled when its session ends, and hooks should
// return promptly after that. A session end waits Config.HookGrace for them,
// then reconnects without them.
type Hooks interface {
	// OnConnect runs when the server acknowledges the socket.
	OnConnect(ctx context.Context, c Client) error
	// OnLogin runs after a successful login.
	OnLogin(ctx context.Context, c Client, login LoginResult) error
	// OnDisconnect runs after the session is torn down, before any reconnect.
	OnDisconnect(ctx context.Context, c Client, willReconnect bool) error
	// OnRoomInit runs when the client enters a room.
	OnRoomInit(ctx context.Context, c Client, room Room) error
	// OnRoomDeinit runs with the final snapshot of a room the client left.
	OnRoomDeinit(ctx context.Context, c Client, room Room) error
	// OnQueryResponse runs for every "queryresponse", e.g. "userdetails".
	OnQueryResponse(ctx context.Context, c Client, queryType string, data json.RawMessage) error
	// OnChallengeUpdate runs with the new challenge state.
	OnChallengeUpdate(ctx context.Context, c Client, challenges ChallengeSet) error
	OnChatMessage(ctx context.Context, c Client, msg ChatMessage) error
	OnPrivateMessage(ctx context.Context, c Client, msg PrivateMessage) error
	// OnReceive runs for every inbound line, whatever its type.
	OnReceive(ctx context.Context, c Client, roomID, msgType string, params []string) error
}

// NopHooks implements Hooks with no-ops.
type NopHooks struct{}

func (NopHooks) OnConnect(context.Context, Client) error { return nil }

func (NopHooks) OnLogin(context.Context, Client, LoginResult) error { return nil }

func (NopHooks) OnDisconnect(context.Context, Client, bool) error { return nil }

func (NopHooks) OnRoomInit(context.Context, Client, Room) error { return nil }

func (NopHooks) OnRoomDeinit(context.Context, Client, Room) error { return nil }

func (NopHooks) OnQueryResponse(context.Context, Client, string, json.RawMessage) error {
	return nil
}

func (NopHooks) OnChallengeUpdate(context.Context, Client, ChallengeSet) error { return nil }

func (NopHooks) OnChatMessage(context.Context, Client, ChatMessage) error { return nil }

func (NopHooks) OnPrivateMessage(context.Context, Client, PrivateMessage) error { return nil }

func (NopHooks) OnReceive(context.Context, Client, string, string, []string) error { return nil }

// Authenticator performs the HTTP side of the protocol.
type Authenticator interface {
	// Login exchanges credentials and the server challenge for an assertion.
	// A refused login is an *AuthError.
	Login(ctx context.Context, name, password, challengeKeyID, challenge string) (LoginResult, error)
	// UploadReplay posts the data of a "savereplay" query response.
	UploadReplay(ctx context.Context, data map[string]any) error
}

// TeamEncoder turns user-supplied team text into the packed wire format.
type TeamEncoder interface {
	EncodeTeam(team string) (string, error)
}

// TeamEncoderFunc adapts a function to TeamEncoder.
type TeamEncoderFunc func(team string) (string, error)

func (f TeamEncoderFunc) EncodeTeam(team string) (string, error) { return f(team) }

// PackedTeam is the default TeamEncoder: the team is assumed to already be
// packed, and an empty team becomes "null" (formats without team choice).
var PackedTeam TeamEncoder = TeamEncoderFunc(func(team string) (string, error) {
	if team == "" {
		return "null", nil
	}
	return team, nil
})
