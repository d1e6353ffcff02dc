package showdown

// Message types consumed by the engine. Types are always lowercased by the
// line decoder.
const (
	MsgRawText          = "rawtext"
	MsgChallstr         = "challstr"
	MsgQueryResponse    = "queryresponse"
	MsgUpdateChallenges = "updatechallenges"
	MsgUpdateUser       = "updateuser"
	MsgChat             = "c"
	MsgChatTimestamped  = "c:"
	MsgChatLong         = "chat"
	MsgPrivateMessage   = "pm"
	MsgInit             = "init"
	MsgDeinit           = "deinit"
	MsgTitle            = "title"
	MsgUsers            = "users"
	MsgJoin             = "j"
	MsgJoinLong         = "join"
	MsgLeave            = "l"
	MsgLeaveLong        = "leave"
	MsgNameChange       = "n"
	MsgNameChangeLong   = "name"

	MsgPlayer   = "player"
	MsgRated    = "rated"
	MsgTier     = "tier"
	MsgRule     = "rule"
	MsgTurn     = "turn"
	MsgTeamSize = "teamsize"
	MsgPoke     = "poke"
	MsgSwitch   = "switch"
	MsgDrag     = "drag"
	MsgFaint    = "faint"
	MsgMove     = "move"
	MsgItem     = "-item"
	MsgEndItem  = "-enditem"
	MsgWin      = "win"
	MsgRequest  = "request"
	MsgNotice   = "-message"
)

// Query response types the engine reacts to.
const (
	QuerySaveReplay  = "savereplay"
	QueryRooms       = "rooms"
	QueryRoomList    = "roomlist"
	QueryUserDetails = "userdetails"
)

// DefaultRoom is the room assigned to lines that do not name one.
const DefaultRoom = "lobby"

// Standard error messages
const (
	// Protocol errors
	ErrMsgUnexpectedFrame  = "unexpected socket frame"
	ErrMsgMalformedFrame   = "malformed socket frame"
	ErrMsgUnexpectedAction = "unexpected action response"

	// Argument errors
	ErrMsgNegativeDelay    = "delay must be non-negative"
	ErrMsgNegativeExpiry   = "expiry must be non-negative"
	ErrMsgDelayAfterExpiry = "delay must be strictly less than expiry"
	ErrMsgEmptyPayload     = "output payload is empty"
	ErrMsgEmptyRoom        = "room id must not be empty"
	ErrMsgMessageTooLong   = "message content is too long"

	// Auth errors
	ErrMsgNoChallenge  = "cannot login, challstr has not been received yet"
	ErrMsgNoUsername   = "cannot login, no username has been specified"
	ErrMsgNoPassword   = "cannot login, no password has been specified"
	ErrMsgLoginFailed  = "login rejected by server"
	ErrMsgNoAssertion  = "login response carries no assertion"
	ErrMsgInvalidLogin = "invalid login response"

	// Connection errors
	ErrMsgConnectionClosed = "connection is closed"
	ErrMsgServerClosed     = "server closed the connection"
	ErrMsgAlreadyRunning   = "client already running"
)
