package showdown

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChatMessage is a message said in a room.
type ChatMessage struct {
	RoomID    string
	Timestamp time.Time // zero for untimestamped "c" lines
	Author    Identity
	Content   string
}

// ParseChatMessage builds a ChatMessage from the params of a "c", "chat" or
// "c:" line. Content keeps any "|" it contained.
func ParseChatMessage(roomID, msgType string, params []string) (ChatMessage, error) {
	msg := ChatMessage{RoomID: roomID}
	if msgType == MsgChatTimestamped {
		if len(params) < 1 {
			return msg, &ProtocolError{Reason: "chat line without timestamp"}
		}
		ts, err := strconv.ParseInt(params[0], 10, 64)
		if err != nil {
			return msg, &ProtocolError{Reason: "bad chat timestamp", Input: params[0], Err: err}
		}
		msg.Timestamp = time.Unix(ts, 0)
		params = params[1:]
	}
	if len(params) < 1 {
		return msg, &ProtocolError{Reason: "chat line without author"}
	}
	msg.Author = ParseIdentity(params[0])
	msg.Content = strings.Join(params[1:], "|")
	return msg, nil
}

func (m ChatMessage) String() string {
	return fmt.Sprintf("(%s) [%s] %s: %s", m.RoomID, m.Timestamp.UTC().Format(time.TimeOnly), m.Author, m.Content)
}

// PrivateMessage is a message sent directly between two users.
type PrivateMessage struct {
	Author     Identity
	Recipient  Identity
	Content    string
	ReceivedAt time.Time
}

// ParsePrivateMessage builds a PrivateMessage from the params of a "pm" line.
func ParsePrivateMessage(params []string, now time.Time) (PrivateMessage, error) {
	if len(params) < 2 {
		return PrivateMessage{}, &ProtocolError{Reason: "pm line needs author and recipient"}
	}
	return PrivateMessage{
		Author:     ParseIdentity(params[0]),
		Recipient:  ParseIdentity(params[1]),
		Content:    strings.Join(params[2:], "|"),
		ReceivedAt: now,
	}, nil
}

func (m PrivateMessage) String() string {
	return fmt.Sprintf("(private message) [%s] %s: %s", m.ReceivedAt.UTC().Format(time.TimeOnly), m.Author, m.Content)
}

// OutgoingChallenge is the one challenge this client currently has open.
type OutgoingChallenge struct {
	To     string `json:"to"`
	Format string `json:"format"`
}

// ChallengeSet is the full challenge state as last announced by the server.
type ChallengeSet struct {
	Incoming map[string]string  `json:"challengesFrom"`
	Outgoing *OutgoingChallenge `json:"challengeTo"`
}

// ParseChallengeSet decodes the JSON payload of an "updatechallenges" line.
// Incoming challenger names are canonicalized.
func ParseChallengeSet(raw string) (ChallengeSet, error) {
	var set ChallengeSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return ChallengeSet{}, &ProtocolError{Reason: "bad updatechallenges payload", Input: raw, Err: err}
	}
	incoming := make(map[string]string, len(set.Incoming))
	for name, format := range set.Incoming {
		incoming[Canonicalize(name)] = format
	}
	set.Incoming = incoming
	if set.Outgoing != nil {
		set.Outgoing.To = Canonicalize(set.Outgoing.To)
	}
	return set, nil
}

// Clone returns a deep copy of the set.
func (s ChallengeSet) Clone() ChallengeSet {
	out := ChallengeSet{Incoming: make(map[string]string, len(s.Incoming))}
	for k, v := range s.Incoming {
		out.Incoming[k] = v
	}
	if s.Outgoing != nil {
		o := *s.Outgoing
		out.Outgoing = &o
	}
	return out
}

// LoginResult is the action endpoint's answer to a login request.
type LoginResult struct {
	ActionSuccess bool            `json:"actionsuccess"`
	Assertion     string          `json:"assertion"`
	Raw           json.RawMessage `json:"-"`
}
