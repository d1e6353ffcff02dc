package protocol

import (
	"encoding/json"
	"strings"

	"github.com/luciancaetano/showdown"
)

// FrameKind is the class of a raw websocket frame, given by its first byte.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameOpen
	FrameHeartbeat
	FrameClose
	FrameBatch
)

func (k FrameKind) String() string {
	switch k {
	case FrameOpen:
		return "open"
	case FrameHeartbeat:
		return "heartbeat"
	case FrameClose:
		return "close"
	case FrameBatch:
		return "batch"
	default:
		return "unknown"
	}
}

const maxFrameSize = 16 * 1024 * 1024 // 16MB, battle logs can get large

// Line is one protocol line and the room it was addressed to.
type Line struct {
	RoomID string
	Text   string
}

// Kind classifies a raw frame.
func Kind(raw string) FrameKind {
	if raw == "" {
		return FrameUnknown
	}
	switch raw[0] {
	case 'o':
		return FrameOpen
	case 'h':
		return FrameHeartbeat
	case 'c':
		return FrameClose
	case 'a':
		return FrameBatch
	default:
		return FrameUnknown
	}
}

// DecodeFrame splits a batch frame into room-addressed lines, in order.
//
// The first line of each message may be ">roomid"; it is consumed and names
// the room for the remaining lines. Messages without it, or with an empty
// room, go to the lobby.
func DecodeFrame(raw string) ([]Line, error) {
	if len(raw) > maxFrameSize {
		return nil, &showdown.ProtocolError{Reason: "frame exceeds maximum size", Input: raw}
	}
	if Kind(raw) != FrameBatch {
		return nil, &showdown.ProtocolError{Reason: showdown.ErrMsgUnexpectedFrame, Input: raw}
	}

	var messages []string
	if err := json.Unmarshal([]byte(raw[1:]), &messages); err != nil {
		return nil, &showdown.ProtocolError{Reason: showdown.ErrMsgMalformedFrame, Input: raw, Err: err}
	}

	var lines []Line
	for _, message := range messages {
		if message == "" {
			continue
		}
		// A trailing newline ends the last line, it does not start a new one.
		parts := strings.Split(strings.TrimSuffix(message, "\n"), "\n")
		room := showdown.DefaultRoom
		if strings.HasPrefix(parts[0], ">") {
			if id := strings.TrimSpace(parts[0][1:]); id != "" {
				room = id
			}
			parts = parts[1:]
		}
		for _, text := range parts {
			lines = append(lines, Line{RoomID: room, Text: text})
		}
	}
	return lines, nil
}

// DecodeLine splits a line into its lowercased type and parameters.
//
// Lines without a "|" are free text and come back as ("rawtext", [line]).
func DecodeLine(line string) (string, []string) {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "|") {
		return showdown.MsgRawText, []string{line}
	}
	fields := strings.Split(line, "|")
	msgType := strings.ToLower(fields[1])
	return msgType, fields[2:]
}

// EncodeFrame encodes an outbound payload as a JSON array of strings.
func EncodeFrame(payload []string) (string, error) {
	if payload == nil {
		payload = []string{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeAction strips the "]" marker from an HTTP action response and returns
// the JSON document that follows it.
func DecodeAction(body string) (json.RawMessage, error) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "]") {
		return nil, &showdown.ProtocolError{Reason: showdown.ErrMsgUnexpectedAction, Input: body}
	}
	doc := strings.TrimSpace(body[1:])
	if !json.Valid([]byte(doc)) {
		return nil, &showdown.ProtocolError{Reason: showdown.ErrMsgUnexpectedAction, Input: body}
	}
	return json.RawMessage(doc), nil
}
