package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/luciancaetano/showdown"
	"github.com/luciancaetano/showdown/internal/protocol"
)

// receive reads frames until the transport fails or ctx ends.
func (e *Engine) receive(ctx context.Context, sess *session) error {
	for {
		raw, err := sess.transport.Read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		sess.log.Trace().Msgf("<<< %s", raw)

		switch protocol.Kind(raw) {
		case protocol.FrameOpen:
			sess.log.Info().Msg("server acknowledged connection")
			e.setState(showdown.StateAwaitingChallenge)
			sess.hooks.fire("OnConnect", func(ctx context.Context) error {
				return e.hooks.OnConnect(ctx, e)
			})

		case protocol.FrameHeartbeat:

		case protocol.FrameClose:
			return &showdown.TransportError{Op: showdown.ErrMsgServerClosed, Err: fmt.Errorf("close frame %q", raw)}

		case protocol.FrameBatch:
			lines, err := protocol.DecodeFrame(raw)
			if err != nil {
				sess.log.Warn().Err(err).Msg("dropping frame")
				continue
			}
			for _, line := range lines {
				if err := e.dispatch(ctx, sess, line); err != nil {
					return err
				}
			}

		default:
			sess.log.Warn().Str("frame", raw).Msg(showdown.ErrMsgUnexpectedFrame)
		}
	}
}

// dispatch handles one line: session-level messages first, then room state,
// then the catch-all hook. Only login failures are returned.
func (e *Engine) dispatch(ctx context.Context, sess *session, line protocol.Line) error {
	msgType, params := protocol.DecodeLine(line.Text)
	hooks := sess.hooks

	switch msgType {
	case showdown.MsgChallstr:
		if err := e.handleChallenge(ctx, sess, params); err != nil {
			return err
		}

	case showdown.MsgQueryResponse:
		e.handleQueryResponse(sess, params)

	case showdown.MsgUpdateChallenges:
		set, err := showdown.ParseChallengeSet(strings.Join(params, "|"))
		if err != nil {
			sess.log.Warn().Err(err).Msg("ignoring challenge update")
			break
		}
		e.mu.Lock()
		e.challenges = set
		e.mu.Unlock()
		hooks.fire("OnChallengeUpdate", func(ctx context.Context) error {
			return e.hooks.OnChallengeUpdate(ctx, e, set.Clone())
		})

	case showdown.MsgChat, showdown.MsgChatTimestamped, showdown.MsgChatLong:
		msg, err := showdown.ParseChatMessage(line.RoomID, msgType, params)
		if err != nil {
			sess.log.Warn().Err(err).Str("room", line.RoomID).Msg("ignoring chat line")
			break
		}
		hooks.fire("OnChatMessage", func(ctx context.Context) error {
			return e.hooks.OnChatMessage(ctx, e, msg)
		})

	case showdown.MsgPrivateMessage:
		msg, err := showdown.ParsePrivateMessage(params, e.clock.Now())
		if err != nil {
			sess.log.Warn().Err(err).Msg("ignoring private message")
			break
		}
		hooks.fire("OnPrivateMessage", func(ctx context.Context) error {
			return e.hooks.OnPrivateMessage(ctx, e, msg)
		})

	case showdown.MsgUpdateUser:
		if len(params) > 0 {
			self := showdown.ParseIdentity(params[0])
			e.mu.Lock()
			e.self = self
			e.mu.Unlock()
			sess.log.Debug().Str("user", self.Name).Msg("identity updated")
		}
	}

	res := e.rooms.Apply(line.RoomID, line.Text, msgType, params)
	if res.Init != nil {
		room := *res.Init
		hooks.fire("OnRoomInit", func(ctx context.Context) error {
			return e.hooks.OnRoomInit(ctx, e, room)
		})
	}
	if res.Deinit != nil {
		room := *res.Deinit
		hooks.fire("OnRoomDeinit", func(ctx context.Context) error {
			return e.hooks.OnRoomDeinit(ctx, e, room)
		})
	}

	roomID, hookParams := line.RoomID, slices.Clone(params)
	hooks.fire("OnReceive", func(ctx context.Context) error {
		return e.hooks.OnReceive(ctx, e, roomID, msgType, hookParams)
	})
	return nil
}

// handleChallenge logs in with the challenge of a "challstr" line. The
// receive loop waits for the login to finish.
func (e *Engine) handleChallenge(ctx context.Context, sess *session, params []string) error {
	if len(params) < 2 {
		sess.log.Warn().Strs("params", params).Msg("ignoring malformed challstr")
		return nil
	}
	sess.challengeKeyID = params[0]
	sess.challenge = strings.Join(params[1:], "|")

	if !e.cfg.AutoLogin {
		sess.log.Info().Msg("auto login disabled, staying anonymous")
		e.activate(sess)
		return nil
	}

	name, password := e.cfg.Username, e.cfg.Password
	switch {
	case name == "":
		return &showdown.AuthError{Reason: showdown.ErrMsgNoUsername}
	case password == "":
		return &showdown.AuthError{User: name, Reason: showdown.ErrMsgNoPassword}
	}

	e.setState(showdown.StateAuthenticating)
	result, err := e.auth.Login(ctx, name, password, sess.challengeKeyID, sess.challenge)
	if err != nil {
		return err
	}

	frame, err := protocol.EncodeFrame([]string{fmt.Sprintf("|/trn %s,0,%s", name, result.Assertion)})
	if err != nil {
		return err
	}
	if err := sess.transport.Send(ctx, frame); err != nil {
		return err
	}
	sess.log.Info().Str("user", name).Msg("logged in")

	sess.hooks.fire("OnLogin", func(ctx context.Context) error {
		return e.hooks.OnLogin(ctx, e, result)
	})
	e.activate(sess)
	return nil
}

// handleQueryResponse fires OnQueryResponse and uploads "savereplay" data.
func (e *Engine) handleQueryResponse(sess *session, params []string) {
	if len(params) < 1 {
		sess.log.Warn().Msg("ignoring empty queryresponse")
		return
	}
	queryType := params[0]
	data := json.RawMessage(strings.Join(params[1:], "|"))
	if !json.Valid(data) {
		sess.log.Warn().Str("query", queryType).Msg("ignoring queryresponse with malformed JSON")
		return
	}

	if queryType == showdown.QuerySaveReplay {
		var replay map[string]any
		if err := json.Unmarshal(data, &replay); err != nil {
			sess.log.Warn().Err(err).Msg("savereplay data is not an object")
		} else {
			sess.hooks.detach("UploadReplay", func(ctx context.Context) error {
				return e.auth.UploadReplay(ctx, replay)
			})
		}
	}

	sess.hooks.fire("OnQueryResponse", func(ctx context.Context) error {
		return e.hooks.OnQueryResponse(ctx, e, queryType, data)
	})
}
