package roomstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/luciancaetano/showdown"
)

// foldFunc applies one decoded line to a live room.
type foldFunc func(r *showdown.Room, msgType string, params []string) error

type strategy struct {
	kind showdown.RoomKind
	fold foldFunc
}

// strategies maps the room type announced by "init" to its folding strategy.
// Unknown types fold as chat rooms.
var strategies = map[string]strategy{
	"chat":   {kind: showdown.KindChat, fold: foldChat},
	"battle": {kind: showdown.KindBattle, fold: foldBattle},
}

func strategyFor(roomType string) strategy {
	if s, ok := strategies[roomType]; ok {
		return s
	}
	return strategies["chat"]
}

var errShortLine = errors.New("missing parameters")

func need(msgType string, params []string, n int) error {
	if len(params) < n {
		return fmt.Errorf("%s: %w (want %d, got %d)", msgType, errShortLine, n, len(params))
	}
	return nil
}

func foldChat(r *showdown.Room, msgType string, params []string) error {
	switch msgType {
	case showdown.MsgTitle:
		if err := need(msgType, params, 1); err != nil {
			return err
		}
		r.Title = params[0]

	case showdown.MsgUsers:
		if err := need(msgType, params, 1); err != nil {
			return err
		}
		users := make(map[string]showdown.Identity)
		tokens := strings.Split(params[0], ",")
		for _, token := range tokens[1:] {
			if token == "" {
				continue
			}
			id := showdown.ParseIdentity(token)
			users[id.ID] = id
		}
		r.Users = users

	case showdown.MsgJoin, showdown.MsgJoinLong:
		if err := need(msgType, params, 1); err != nil {
			return err
		}
		id := showdown.ParseIdentity(params[0])
		r.Users[id.ID] = id

	case showdown.MsgLeave, showdown.MsgLeaveLong:
		if err := need(msgType, params, 1); err != nil {
			return err
		}
		delete(r.Users, showdown.Canonicalize(params[0]))

	case showdown.MsgNameChange, showdown.MsgNameChangeLong:
		if err := need(msgType, params, 2); err != nil {
			return err
		}
		delete(r.Users, showdown.Canonicalize(params[1]))
		id := showdown.ParseIdentity(params[0])
		r.Users[id.ID] = id
	}
	return nil
}

func foldBattle(r *showdown.Room, msgType string, params []string) error {
	if err := foldChat(r, msgType, params); err != nil {
		return err
	}
	b := r.Battle

	switch msgType {
	case showdown.MsgPlayer:
		if err := need(msgType, params, 2); err != nil {
			return err
		}
		slot, name := params[0], params[1]
		// Empty names show up when a player leaves mid-battle.
		if name == "" {
			return nil
		}
		// Player names carry no rank, so a leading digit stays part of the name.
		id := showdown.NewIdentity(name, showdown.BlankRank)
		switch slot {
		case showdown.SlotP1:
			b.P1 = &id
		case showdown.SlotP2:
			b.P2 = &id
		}

	case showdown.MsgRated:
		b.Rated = true

	case showdown.MsgTier:
		if err := need(msgType, params, 1); err != nil {
			return err
		}
		b.Tier = showdown.Canonicalize(params[0])

	case showdown.MsgRule:
		if err := need(msgType, params, 1); err != nil {
			return err
		}
		b.Rules = append(b.Rules, params[0])

	case showdown.MsgTurn:
		if err := need(msgType, params, 1); err != nil {
			return err
		}
		turn, err := strconv.Atoi(params[0])
		if err != nil {
			return fmt.Errorf("turn: %w", err)
		}
		b.Turn = turn

	case showdown.MsgTeamSize:
		if err := need(msgType, params, 2); err != nil {
			return err
		}
		meta, err := player(b, params[0])
		if err != nil {
			return err
		}
		size, err := strconv.Atoi(params[1])
		if err != nil {
			return fmt.Errorf("teamsize: %w", err)
		}
		meta.TeamSize = size

	case showdown.MsgPoke:
		if err := need(msgType, params, 2); err != nil {
			return err
		}
		meta, err := player(b, params[0])
		if err != nil {
			return err
		}
		meta.TeamPreview = append(meta.TeamPreview, params[1])

	case showdown.MsgSwitch, showdown.MsgDrag:
		if err := need(msgType, params, 2); err != nil {
			return err
		}
		meta, ident, err := combatant(b, params[0])
		if err != nil {
			return err
		}
		details := params[1]
		meta.Switches++
		if meta.Lead == "" {
			meta.Lead = details
		}
		monInfo(meta, ident)
		if !strings.HasPrefix(details, ident) {
			if _, seen := meta.Nicknames[ident]; !seen {
				meta.Nicknames[ident] = details
			}
		}

	case showdown.MsgFaint:
		if err := need(msgType, params, 1); err != nil {
			return err
		}
		meta, ident, err := combatant(b, params[0])
		if err != nil {
			return err
		}
		meta.Faints++
		meta.Fainted[ident] = b.Turn

	case showdown.MsgMove:
		if err := need(msgType, params, 2); err != nil {
			return err
		}
		// Reflected moves (Magic Bounce and friends) are not the user's own.
		if strings.Contains(strings.Join(params, ""), "[from]") {
			return nil
		}
		meta, ident, err := combatant(b, params[0])
		if err != nil {
			return err
		}
		info := monInfo(meta, ident)
		if !slices.Contains(info.Moves, params[1]) {
			info.Moves = append(info.Moves, params[1])
		}

	case showdown.MsgItem:
		if err := need(msgType, params, 2); err != nil {
			return err
		}
		meta, ident, err := combatant(b, params[0])
		if err != nil {
			return err
		}
		info := monInfo(meta, ident)
		info.CurrentItem = params[1]
		if strings.Contains(strings.Join(params, ""), "[from] move:") {
			// Trick and Switcheroo: the start item can no longer be inferred.
			info.Tricked = true
			return nil
		}
		if !info.Tricked {
			info.StartItem = params[1]
		}

	case showdown.MsgEndItem:
		if err := need(msgType, params, 2); err != nil {
			return err
		}
		meta, ident, err := combatant(b, params[0])
		if err != nil {
			return err
		}
		info := monInfo(meta, ident)
		info.CurrentItem = showdown.NoItem
		if !info.Tricked {
			info.StartItem = params[1]
		}

	case showdown.MsgWin:
		if err := need(msgType, params, 1); err != nil {
			return err
		}
		if b.Ended {
			return nil
		}
		resolveWinner(b, params[0])
		b.Ended = true
		if b.Outcome == showdown.OutcomeNone {
			b.Outcome = showdown.OutcomeKnockout
		}

	case showdown.MsgNotice:
		if err := need(msgType, params, 1); err != nil {
			return err
		}
		if b.Outcome != showdown.OutcomeNone {
			return nil
		}
		switch msg := params[0]; {
		case strings.HasSuffix(msg, " forfeited."):
			b.Outcome = showdown.OutcomeForfeit
		case strings.HasSuffix(msg, "due to inactivity."):
			b.Outcome = showdown.OutcomeTimeout
		}

	case showdown.MsgRequest:
		if len(params) == 0 || params[0] == "" {
			return nil
		}
		raw := strings.Join(params, "|")
		if !json.Valid([]byte(raw)) {
			return errors.New("request: invalid json")
		}
		b.LatestRequest = json.RawMessage(raw)
	}
	return nil
}

func resolveWinner(b *showdown.Battle, name string) {
	for _, pair := range [][2]string{{showdown.SlotP1, showdown.SlotP2}, {showdown.SlotP2, showdown.SlotP1}} {
		winner, loser := pair[0], pair[1]
		if p := b.Player(winner); p != nil && p.Matches(name) {
			b.Winner, b.WinnerSlot = p, winner
			b.Loser, b.LoserSlot = b.Player(loser), loser
			return
		}
	}
}

func player(b *showdown.Battle, slot string) (*showdown.PlayerMetadata, error) {
	meta, ok := b.Players[slot]
	if !ok {
		return nil, fmt.Errorf("unknown player slot %q", slot)
	}
	return meta, nil
}

// combatant resolves a "p1a: Pikachu" token to its side and in-battle name.
func combatant(b *showdown.Battle, token string) (*showdown.PlayerMetadata, string, error) {
	if len(token) < 2 {
		return nil, "", fmt.Errorf("bad combatant %q", token)
	}
	meta, err := player(b, token[:2])
	if err != nil {
		return nil, "", err
	}
	_, ident, ok := strings.Cut(token, ": ")
	if !ok {
		return nil, "", fmt.Errorf("bad combatant %q", token)
	}
	return meta, ident, nil
}

func monInfo(meta *showdown.PlayerMetadata, ident string) *showdown.MonInfo {
	info, ok := meta.Team[ident]
	if !ok {
		info = &showdown.MonInfo{}
		meta.Team[ident] = info
	}
	return info
}
