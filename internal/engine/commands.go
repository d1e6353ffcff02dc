package engine

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/luciancaetano/showdown"
)

// AddOutput queues raw protocol lines.
func (e *Engine) AddOutput(content []string, opts ...showdown.SendOption) error {
	o := showdown.ApplySendOptions(opts...)
	if _, err := e.queue.Add(content, o.Delay, o.ExpireAfter); err != nil {
		return err
	}
	return nil
}

// Command sends "/name args" to roomID. An empty roomID addresses the server.
func (e *Engine) Command(roomID, name string, args []string, opts ...showdown.SendOption) error {
	if name == "" {
		return showdown.InvalidArgument("command name is empty")
	}
	return e.AddOutput([]string{command(roomID, name, args...)}, opts...)
}

func command(roomID, name string, args ...string) string {
	line := roomID + "|/" + name
	if len(args) > 0 {
		line += " " + strings.Join(args, ", ")
	}
	return line
}

func requireRoom(roomID string) error {
	if roomID == "" {
		return showdown.InvalidArgument(showdown.ErrMsgEmptyRoom)
	}
	return nil
}

// clean bounds chat content to MaxMessageLength characters.
func (e *Engine) clean(content string, opts showdown.SendOptions) (string, error) {
	limit := e.cfg.MaxMessageLength
	n := utf8.RuneCountInString(content)
	if n <= limit {
		return content, nil
	}
	if opts.StrictLength {
		return "", showdown.InvalidArgument("%s (%d characters, limit %d)", showdown.ErrMsgMessageTooLong, n, limit)
	}

	e.log.Warn().Int("length", n).Int("limit", limit).Msg("message truncated")
	runes := []rune(content)
	return string(runes[:limit]), nil
}

func (e *Engine) Join(roomID string, opts ...showdown.SendOption) error {
	if err := requireRoom(roomID); err != nil {
		return err
	}
	return e.AddOutput([]string{command("", "join", roomID)}, opts...)
}

func (e *Engine) Leave(roomID string, opts ...showdown.SendOption) error {
	if err := requireRoom(roomID); err != nil {
		return err
	}
	return e.AddOutput([]string{command(roomID, "leave")}, opts...)
}

// Say sends chat content to roomID. The lobby is addressed without a prefix.
func (e *Engine) Say(roomID, content string, opts ...showdown.SendOption) error {
	if err := requireRoom(roomID); err != nil {
		return err
	}
	content, err := e.clean(content, showdown.ApplySendOptions(opts...))
	if err != nil {
		return err
	}
	if roomID == showdown.DefaultRoom {
		roomID = ""
	}
	return e.AddOutput([]string{roomID + "|" + content}, opts...)
}

func (e *Engine) PrivateMessage(user, content string, opts ...showdown.SendOption) error {
	id := showdown.Canonicalize(user)
	if id == "" {
		return showdown.InvalidArgument("private message recipient %q has no id", user)
	}
	content, err := e.clean(content, showdown.ApplySendOptions(opts...))
	if err != nil {
		return err
	}
	return e.AddOutput([]string{fmt.Sprintf("|/msg %s, %s", id, content)}, opts...)
}

// RequestRoomAuth asks for the auth list of roomID. The server answers with
// a popup.
func (e *Engine) RequestRoomAuth(roomID string, opts ...showdown.SendOption) error {
	if err := requireRoom(roomID); err != nil {
		return err
	}
	return e.AddOutput([]string{command(roomID, "roomauth")}, opts...)
}

func (e *Engine) uploadTeam(team string) (string, error) {
	packed, err := e.teams.EncodeTeam(team)
	if err != nil {
		return "", fmt.Errorf("encode team: %w", err)
	}
	return command("", "utm", packed), nil
}

// UploadTeam sets the team used by the next search or challenge.
func (e *Engine) UploadTeam(team string, opts ...showdown.SendOption) error {
	line, err := e.uploadTeam(team)
	if err != nil {
		return err
	}
	return e.AddOutput([]string{line}, opts...)
}

// withTeam queues the team upload and then line, as two outputs.
func (e *Engine) withTeam(team, line string, opts []showdown.SendOption) error {
	utm, err := e.uploadTeam(team)
	if err != nil {
		return err
	}
	if err := e.AddOutput([]string{utm}, opts...); err != nil {
		return err
	}
	return e.AddOutput([]string{line}, opts...)
}

func (e *Engine) ValidateTeam(team, format string, opts ...showdown.SendOption) error {
	return e.withTeam(team, command("", "vtm", showdown.Canonicalize(format)), opts)
}

func (e *Engine) SearchBattles(team, format string, opts ...showdown.SendOption) error {
	return e.withTeam(team, command("", "search", showdown.Canonicalize(format)), opts)
}

func (e *Engine) CancelSearch(opts ...showdown.SendOption) error {
	return e.AddOutput([]string{command("", "cancelsearch")}, opts...)
}

func (e *Engine) SendChallenge(user, team, format string, opts ...showdown.SendOption) error {
	return e.withTeam(team, command("", "challenge", showdown.Canonicalize(user), showdown.Canonicalize(format)), opts)
}

func (e *Engine) CancelChallenge(opts ...showdown.SendOption) error {
	return e.AddOutput([]string{command("", "cancelchallenge")}, opts...)
}

func (e *Engine) AcceptChallenge(user, team string, opts ...showdown.SendOption) error {
	return e.withTeam(team, command("", "accept", showdown.Canonicalize(user)), opts)
}

func (e *Engine) RejectChallenge(user string, opts ...showdown.SendOption) error {
	return e.AddOutput([]string{command("", "reject", showdown.Canonicalize(user))}, opts...)
}

func (e *Engine) battleCommand(battleID, name string, args []string, opts []showdown.SendOption) error {
	if err := requireRoom(battleID); err != nil {
		return err
	}
	return e.AddOutput([]string{command(battleID, name, args...)}, opts...)
}

func (e *Engine) Forfeit(battleID string, opts ...showdown.SendOption) error {
	return e.battleCommand(battleID, "forfeit", nil, opts)
}

// SaveReplay asks the server for the replay data of battleID. The upload
// itself happens when the "savereplay" query response arrives.
func (e *Engine) SaveReplay(battleID string, opts ...showdown.SendOption) error {
	return e.battleCommand(battleID, "savereplay", nil, opts)
}

func (e *Engine) SetTimer(battleID string, on bool, opts ...showdown.SendOption) error {
	state := "off"
	if on {
		state = "on"
	}
	return e.battleCommand(battleID, "timer", []string{state}, opts)
}

// ChooseMove picks a move for the next turn. modifier is one of "mega",
// "max", "zmove" or empty.
func (e *Engine) ChooseMove(battleID, move, modifier string, opts ...showdown.SendOption) error {
	choice := "move " + move
	if modifier != "" {
		choice += " " + modifier
	}
	return e.battleCommand(battleID, "choose", []string{choice}, opts)
}

func (e *Engine) ChooseSwitch(battleID, slot string, opts ...showdown.SendOption) error {
	return e.battleCommand(battleID, "choose", []string{"switch " + slot}, opts)
}

// ChooseTeam picks the team order at team preview, e.g. "213456".
func (e *Engine) ChooseTeam(battleID, order string, opts ...showdown.SendOption) error {
	return e.battleCommand(battleID, "choose", []string{"team " + order}, opts)
}

func (e *Engine) UndoChoice(battleID string, opts ...showdown.SendOption) error {
	return e.battleCommand(battleID, "undo", nil, opts)
}

func (e *Engine) SetAvatar(avatarID string, opts ...showdown.SendOption) error {
	if avatarID == "" {
		return showdown.InvalidArgument("avatar id is empty")
	}
	return e.AddOutput([]string{command("", "avatar", avatarID)}, opts...)
}

// QueryRooms asks for the public rooms; the answer is a "rooms" query
// response.
func (e *Engine) QueryRooms(opts ...showdown.SendOption) error {
	return e.AddOutput([]string{command("", "cmd", showdown.QueryRooms)}, opts...)
}

// QueryBattles asks for public battles of format, rated at least minElo when
// minElo is positive. The answer is a "roomlist" query response.
func (e *Engine) QueryBattles(format string, minElo int, opts ...showdown.SendOption) error {
	line := command("", "cmd", showdown.QueryRoomList+" "+showdown.Canonicalize(format))
	if minElo > 0 {
		line += ", " + strconv.Itoa(minElo)
	}
	return e.AddOutput([]string{line}, opts...)
}

func (e *Engine) QueryUserDetails(user string, opts ...showdown.SendOption) error {
	id := showdown.Canonicalize(user)
	if id == "" {
		return showdown.InvalidArgument("user %q has no id", user)
	}
	return e.AddOutput([]string{command("", "cmd", showdown.QueryUserDetails+" "+id)}, opts...)
}
