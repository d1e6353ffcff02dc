package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/showdown"
)

// Behaviours a bot can combine.
const (
	BehaviourEcho       = "echo"
	BehaviourFollower   = "follower"
	BehaviourLadder     = "ladder"
	BehaviourReplayer   = "replayer"
	BehaviourChallenger = "challenger"
)

var allBehaviours = []string{BehaviourEcho, BehaviourFollower, BehaviourLadder, BehaviourReplayer, BehaviourChallenger}

const goodbye = "Oh my, look at the time! Gotta go, gg."

// ParseBehaviours parses a comma separated behaviour list.
func ParseBehaviours(list string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if !slices.Contains(allBehaviours, name) {
			return nil, fmt.Errorf("unknown behaviour %q, want one of %s", name, strings.Join(allBehaviours, ", "))
		}
		out[name] = true
	}
	return out, nil
}

// Settings configure a Bot.
type Settings struct {
	Behaviours map[string]bool
	// Owner is the user the follower behaviour follows around.
	Owner string
	// LadderFormat and Team are used to search and to accept team
	// challenges.
	LadderFormat string
	Team         string
	// ChallengeFormat is used when challenging users who PM the bot.
	ChallengeFormat string
	// ReplayFormat is the format whose public battles are replayed.
	ReplayFormat string
	// PollInterval paces the follower and replayer queries.
	PollInterval time.Duration
	// ForfeitDelay is how long the bot stays in a battle before leaving.
	ForfeitDelay time.Duration
}

// DefaultSettings returns settings with every behaviour off.
func DefaultSettings() Settings {
	return Settings{
		Behaviours:      map[string]bool{},
		LadderFormat:    "gen9randombattle",
		ChallengeFormat: "gen9randombattle",
		ReplayFormat:    "gen9ou",
		PollInterval:    3 * time.Second,
		ForfeitDelay:    3 * time.Second,
	}
}

type archiver interface {
	RecordBattle(ctx context.Context, room showdown.Room) error
}

// Bot implements showdown.Hooks for the configured behaviours.
type Bot struct {
	showdown.NopHooks

	settings Settings
	archive  archiver
	log      zerolog.Logger
}

// NewBot returns a bot. archive may be nil.
func NewBot(settings Settings, archive archiver, log zerolog.Logger) *Bot {
	return &Bot{
		settings: settings,
		archive:  archive,
		log:      log.With().Str("component", "bot").Logger(),
	}
}

func (b *Bot) has(behaviour string) bool { return b.settings.Behaviours[behaviour] }

// Register adds the bot's periodic queries to c.
func (b *Bot) Register(c showdown.Client) error {
	every := b.settings.PollInterval
	if b.has(BehaviourFollower) {
		if b.settings.Owner == "" {
			return fmt.Errorf("the %s behaviour needs an owner", BehaviourFollower)
		}
		err := c.RegisterInterval(every, func(ctx context.Context, c showdown.Client) error {
			return c.QueryUserDetails(b.settings.Owner, showdown.WithExpiry(every))
		})
		if err != nil {
			return err
		}
	}
	if b.has(BehaviourReplayer) {
		err := c.RegisterInterval(every, func(ctx context.Context, c showdown.Client) error {
			return c.QueryBattles(b.settings.ReplayFormat, 0, showdown.WithExpiry(every))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) OnLogin(_ context.Context, c showdown.Client, _ showdown.LoginResult) error {
	if b.has(BehaviourLadder) {
		return c.SearchBattles(b.settings.Team, b.settings.LadderFormat)
	}
	return nil
}

func (b *Bot) OnPrivateMessage(_ context.Context, c showdown.Client, pm showdown.PrivateMessage) error {
	if !pm.Recipient.Equal(c.Self()) {
		return nil
	}
	if b.has(BehaviourEcho) {
		if err := c.PrivateMessage(pm.Author.Name, pm.Content); err != nil {
			return err
		}
	}
	if b.has(BehaviourChallenger) {
		if err := c.CancelChallenge(); err != nil {
			return err
		}
		return c.SendChallenge(pm.Author.Name, "", b.settings.ChallengeFormat)
	}
	return nil
}

func (b *Bot) OnChallengeUpdate(_ context.Context, c showdown.Client, set showdown.ChallengeSet) error {
	if !b.has(BehaviourChallenger) {
		return nil
	}

	users := make([]string, 0, len(set.Incoming))
	for user := range set.Incoming {
		users = append(users, user)
	}
	sort.Strings(users)

	for _, user := range users {
		format := set.Incoming[user]
		switch {
		case strings.Contains(format, "random"):
			if err := c.AcceptChallenge(user, ""); err != nil {
				return err
			}
		case format == b.settings.LadderFormat && b.settings.Team != "":
			if err := c.AcceptChallenge(user, b.settings.Team); err != nil {
				return err
			}
		default:
			b.log.Info().Str("user", user).Str("format", format).Msg("ignoring challenge")
		}
	}
	return nil
}

// OnRoomInit leaves battles shortly after they start.
func (b *Bot) OnRoomInit(_ context.Context, c showdown.Client, room showdown.Room) error {
	if !room.IsBattle() || !(b.has(BehaviourLadder) || b.has(BehaviourChallenger)) {
		return nil
	}
	later := showdown.WithDelay(b.settings.ForfeitDelay)
	if err := c.Say(room.ID, goodbye, later); err != nil {
		return err
	}
	if err := c.Forfeit(room.ID, later); err != nil {
		return err
	}
	return c.Leave(room.ID, later)
}

// OnRoomDeinit archives finished battles.
func (b *Bot) OnRoomDeinit(ctx context.Context, _ showdown.Client, room showdown.Room) error {
	if b.archive == nil || !room.IsBattle() || !room.Battle.Ended {
		return nil
	}
	return b.archive.RecordBattle(ctx, room)
}

func (b *Bot) OnReceive(_ context.Context, c showdown.Client, roomID, msgType string, _ []string) error {
	if b.has(BehaviourReplayer) && msgType == showdown.MsgWin {
		return c.SaveReplay(roomID)
	}
	return nil
}

func (b *Bot) OnQueryResponse(_ context.Context, c showdown.Client, queryType string, data json.RawMessage) error {
	switch {
	case queryType == showdown.QueryUserDetails && b.has(BehaviourFollower):
		return b.follow(c, data)
	case queryType == showdown.QueryRoomList && b.has(BehaviourReplayer):
		return b.watch(c, data)
	}
	return nil
}

// follow joins the owner's chat rooms and leaves the ones the owner left.
func (b *Bot) follow(c showdown.Client, data json.RawMessage) error {
	var details struct {
		UserID string          `json:"userid"`
		Rooms  json.RawMessage `json:"rooms"`
	}
	if err := json.Unmarshal(data, &details); err != nil {
		return fmt.Errorf("userdetails: %w", err)
	}
	if details.UserID != showdown.Canonicalize(b.settings.Owner) {
		return nil
	}

	// "rooms" is false when the user is offline.
	var rooms map[string]json.RawMessage
	if err := json.Unmarshal(details.Rooms, &rooms); err != nil {
		b.log.Debug().Err(err).Str("rooms", string(details.Rooms)).Msg("owner has no room list")
	}

	ownerRooms := make(map[string]bool)
	for room := range rooms {
		id := showdown.StripRank(room)
		if !strings.HasPrefix(id, "battle-") {
			ownerRooms[id] = true
		}
	}
	botRooms := make(map[string]bool)
	for _, room := range c.Rooms() {
		if !room.IsBattle() {
			botRooms[room.ID] = true
		}
	}

	for _, id := range sortedKeys(ownerRooms) {
		if !botRooms[id] {
			if err := c.Join(id); err != nil {
				return err
			}
		}
	}
	for _, id := range sortedKeys(botRooms) {
		if !ownerRooms[id] {
			if err := c.Leave(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// watch joins every listed battle the bot is not in yet.
func (b *Bot) watch(c showdown.Client, data json.RawMessage) error {
	var list struct {
		Rooms map[string]json.RawMessage `json:"rooms"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("roomlist: %w", err)
	}

	for _, id := range sortedKeys(list.Rooms) {
		if _, ok := c.Room(id); ok {
			continue
		}
		if err := c.Join(id); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
