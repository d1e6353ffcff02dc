package showdown

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// RoomKind selects the folding strategy and metadata payload of a room.
type RoomKind int

const (
	KindChat RoomKind = iota
	KindBattle
)

func (k RoomKind) String() string {
	switch k {
	case KindBattle:
		return "battle"
	default:
		return "chat"
	}
}

// Outcome is how a battle ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeKnockout
	OutcomeForfeit
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeKnockout:
		return "knockout"
	case OutcomeForfeit:
		return "forfeit"
	case OutcomeTimeout:
		return "timeout"
	default:
		return ""
	}
}

// Player slots.
const (
	SlotP1 = "p1"
	SlotP2 = "p2"
)

// NoItem is the current item of a combatant whose item was consumed or lost.
const NoItem = "No Item"

// Room is a point-in-time copy of a room the client is in. Mutating it has
// no effect on the engine's own state.
type Room struct {
	ID        string
	Kind      RoomKind
	Type      string // raw room type from the init line, e.g. "chat" or "battle"
	Title     string
	Users     map[string]Identity
	Logs      []string
	CreatedAt time.Time

	// Battle is set for KindBattle rooms only.
	Battle *Battle
}

// IsBattle reports whether the room carries battle metadata.
func (r Room) IsBattle() bool {
	return r.Kind == KindBattle && r.Battle != nil
}

// Clone returns a deep copy of the room.
func (r Room) Clone() Room {
	out := r
	out.Users = maps.Clone(r.Users)
	out.Logs = slices.Clone(r.Logs)
	if r.Battle != nil {
		b := r.Battle.Clone()
		out.Battle = &b
	}
	return out
}

// Battle is the observable metadata of a two-player match.
type Battle struct {
	Rules   []string
	P1, P2  *Identity
	Rated   bool
	Tier    string
	Turn    int
	Ended   bool
	EndedAt time.Time
	Outcome Outcome

	Winner, Loser         *Identity
	WinnerSlot, LoserSlot string

	Players       map[string]*PlayerMetadata
	LatestRequest json.RawMessage
}

// NewBattle returns empty metadata with both player slots allocated.
func NewBattle() *Battle {
	return &Battle{
		Players: map[string]*PlayerMetadata{
			SlotP1: NewPlayerMetadata(),
			SlotP2: NewPlayerMetadata(),
		},
	}
}

// Player returns the identity bound to slot, if any.
func (b *Battle) Player(slot string) *Identity {
	switch slot {
	case SlotP1:
		return b.P1
	case SlotP2:
		return b.P2
	}
	return nil
}

// Clone returns a deep copy of the battle metadata.
func (b Battle) Clone() Battle {
	out := b
	out.Rules = slices.Clone(b.Rules)
	out.P1 = cloneIdentity(b.P1)
	out.P2 = cloneIdentity(b.P2)
	out.Winner = cloneIdentity(b.Winner)
	out.Loser = cloneIdentity(b.Loser)
	out.LatestRequest = slices.Clone(b.LatestRequest)
	out.Players = make(map[string]*PlayerMetadata, len(b.Players))
	for slot, meta := range b.Players {
		out.Players[slot] = meta.Clone()
	}
	return out
}

// PlayerMetadata is what the wire reveals about one side of a battle.
type PlayerMetadata struct {
	Switches    int
	Faints      int
	Lead        string
	TeamPreview []string
	Nicknames   map[string]string // in-battle name -> species details
	Fainted     map[string]int    // in-battle name -> turn it fainted on
	TeamSize    int
	Team        map[string]*MonInfo
}

func NewPlayerMetadata() *PlayerMetadata {
	return &PlayerMetadata{
		Nicknames: make(map[string]string),
		Fainted:   make(map[string]int),
		Team:      make(map[string]*MonInfo),
	}
}

func (m *PlayerMetadata) Clone() *PlayerMetadata {
	if m == nil {
		return nil
	}
	out := *m
	out.TeamPreview = slices.Clone(m.TeamPreview)
	out.Nicknames = maps.Clone(m.Nicknames)
	out.Fainted = maps.Clone(m.Fainted)
	out.Team = make(map[string]*MonInfo, len(m.Team))
	for ident, info := range m.Team {
		c := *info
		c.Moves = slices.Clone(info.Moves)
		out.Team[ident] = &c
	}
	return &out
}

// MonInfo tracks the item and move reveals of one combatant.
type MonInfo struct {
	StartItem   string
	CurrentItem string
	Moves       []string
	Tricked     bool
}

func cloneIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
