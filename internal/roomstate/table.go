package roomstate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/luciancaetano/showdown"
	"github.com/luciancaetano/showdown/internal/protocol"
)

// Result reports what folding one line did to the table.
type Result struct {
	// Tracked is true when the line belonged to a tracked room.
	Tracked bool
	// Init is the new room when the line was an "init" that created it.
	Init *showdown.Room
	// Deinit is the final snapshot when the line was a "deinit" that evicted it.
	Deinit *showdown.Room
	// Err is a folding failure. The line is still logged.
	Err error
}

type room struct {
	state showdown.Room
	logs  *logRing
	fold  foldFunc
}

func (r *room) snapshot() showdown.Room {
	out := r.state.Clone()
	out.Logs = r.logs.snapshot()
	return out
}

// Table is the set of rooms the client is in. It is safe for concurrent use;
// readers always get deep copies.
type Table struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	maxLogs int
	now     func() time.Time
	log     zerolog.Logger
}

// New returns an empty table keeping at most maxLogs lines per room.
func New(maxLogs int, logger zerolog.Logger) *Table {
	return &Table{
		rooms:   make(map[string]*room),
		maxLogs: maxLogs,
		now:     time.Now,
		log:     logger.With().Str("component", "rooms").Logger(),
	}
}

// ApplyLine decodes and folds a raw line.
func (t *Table) ApplyLine(roomID, line string) Result {
	msgType, params := protocol.DecodeLine(line)
	return t.Apply(roomID, line, msgType, params)
}

// Apply folds one decoded line into the room it belongs to.
//
// "init" creates the room, "deinit" evicts it. Lines for rooms that are not
// tracked are ignored.
func (t *Table) Apply(roomID, line, msgType string, params []string) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch msgType {
	case showdown.MsgInit:
		if _, ok := t.rooms[roomID]; !ok {
			r := t.create(roomID, params)
			r.logs.push(line)
			snap := r.snapshot()
			return Result{Tracked: true, Init: &snap}
		}
	case showdown.MsgDeinit:
		r, ok := t.rooms[roomID]
		if !ok {
			return Result{}
		}
		delete(t.rooms, roomID)
		snap := r.snapshot()
		return Result{Tracked: true, Deinit: &snap}
	}

	r, ok := t.rooms[roomID]
	if !ok {
		return Result{}
	}
	r.logs.push(line)

	if err := t.fold(r, msgType, params); err != nil {
		t.log.Warn().Err(err).Str("room", roomID).Str("line", line).Msg("failed to fold line")
		return Result{Tracked: true, Err: err}
	}
	return Result{Tracked: true}
}

func (t *Table) create(roomID string, params []string) *room {
	roomType := ""
	if len(params) > 0 {
		roomType = params[0]
	}
	strat := strategyFor(roomType)

	r := &room{
		state: showdown.Room{
			ID:        roomID,
			Kind:      strat.kind,
			Type:      roomType,
			Users:     make(map[string]showdown.Identity),
			CreatedAt: t.now(),
		},
		logs: newLogRing(t.maxLogs),
		fold: strat.fold,
	}
	if strat.kind == showdown.KindBattle {
		r.state.Battle = showdown.NewBattle()
	}
	t.rooms[roomID] = r

	t.log.Debug().Str("room", roomID).Str("kind", strat.kind.String()).Msg("room created")
	return r
}

// fold runs the room's strategy, turning a panic into an error.
func (t *Table) fold(r *room, msgType string, params []string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic folding %q: %v", msgType, p)
		}
	}()

	wasEnded := r.state.Battle != nil && r.state.Battle.Ended
	if err := r.fold(&r.state, msgType, params); err != nil {
		return err
	}
	if b := r.state.Battle; b != nil && b.Ended && !wasEnded {
		b.EndedAt = t.now()
	}
	return nil
}

// Room returns a snapshot of one room.
func (t *Table) Room(id string) (showdown.Room, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.rooms[id]
	if !ok {
		return showdown.Room{}, false
	}
	return r.snapshot(), true
}

// Rooms returns snapshots of every room, ordered by id.
func (t *Table) Rooms() []showdown.Room {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]showdown.Room, 0, len(t.rooms))
	for _, r := range t.rooms {
		out = append(out, r.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracked rooms.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}

// Reset forgets every room.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.rooms)
}
