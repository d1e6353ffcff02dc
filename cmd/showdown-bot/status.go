package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/luciancaetano/showdown"
	"github.com/luciancaetano/showdown/internal/archive"
)

type statusSource interface {
	State() showdown.State
	SessionID() string
	Self() showdown.Identity
	Rooms() []showdown.Room
	Room(id string) (showdown.Room, bool)
}

type battleLister interface {
	Recent(ctx context.Context, limit int) ([]archive.Record, error)
}

type roomSummary struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Title   string    `json:"title"`
	Users   int       `json:"users"`
	Created time.Time `json:"created"`
	Format  string    `json:"format,omitempty"`
	Turn    int       `json:"turn,omitempty"`
	Ended   bool      `json:"ended,omitempty"`
	Winner  string    `json:"winner,omitempty"`
	Logs    []string  `json:"logs,omitempty"`
}

func summarize(room showdown.Room, withLogs bool) roomSummary {
	s := roomSummary{
		ID:      room.ID,
		Kind:    room.Kind.String(),
		Title:   room.Title,
		Users:   len(room.Users),
		Created: room.CreatedAt,
	}
	if b := room.Battle; b != nil {
		s.Format = b.Tier
		s.Turn = b.Turn
		s.Ended = b.Ended
		if b.Winner != nil {
			s.Winner = b.Winner.Name
		}
	}
	if withLogs {
		s.Logs = room.Logs
	}
	return s
}

// SetupRoutes returns the status API. battles may be nil when no archive is
// configured.
func SetupRoutes(src statusSource, battles battleLister) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz(src))
	r.Get("/rooms", ListRooms(src))
	r.Get("/rooms/{roomID}", GetRoom(src))
	r.Get("/battles", ListBattles(battles))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Healthz(src statusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := src.State()
		status := http.StatusOK
		if state != showdown.StateActive {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, struct {
			State   string `json:"state"`
			Session string `json:"session,omitempty"`
			User    string `json:"user,omitempty"`
		}{state.String(), src.SessionID(), src.Self().Name})
	}
}

func ListRooms(src statusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := src.Rooms()
		out := make([]roomSummary, 0, len(rooms))
		for _, room := range rooms {
			out = append(out, summarize(room, false))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetRoom(src statusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := src.Room(chi.URLParam(r, "roomID"))
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, summarize(room, true))
	}
}

func ListBattles(battles battleLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if battles == nil {
			http.Error(w, "battle archive disabled", http.StatusNotFound)
			return
		}

		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 500 {
				http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
				return
			}
			limit = n
		}

		records, err := battles.Recent(r.Context(), limit)
		if err != nil {
			http.Error(w, "failed to list battles", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []archive.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}
