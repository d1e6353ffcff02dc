package showdown

import "testing"

// TestBattlePlayer tests that Player maps a slot to its bound identity.
func TestBattlePlayer(t *testing.T) {
	t.Parallel()

	alice := ParseIdentity(" Alice")
	b := NewBattle()
	b.P1 = &alice

	if got := b.Player(SlotP1); got == nil || got.ID != "alice" {
		t.Errorf("Player(%q) = %v, want alice", SlotP1, got)
	}
	if got := b.Player(SlotP2); got != nil {
		t.Errorf("Player(%q) = %v, want nil before the slot is bound", SlotP2, got)
	}
	if got := b.Player("p3"); got != nil {
		t.Errorf("Player(p3) = %v, want nil", got)
	}
}

// TestRoomClone tests that a cloned room shares no state with the original.
func TestRoomClone(t *testing.T) {
	t.Parallel()

	alice := ParseIdentity(" Alice")
	room := Room{
		ID:     "battle-gen9ou-1",
		Kind:   KindBattle,
		Users:  map[string]Identity{"alice": alice},
		Logs:   []string{"|init|battle"},
		Battle: NewBattle(),
	}
	room.Battle.P1 = &alice

	clone := room.Clone()
	clone.Users["bob"] = ParseIdentity(" Bob")
	clone.Logs[0] = "changed"
	clone.Battle.P1.Name = "Mallory"
	clone.Battle.Players[SlotP1].Switches = 3

	if len(room.Users) != 1 || room.Logs[0] != "|init|battle" {
		t.Error("clone shares users or logs")
	}
	if room.Battle.P1.Name != "Alice" || room.Battle.Players[SlotP1].Switches != 0 {
		t.Error("clone shares battle metadata")
	}
}
