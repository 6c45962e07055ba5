package conquest

import (
	"errors"
	"testing"
)

// lineRegions builds a map of n regions in a row, each adjacent to its
// immediate neighbors.
func lineRegions(n int) []Region {
	regions := make([]Region, n)
	for i := range regions {
		regions[i] = Region{Index: i, X: float64(i), Y: 0}
		if i > 0 {
			regions[i].Neighbors = append(regions[i].Neighbors, i-1)
		}
		if i < n-1 {
			regions[i].Neighbors = append(regions[i].Neighbors, i+1)
		}
	}
	return regions
}

// twoPlayerGame is the standard fixture: a six-region line with slot 0 at
// region 0 and slot 1 at region 5, both with the default garrison and faith.
func twoPlayerGame(maxTurns int) *GameState {
	players := []Player{
		{Slot: 0, Name: "alice", Color: "#e33"},
		{Slot: 1, Name: "bob", Color: "#33e"},
	}
	return NewGameState(lineRegions(6), players, []int{0, 5}, maxTurns, "test-seed")
}

// giveRegion hands a region to a slot with the given garrison size.
func giveRegion(gs *GameState, region, slot, soldiers int) {
	gs.OwnersByRegion[region] = slot
	for i := 0; i < soldiers; i++ {
		gs.addSoldier(region)
	}
}

func wantCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, ve.Code, ve.Message)
	}
}

func mustApply(t *testing.T, gs *GameState, cmd Command) *Result {
	t.Helper()
	res, err := Apply(gs, cmd)
	if err != nil {
		t.Fatalf("Apply(%s): %v", cmd.Type, err)
	}
	return res
}

// boardSoldiers counts every soldier on the map.
func boardSoldiers(gs *GameState) int {
	total := 0
	for _, s := range gs.SoldiersByRegion {
		total += len(s)
	}
	return total
}
