package conquest

// endTurn finishes the current player's turn: pays income to the ending
// player, records eliminations, advances to the next live slot (bumping the
// turn number on wraparound) and resets the per-turn bookkeeping.
func endTurn(gs *GameState) {
	ending := gs.CurrentPlayerSlot
	if !gs.EliminatedPlayers[ending] {
		gs.FaithByPlayer[ending] += Income(gs, ending)
	}

	detectEliminations(gs)

	gs.ConqueredRegions = nil
	gs.SoldierBuildsThisTurn = 0

	next, wrapped := nextLiveSlot(gs, ending)
	if wrapped {
		gs.TurnNumber++
	}
	gs.CurrentPlayerSlot = next
	gs.MovesRemaining = movesForSlot(gs, next)
}

// resign marks the player eliminated on the spot. Their regions stay as they
// are; if it was their turn, play passes on.
func resign(gs *GameState, slot int) {
	if gs.EliminatedPlayers == nil {
		gs.EliminatedPlayers = make(map[int]bool)
	}
	gs.EliminatedPlayers[slot] = true
	if gs.CurrentPlayerSlot == slot {
		endTurn(gs)
	}
}

// detectEliminations adds every slot that owns zero regions to the
// eliminated set. Membership is sticky: once in, a slot never leaves.
func detectEliminations(gs *GameState) {
	for _, p := range gs.Players {
		if gs.EliminatedPlayers[p.Slot] {
			continue
		}
		if gs.RegionCount(p.Slot) == 0 {
			if gs.EliminatedPlayers == nil {
				gs.EliminatedPlayers = make(map[int]bool)
			}
			gs.EliminatedPlayers[p.Slot] = true
		}
	}
}

// nextLiveSlot finds the next non-eliminated slot after from, in player
// order. wrapped is true when the scan passed the end of the player list,
// which is what advances the turn number. Falls back to from when everyone
// else is gone.
func nextLiveSlot(gs *GameState, from int) (slot int, wrapped bool) {
	start := -1
	for i, p := range gs.Players {
		if p.Slot == from {
			start = i
			break
		}
	}
	if start < 0 {
		return from, false
	}
	for step := 1; step <= len(gs.Players); step++ {
		i := (start + step) % len(gs.Players)
		if i <= start {
			wrapped = true
		}
		cand := gs.Players[i].Slot
		if !gs.EliminatedPlayers[cand] && gs.RegionCount(cand) > 0 {
			return cand, wrapped
		}
	}
	return from, wrapped
}
