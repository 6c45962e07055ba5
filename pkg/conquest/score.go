package conquest

// EndReason says why a game finished.
type EndReason string

const (
	EndTurnLimit   EndReason = "TURN_LIMIT"
	EndElimination EndReason = "ELIMINATION"
)

// GameEnd is the terminal record of a finished game. Winner is -1 for a
// drawn game.
type GameEnd struct {
	Reason EndReason   `json:"reason"`
	Winner int         `json:"winner"`
	Scores map[int]int `json:"scores"`
}

// Score is a pure function of the state: 1000 per region, 10 per soldier,
// 1 per faith point.
func Score(gs *GameState, slot int) int {
	return 1000*gs.RegionCount(slot) + 10*gs.SoldierCount(slot) + gs.FaithByPlayer[slot]
}

// DetectEnd checks the two terminal conditions and returns nil while the
// game is still running. Once non-nil for a state, it stays non-nil for
// every state derived from it: eliminations are sticky and the turn number
// never decreases.
func DetectEnd(gs *GameState) *GameEnd {
	var live []int
	for _, p := range gs.Players {
		if !gs.EliminatedPlayers[p.Slot] && gs.RegionCount(p.Slot) > 0 {
			live = append(live, p.Slot)
		}
	}

	if len(live) <= 1 {
		end := &GameEnd{Reason: EndElimination, Winner: -1, Scores: scores(gs)}
		if len(live) == 1 {
			end.Winner = live[0]
		}
		return end
	}

	if gs.MaxTurns > 0 && gs.TurnNumber+1 >= gs.MaxTurns {
		end := &GameEnd{Reason: EndTurnLimit, Scores: scores(gs)}
		end.Winner = winnerByScore(gs, live)
		return end
	}

	return nil
}

func scores(gs *GameState) map[int]int {
	s := make(map[int]int, len(gs.Players))
	for _, p := range gs.Players {
		s[p.Slot] = Score(gs, p.Slot)
	}
	return s
}

// winnerByScore returns the slot with the highest unique score among the
// live slots, or -1 when the top score is shared.
func winnerByScore(gs *GameState, live []int) int {
	best, winner, tied := -1, -1, false
	for _, slot := range live {
		s := Score(gs, slot)
		switch {
		case s > best:
			best, winner, tied = s, slot, false
		case s == best:
			tied = true
		}
	}
	if tied {
		return -1
	}
	return winner
}
