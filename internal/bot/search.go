package bot

import (
	"context"
	"math"
	"time"

	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

// yieldInterval is how many node expansions happen between deadline checks.
const yieldInterval = 100

// searcher carries the shared bookkeeping of one minimax invocation.
type searcher struct {
	forSlot  int
	level    Level
	deadline time.Time
	ctx      context.Context
	expanded int
	timedOut bool
}

// MinimaxSearch picks the best command for forSlot by depth-limited minimax
// with iterative deepening under a wall-clock budget. The root move list is
// shuffled with the state's own generator so tie-breaks stay reproducible
// for a given seed. Returns EndTurn when nothing better is found in time.
func MinimaxSearch(ctx context.Context, gs *conquest.GameState, forSlot int, maxDepth int, budget time.Duration, level Level) conquest.Command {
	endTurn := conquest.Command{Type: conquest.CmdEndTurn, Player: forSlot}

	moves := generateMoves(gs, forSlot)
	if len(moves) == 0 {
		return endTurn
	}
	shuffleRng := gs.Rng
	shuffleRng.Shuffle(len(moves), func(i, j int) { moves[i], moves[j] = moves[j], moves[i] })

	s := &searcher{
		forSlot:  forSlot,
		level:    level,
		deadline: time.Now().Add(budget),
		ctx:      ctx,
	}

	best := endTurn
	for depth := 1; depth <= maxDepth; depth++ {
		move, ok := s.searchRoot(gs, moves, depth)
		if s.timedOut {
			// A partially searched depth is not trustworthy; keep the last
			// completed depth's answer.
			break
		}
		if ok {
			best = move
		}
	}
	return best
}

// searchRoot runs one full-depth pass over the root moves.
func (s *searcher) searchRoot(gs *conquest.GameState, moves []conquest.Command, depth int) (conquest.Command, bool) {
	bestValue := math.Inf(-1)
	var best conquest.Command
	found := false

	for _, mv := range moves {
		res, err := conquest.Apply(gs, mv)
		if err != nil {
			continue
		}
		value := s.search(res.State, depth-1)
		if s.timedOut {
			return best, found
		}
		if value > bestValue {
			bestValue = value
			best = mv
			found = true
		}
	}
	return best, found
}

// search evaluates a state to the given remaining depth. Values are always
// from the searching player's perspective; nodes where someone else is
// active minimize.
func (s *searcher) search(gs *conquest.GameState, depth int) float64 {
	s.expanded++
	if s.expanded%yieldInterval == 0 {
		if time.Now().After(s.deadline) || s.ctx.Err() != nil {
			s.timedOut = true
		}
	}
	if s.timedOut {
		return 0
	}

	if end := conquest.DetectEnd(gs); end != nil {
		return terminalValue(end, s.forSlot)
	}
	if depth <= 0 {
		return evaluatePosition(gs, s.forSlot, s.level)
	}

	active := gs.CurrentPlayerSlot
	moves := generateMoves(gs, active)
	if len(moves) == 0 {
		return evaluatePosition(gs, s.forSlot, s.level)
	}

	maximizing := active == s.forSlot
	best := math.Inf(-1)
	if !maximizing {
		best = math.Inf(1)
	}
	for _, mv := range moves {
		res, err := conquest.Apply(gs, mv)
		if err != nil {
			continue
		}
		value := s.search(res.State, depth-1)
		if s.timedOut {
			return best
		}
		if maximizing && value > best {
			best = value
		}
		if !maximizing && value < best {
			best = value
		}
	}
	return best
}

// terminalValue scores a finished game far outside the heuristic range.
func terminalValue(end *conquest.GameEnd, forSlot int) float64 {
	switch end.Winner {
	case forSlot:
		return 1e6
	case -1:
		return 0
	default:
		return -1e6
	}
}

// generateMoves lists the legal moves the search considers for a slot:
// EndTurn always, plus full- and half-strength army moves from every active
// garrison. Moves into a stronger enemy garrison are pruned. Builds are not
// searched; the policy layer decides those before the search runs.
func generateMoves(gs *conquest.GameState, slot int) []conquest.Command {
	moves := []conquest.Command{{Type: conquest.CmdEndTurn, Player: slot}}
	if gs.MovesRemaining < 1 || gs.CurrentPlayerSlot != slot {
		return moves
	}

	for i := range gs.Regions {
		src := gs.Regions[i].Index
		if !gs.OwnedBy(src, slot) || gs.ConqueredRegions[src] {
			continue
		}
		count := gs.SoldierCountAt(src)
		if count == 0 {
			continue
		}
		for _, dst := range gs.Regions[i].Neighbors {
			counts := []int{count}
			if count > 1 {
				counts = append(counts, count/2)
			}
			for _, c := range counts {
				if isDumbMove(gs, slot, dst, c) {
					continue
				}
				moves = append(moves, conquest.Command{
					Type:   conquest.CmdArmyMove,
					Player: slot,
					Source: src,
					Target: dst,
					Count:  c,
				})
			}
		}
	}
	return moves
}

// isDumbMove prunes attacks that walk into a larger enemy garrison.
func isDumbMove(gs *conquest.GameState, slot, target, count int) bool {
	owner, owned := gs.Owner(target)
	if owned && owner != slot && gs.SoldierCountAt(target) > count {
		return true
	}
	return false
}
