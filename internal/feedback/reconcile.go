package feedback

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

// UpdateMeta carries the hints a game update ships alongside the new state.
// TurnMoves is the full batch executed by an end-of-turn, LastMove a single
// incremental command. Either may be absent.
type UpdateMeta struct {
	TurnMoves []conquest.Command `json:"turnMoves,omitempty"`
	LastMove  *conquest.Command  `json:"lastMove,omitempty"`
	// ActorSlot is the player whose action produced the update. Only the
	// diff fallback needs it, to attribute recruitment.
	ActorSlot int `json:"actorSlot"`
}

// Reconcile derives an animation plan that explains how prev became next.
//
// When the update names its commands, they are replayed against prev; the
// state generator is part of the state, so the replay reproduces the
// server's combat outcomes exactly and the replayed end state must match
// next. When no commands are available, or the replay diverges, a per-region
// state diff reconstructs the most plausible plan instead. The diff path is
// a diagnostic degradation and is logged.
func Reconcile(prev, next *conquest.GameState, meta UpdateMeta) Plan {
	cmds := meta.TurnMoves
	if len(cmds) == 0 && meta.LastMove != nil {
		cmds = []conquest.Command{*meta.LastMove}
	}

	if len(cmds) > 0 {
		plan, ok := replayCommands(prev, next, cmds)
		if ok {
			return plan
		}
		log.Warn().Int("commands", len(cmds)).
			Msg("Command replay diverged from server state, falling back to diff")
	}
	return diffPlan(prev, next, meta.ActorSlot)
}

// replayCommands applies the commands to a working copy of prev and emits a
// step per visible action. Returns ok=false when the replayed end state does
// not match next.
func replayCommands(prev, next *conquest.GameState, cmds []conquest.Command) (Plan, bool) {
	working := prev.Clone()
	var plan Plan

	for _, cmd := range cmds {
		// An end-turn envelope is replayed move by move so each queued move
		// gets its own step, then closed with a bare end-turn.
		if cmd.Type == conquest.CmdEndTurn && len(cmd.Moves) > 0 {
			inner, ok := replaySteps(&working, cmd.Moves)
			if !ok {
				return nil, false
			}
			plan = append(plan, inner...)
			cmd = conquest.Command{Type: conquest.CmdEndTurn, Player: cmd.Player}
		}
		inner, ok := replaySteps(&working, []conquest.Command{cmd})
		if !ok {
			return nil, false
		}
		plan = append(plan, inner...)
	}

	if !statesMatch(working, next) {
		return nil, false
	}
	return plan, true
}

// replaySteps applies commands to *working in order, emitting a step per
// visible action.
func replaySteps(working **conquest.GameState, cmds []conquest.Command) (Plan, bool) {
	var plan Plan
	for _, cmd := range cmds {
		ownerBefore, hadOwner := (*working).Owner(cmd.Target)
		res, err := conquest.Apply(*working, cmd)
		if err != nil {
			return nil, false
		}

		switch cmd.Type {
		case conquest.CmdArmyMove:
			ownerAfter, _ := res.State.Owner(cmd.Target)
			switch {
			case hadOwner && ownerBefore == cmd.Player:
				plan = append(plan, Step{
					Kind:   StepMovement,
					Source: cmd.Source,
					Target: cmd.Target,
					Count:  cmd.Count,
				})
			case ownerAfter == cmd.Player:
				plan = append(plan, Step{
					Kind:         StepConquest,
					Source:       cmd.Source,
					Target:       cmd.Target,
					Count:        cmd.Count,
					NewOwner:     cmd.Player,
					AttackEvents: res.AttackEvents,
				})
			default:
				plan = append(plan, Step{
					Kind:         StepFailedAttack,
					Source:       cmd.Source,
					Target:       cmd.Target,
					Count:        cmd.Count,
					AttackEvents: res.AttackEvents,
				})
			}

		case conquest.CmdBuild:
			if cmd.Upgrade == conquest.UpgradeSoldier {
				plan = append(plan, Step{Kind: StepRecruitment, Target: cmd.Region, Count: 1})
			} else {
				plan = append(plan, Step{Kind: StepUpgrade, Target: cmd.Region, Upgrade: cmd.Upgrade})
			}
		}
		// EndTurn and Resign have no animation of their own.
		*working = res.State
	}
	return plan, true
}

// statesMatch compares two states by their serialized form.
func statesMatch(a, b *conquest.GameState) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(aj) == string(bj)
}

// regionDelta is one region's change between two states.
type regionDelta struct {
	region       int
	ownerBefore  int
	ownerAfter   int
	hadOwner     bool
	hasOwner     bool
	countBefore  int
	countAfter   int
	ownerChanged bool
}

// diffPlan reconstructs a plan from per-region deltas when no command list
// is available. Conquests are classified first; remaining soldier gains are
// paired against adjacent losses of the same owner, and gains at the actor's
// own temples with no pairable source become recruitment.
func diffPlan(prev, next *conquest.GameState, actor int) Plan {
	var deltas []regionDelta
	// losses tracks soldiers that left a region without changing its owner,
	// available as movement sources.
	losses := map[int]int{}

	for i := range prev.Regions {
		idx := prev.Regions[i].Index
		ob, hadOwner := prev.Owner(idx)
		oa, hasOwner := next.Owner(idx)
		d := regionDelta{
			region:       idx,
			ownerBefore:  ob,
			ownerAfter:   oa,
			hadOwner:     hadOwner,
			hasOwner:     hasOwner,
			countBefore:  prev.SoldierCountAt(idx),
			countAfter:   next.SoldierCountAt(idx),
			ownerChanged: hadOwner != hasOwner || ob != oa,
		}
		deltas = append(deltas, d)
		if !d.ownerChanged && d.countAfter < d.countBefore {
			losses[idx] = d.countBefore - d.countAfter
		}
	}

	var plan Plan
	claimed := map[int]bool{}

	// Pass 1: conquests.
	for _, d := range deltas {
		if !d.ownerChanged || !d.hasOwner {
			continue
		}
		src := takeSource(prev, next, d.region, d.ownerAfter, d.countAfter, losses)
		plan = append(plan, Step{
			Kind:     StepConquest,
			Source:   src,
			Target:   d.region,
			Count:    d.countAfter,
			NewOwner: d.ownerAfter,
		})
		claimed[d.region] = true
	}

	// Pass 2: movements into regions the owner already held.
	for _, d := range deltas {
		if d.ownerChanged || claimed[d.region] || d.countAfter <= d.countBefore {
			continue
		}
		gain := d.countAfter - d.countBefore
		src := takeSource(prev, next, d.region, d.ownerAfter, gain, losses)
		if src >= 0 {
			plan = append(plan, Step{
				Kind:   StepMovement,
				Source: src,
				Target: d.region,
				Count:  gain,
			})
			claimed[d.region] = true
		}
	}

	// Pass 3: unexplained gains at the actor's own temples are recruitment;
	// anything else gets a diagnostic highlight.
	for _, d := range deltas {
		if d.ownerChanged || claimed[d.region] || d.countAfter <= d.countBefore {
			continue
		}
		_, hasTemple := next.TemplesByRegion[d.region]
		if hasTemple && d.hasOwner && d.ownerAfter == actor {
			plan = append(plan, Step{
				Kind:   StepRecruitment,
				Target: d.region,
				Count:  d.countAfter - d.countBefore,
			})
		} else {
			plan = append(plan, Step{Kind: StepHighlight, Target: d.region})
		}
	}

	// Pass 4: temple changes.
	for i := range prev.Regions {
		idx := prev.Regions[i].Index
		tb, hadTemple := prev.TemplesByRegion[idx]
		ta, hasTemple := next.TemplesByRegion[idx]
		if !hasTemple {
			continue
		}
		if !hadTemple || tb.Upgrade != ta.Upgrade || tb.Level < ta.Level {
			if ta.Upgrade == conquest.UpgradeNone {
				continue
			}
			plan = append(plan, Step{Kind: StepUpgrade, Target: idx, Upgrade: ta.Upgrade})
		}
	}

	return plan
}

// takeSource picks the best adjacent source for soldiers arriving at target:
// a neighbor owned by owner in prev that recorded a loss. The loss bag is
// drained so two gains cannot claim the same departures. Returns -1 when no
// neighbor qualifies.
func takeSource(prev, next *conquest.GameState, target, owner, count int, losses map[int]int) int {
	reg := prev.RegionByIndex(target)
	if reg == nil {
		return -1
	}
	best := -1
	bestLoss := 0
	for _, n := range reg.Neighbors {
		if !prev.OwnedBy(n, owner) {
			continue
		}
		if l := losses[n]; l > bestLoss {
			bestLoss = l
			best = n
		}
	}
	if best >= 0 {
		remaining := losses[best] - count
		if remaining <= 0 {
			delete(losses, best)
		} else {
			losses[best] = remaining
		}
	}
	return best
}
