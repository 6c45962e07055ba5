package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

// DefaultSearchDepth bounds the minimax when the policy falls through to it.
const DefaultSearchDepth = 3

// PickMove chooses a command for an AI slot. It never fails: when nothing
// else applies it ends the turn. Every returned command validates against
// the state it was picked on.
//
// The pipeline runs in priority order: recruit a soldier when the military
// balance demands it, otherwise buy the personality's next preferred
// upgrade, otherwise search for an army move.
func PickMove(ctx context.Context, gs *conquest.GameState, slot int, p Personality, level Level, thinkTime time.Duration) conquest.Command {
	if cmd, ok := pickSoldierBuild(gs, slot, p, level); ok {
		return cmd
	}
	if cmd, ok := pickUpgradeBuild(gs, slot, p, level); ok {
		return cmd
	}
	cmd := MinimaxSearch(ctx, gs, slot, DefaultSearchDepth, thinkTime, level)
	if err := conquest.Validate(gs, cmd); err != nil {
		// Should not happen; the search only proposes legal moves.
		log.Warn().Err(err).Int("slot", slot).Msg("Search proposed an illegal move, ending turn")
		return conquest.Command{Type: conquest.CmdEndTurn, Player: slot}
	}
	return cmd
}

// pickSoldierBuild decides whether the slot should buy a soldier this move,
// and where: the most dangerous owned temple.
func pickSoldierBuild(gs *conquest.GameState, slot int, p Personality, level Level) (conquest.Command, bool) {
	temples := gs.TemplesOf(slot)
	if len(temples) == 0 {
		return conquest.Command{}, false
	}
	cost := conquest.SoldierCost(gs.SoldierBuildsThisTurn)
	faith := gs.FaithByPlayer[slot]
	if faith < cost {
		return conquest.Command{}, false
	}

	eagerness := p.SoldierEagerness
	if nextDesiredUpgrade(gs, slot, p) == conquest.UpgradeNone {
		// Nothing left to build toward; all faith goes to the army.
		eagerness = 1.0
	}
	relativeCost := float64(cost) / float64(faith)
	if forceDisparity(gs, slot)*eagerness-relativeCost < 0 {
		return conquest.Command{}, false
	}

	at := temples[0]
	bestDanger := templeDangerousness(gs, at, level)
	for _, t := range temples[1:] {
		if d := templeDangerousness(gs, t, level); d > bestDanger {
			bestDanger = d
			at = t
		}
	}
	return conquest.Command{
		Type:    conquest.CmdBuild,
		Player:  slot,
		Region:  at.Region,
		Upgrade: conquest.UpgradeSoldier,
	}, true
}

// pickUpgradeBuild buys the personality's next preferred upgrade at the
// safest temple that can host it.
func pickUpgradeBuild(gs *conquest.GameState, slot int, p Personality, level Level) (conquest.Command, bool) {
	want := nextDesiredUpgrade(gs, slot, p)
	if want == conquest.UpgradeNone {
		return conquest.Command{}, false
	}

	var best *conquest.Temple
	bestDanger := 0.0
	for _, t := range gs.TemplesOf(slot) {
		nextLevel, ok := hostLevel(t, want)
		if !ok {
			continue
		}
		if gs.FaithByPlayer[slot] < conquest.UpgradeCost(want, nextLevel) {
			continue
		}
		d := templeDangerousness(gs, t, level)
		if best == nil || d < bestDanger {
			tt := t
			best = &tt
			bestDanger = d
		}
	}
	if best == nil {
		return conquest.Command{}, false
	}
	return conquest.Command{
		Type:    conquest.CmdBuild,
		Player:  slot,
		Region:  best.Region,
		Upgrade: want,
	}, true
}

// nextDesiredUpgrade walks the preference list for the first upgrade that is
// not yet maxed on any owned temple. UpgradeNone means the personality is
// satisfied.
func nextDesiredUpgrade(gs *conquest.GameState, slot int, p Personality) conquest.Upgrade {
	temples := gs.TemplesOf(slot)
	for _, want := range p.UpgradePreference {
		maxed := false
		for _, t := range temples {
			if t.Upgrade == want && t.Level >= conquest.MaxUpgradeLevel(want) {
				maxed = true
				break
			}
		}
		if !maxed {
			return want
		}
	}
	return conquest.UpgradeNone
}

// hostLevel returns the level the temple would reach if it received the
// upgrade: 0 for an empty slot, level+1 when leveling the same upgrade.
func hostLevel(t conquest.Temple, want conquest.Upgrade) (int, bool) {
	if t.Upgrade == conquest.UpgradeNone {
		return 0, true
	}
	if t.Upgrade == want && t.Level < conquest.MaxUpgradeLevel(want) {
		return t.Level + 1, true
	}
	return 0, false
}

// forceDisparity is the strongest live player's military force over ours.
// Force counts two points per region plus one per soldier.
func forceDisparity(gs *conquest.GameState, slot int) float64 {
	force := func(s int) float64 {
		return float64(2*gs.RegionCount(s) + gs.SoldierCount(s))
	}
	ours := force(slot)
	if ours == 0 {
		return 1
	}
	maxForce := ours
	for _, p := range gs.Players {
		if p.Slot == slot || !gs.PlayerIsAlive(p.Slot) {
			continue
		}
		if f := force(p.Slot); f > maxForce {
			maxForce = f
		}
	}
	return maxForce / ours
}
