// Package feedback turns pairs of authoritative game states into ordered
// animation plans and runs them through a strictly sequential queue. It is
// the client-side half of the engine: it never feeds anything back into the
// rules.
package feedback

import "github.com/freeeve/divine-conquest/api/pkg/conquest"

// StepKind classifies one animation step of a plan.
type StepKind string

const (
	StepMovement     StepKind = "movement"
	StepConquest     StepKind = "conquest"
	StepFailedAttack StepKind = "failed_attack"
	StepRecruitment  StepKind = "recruitment"
	StepUpgrade      StepKind = "upgrade"
	StepHighlight    StepKind = "highlight" // diagnostic fallback when pairing fails
)

// Step is one serializable unit of an animation plan.
type Step struct {
	Kind   StepKind `json:"kind"`
	Source int      `json:"source,omitempty"`
	Target int      `json:"target"`
	Count  int      `json:"count,omitempty"`
	// NewOwner is the slot that holds Target after a conquest step.
	NewOwner int              `json:"new_owner,omitempty"`
	Upgrade  conquest.Upgrade `json:"upgrade,omitempty"`
	// AttackEvents replays the server's combat animation for conquest and
	// failed_attack steps.
	AttackEvents []conquest.AttackEvent `json:"attack_events,omitempty"`
}

// Plan is an ordered list of steps executed strictly one at a time.
type Plan []Step

// Timing holds the animation pacing constants, all in milliseconds.
type Timing struct {
	SoldierMoveMs   int
	BattleEndWaitMs int
	HighlightMs     int
	QuickMs         int
}

// DefaultTiming returns the standard pacing.
func DefaultTiming() Timing {
	return Timing{
		SoldierMoveMs:   700,
		BattleEndWaitMs: 2500,
		HighlightMs:     1500,
		QuickMs:         300,
	}
}

// Renderer consumes feedback events one at a time. The timing argument on
// each call is data for the renderer's own scheduler, not a sleep performed
// here.
type Renderer interface {
	// BattleStateUpdate hands the renderer a transient overlay state.
	BattleStateUpdate(gs *conquest.GameState)
	// BattleCasualties reports one combat event's losses for smoke effects.
	BattleCasualties(source, target, attackerLost, defenderLost int)
	// SoldierMove animates count soldiers walking from source to target.
	SoldierMove(source, target, count, durationMs int)
	// HighlightRegion flashes a region for an action.
	HighlightRegion(region int, action StepKind, durationMs int)
	// PlaySound triggers a sound cue.
	PlaySound(cue conquest.SoundCue)
	// FloatText shows combat text over a region.
	FloatText(ft conquest.FloatingText)
	// Wait pauses the plan for the given delay.
	Wait(ms int)
}

// Execute runs a plan against a renderer, maintaining a running overlay of
// the previous state so each step starts from where the last one left off.
// Returns the final overlay; its board layout (owners, garrisons, temples)
// matches the new authoritative state when the plan came from a consistent
// update.
func Execute(plan Plan, prev *conquest.GameState, r Renderer, timing Timing) *conquest.GameState {
	overlay := prev.Clone()
	for _, step := range plan {
		runStep(step, overlay, r, timing)
		applyStep(step, overlay)
		r.BattleStateUpdate(overlay.Clone())
	}
	return overlay
}

func runStep(step Step, overlay *conquest.GameState, r Renderer, timing Timing) {
	switch step.Kind {
	case StepMovement:
		r.SoldierMove(step.Source, step.Target, step.Count, timing.SoldierMoveMs)
		r.Wait(timing.SoldierMoveMs)

	case StepConquest, StepFailedAttack:
		replayAttack(step, overlay, r)
		r.Wait(timing.BattleEndWaitMs)
		if step.Kind == StepConquest {
			survivors := step.Count - attackerCasualties(step.AttackEvents)
			r.SoldierMove(step.Source, step.Target, survivors, timing.SoldierMoveMs)
			r.PlaySound(conquest.SoundCombat)
			r.HighlightRegion(step.Target, StepConquest, timing.HighlightMs)
		} else {
			// Attackers walk halfway out and back.
			r.SoldierMove(step.Source, step.Source, step.Count, timing.QuickMs)
		}

	case StepRecruitment, StepUpgrade:
		r.PlaySound(conquest.SoundAttack)
		r.HighlightRegion(step.Target, step.Kind, timing.HighlightMs)
		r.Wait(timing.HighlightMs)

	case StepHighlight:
		r.HighlightRegion(step.Target, StepHighlight, timing.QuickMs)
		r.Wait(timing.QuickMs)
	}
}

// replayAttack walks the server-supplied attack events, surfacing per-event
// casualties and floating text with the embedded delays.
func replayAttack(step Step, overlay *conquest.GameState, r Renderer) {
	r.BattleStateUpdate(overlay.Clone())
	for _, ev := range step.AttackEvents {
		if ev.AttackerCasualties > 0 || ev.DefenderCasualties > 0 {
			r.BattleCasualties(step.Source, step.Target, ev.AttackerCasualties, ev.DefenderCasualties)
		}
		if ev.SoundCue != "" {
			r.PlaySound(ev.SoundCue)
		}
		for _, ft := range ev.FloatingText {
			r.FloatText(ft)
		}
		if ev.DelayMs > 0 {
			r.Wait(ev.DelayMs)
		}
	}
}

// applyStep advances the overlay past a step so the next step's animation
// starts from correct positions.
func applyStep(step Step, overlay *conquest.GameState) {
	switch step.Kind {
	case StepMovement:
		transferSoldiers(overlay, step.Source, step.Target, step.Count)

	case StepConquest:
		atkLost := attackerCasualties(step.AttackEvents)
		removeFromEnd(overlay, step.Source, atkLost)
		survivors := step.Count - atkLost
		delete(overlay.SoldiersByRegion, step.Target)
		transferSoldiers(overlay, step.Source, step.Target, survivors)
		overlay.OwnersByRegion[step.Target] = step.NewOwner

	case StepFailedAttack:
		// No transfer; both sides just lose their dead.
		removeFromEnd(overlay, step.Source, attackerCasualties(step.AttackEvents))
		removeFromEnd(overlay, step.Target, defenderCasualties(step.AttackEvents))

	case StepRecruitment:
		s := conquest.Soldier{ID: overlay.NextSoldierID}
		overlay.NextSoldierID++
		overlay.SoldiersByRegion[step.Target] = append(overlay.SoldiersByRegion[step.Target], s)

	case StepUpgrade:
		t := overlay.TemplesByRegion[step.Target]
		if t.Upgrade == step.Upgrade {
			t.Level++
		} else {
			t.Upgrade = step.Upgrade
			t.Level = 0
		}
		t.Region = step.Target
		overlay.TemplesByRegion[step.Target] = t
	}
}

func transferSoldiers(gs *conquest.GameState, source, target, count int) {
	src := gs.SoldiersByRegion[source]
	if count > len(src) {
		count = len(src)
	}
	if count <= 0 {
		return
	}
	moving := src[len(src)-count:]
	rest := src[:len(src)-count]
	if len(rest) == 0 {
		delete(gs.SoldiersByRegion, source)
	} else {
		gs.SoldiersByRegion[source] = rest
	}
	gs.SoldiersByRegion[target] = append(gs.SoldiersByRegion[target], moving...)
}

func removeFromEnd(gs *conquest.GameState, region, count int) {
	s := gs.SoldiersByRegion[region]
	if count > len(s) {
		count = len(s)
	}
	s = s[:len(s)-count]
	if len(s) == 0 {
		delete(gs.SoldiersByRegion, region)
	} else {
		gs.SoldiersByRegion[region] = s
	}
}

func attackerCasualties(events []conquest.AttackEvent) int {
	total := 0
	for _, ev := range events {
		total += ev.AttackerCasualties
	}
	return total
}

func defenderCasualties(events []conquest.AttackEvent) int {
	total := 0
	for _, ev := range events {
		total += ev.DefenderCasualties
	}
	return total
}
