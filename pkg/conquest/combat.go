package conquest

import "fmt"

// SoundCue tells the client which sound to play alongside an attack event.
type SoundCue string

const (
	SoundAttack SoundCue = "attack"
	SoundCombat SoundCue = "combat"
)

// Animation pacing for combat events, in milliseconds.
const (
	combatRoundDelayMs = 800
	battleSettleMs     = 600
)

// FloatingText is a piece of text the client floats over a region.
type FloatingText struct {
	Region int    `json:"region"`
	Text   string `json:"text"`
	Color  string `json:"color"`
	Width  int    `json:"width"`
}

// AttackEvent is one step of a combat animation plan. The resolver emits an
// ordered list of these; the client replays them with the embedded delays.
type AttackEvent struct {
	AttackerCasualties   int            `json:"attackerCasualties,omitempty"`
	DefenderCasualties   int            `json:"defenderCasualties,omitempty"`
	RunningAttackerTotal int            `json:"runningAttackerTotal,omitempty"`
	RunningDefenderTotal int            `json:"runningDefenderTotal,omitempty"`
	SoundCue             SoundCue       `json:"soundCue,omitempty"`
	DelayMs              int            `json:"delay,omitempty"`
	FloatingText         []FloatingText `json:"floatingText,omitempty"`
	IsRetreat            bool           `json:"isRetreat,omitempty"`
}

const conqueredColor = "#fc0"

// resolveCombat runs an attack of count soldiers from source against target,
// mutating gs in place and returning the ordered attack event list. The
// caller has already validated the move and verified the owners differ.
//
// All randomness comes from gs.Rng, so the same state and move always yield
// a byte-identical event list.
func resolveCombat(gs *GameState, source, target, count int) []AttackEvent {
	attackerSlot := gs.OwnersByRegion[source]
	defenderColor := "#fff"
	if owner, ok := gs.Owner(target); ok {
		if p := gs.PlayerBySlot(owner); p != nil {
			defenderColor = p.Color
		}
	}

	var events []AttackEvent
	originalCount := count
	attackersLeft := count
	defendersLeft := gs.SoldierCountAt(target)
	attackerTotal := 0 // cumulative attacker casualties
	defenderTotal := 0

	retreatThreshold := originalCount / 2

	// Preemptive EARTH damage: the defending temple strikes first.
	if kills := minInt(attackersLeft, gs.UpgradeLevelAt(target, UpgradeEarth)); kills > 0 && defendersLeft > 0 {
		attackersLeft -= kills
		attackerTotal += kills
		events = append(events, AttackEvent{
			AttackerCasualties:   kills,
			RunningAttackerTotal: attackerTotal,
			RunningDefenderTotal: defenderTotal,
			SoundCue:             SoundAttack,
			DelayMs:              combatRoundDelayMs,
			FloatingText: []FloatingText{
				{Region: target, Text: fmt.Sprintf("Earth kills %d!", kills), Color: defenderColor, Width: 10},
			},
		})
	}

	// Preemptive FIRE damage: the attacker's temple strikes back.
	if kills := minInt(defendersLeft, upgradeLevelOwned(gs, source, UpgradeFire)); kills > 0 && attackersLeft > 0 {
		defendersLeft -= kills
		defenderTotal += kills
		events = append(events, AttackEvent{
			DefenderCasualties:   kills,
			RunningAttackerTotal: attackerTotal,
			RunningDefenderTotal: defenderTotal,
			SoundCue:             SoundAttack,
			DelayMs:              combatRoundDelayMs,
			FloatingText: []FloatingText{
				{Region: target, Text: fmt.Sprintf("Fire kills %d!", kills), Color: conqueredColor, Width: 10},
			},
		})
	}

	retreated := false
	if attackerTotal > retreatThreshold && attackersLeft > 0 && defendersLeft > 0 {
		retreated = true
	}

	// Melee rounds: Risk-style dice while both sides have units.
	for !retreated && attackersLeft > 0 && defendersLeft > 0 {
		atkDice := rollSorted(&gs.Rng, minInt(3, attackersLeft))
		defDice := rollSorted(&gs.Rng, minInt(2, defendersLeft))

		atkLost, defLost := 0, 0
		pairs := minInt(len(atkDice), len(defDice))
		for i := 0; i < pairs; i++ {
			if atkDice[i] > defDice[i] {
				defLost++
			} else {
				// Ties go to the defender.
				atkLost++
			}
		}

		attackersLeft -= atkLost
		defendersLeft -= defLost
		attackerTotal += atkLost
		defenderTotal += defLost

		events = append(events, AttackEvent{
			AttackerCasualties:   atkLost,
			DefenderCasualties:   defLost,
			RunningAttackerTotal: attackerTotal,
			RunningDefenderTotal: defenderTotal,
			SoundCue:             SoundCombat,
			DelayMs:              combatRoundDelayMs,
		})

		if attackerTotal > retreatThreshold && attackersLeft > 0 && defendersLeft > 0 {
			retreated = true
		}
	}

	// Apply casualties to the soldier sequences: dead soldiers come off the
	// end of each side's stack.
	src := gs.SoldiersByRegion[source]
	survivors := src[len(src)-originalCount:]
	survivors = survivors[:attackersLeft]
	remaining := src[:len(src)-originalCount]

	defSoldiers := gs.SoldiersByRegion[target]
	defSoldiers = defSoldiers[:defendersLeft]

	switch {
	case retreated:
		events = append(events, AttackEvent{
			IsRetreat: true,
			DelayMs:   combatRoundDelayMs,
			FloatingText: []FloatingText{
				{Region: source, Text: "Retreat!", Color: defenderColor, Width: 7},
			},
		})
		events = append(events, defendedEvent(target, defenderColor))
		// Survivors stay at the source.
		gs.SoldiersByRegion[source] = append(remaining, survivors...)
		setSoldiers(gs, target, defSoldiers)

	case defendersLeft == 0:
		events = append(events, AttackEvent{
			DelayMs: combatRoundDelayMs,
			FloatingText: []FloatingText{
				{Region: target, Text: "Conquered!", Color: conqueredColor, Width: 7},
			},
		})
		setSoldiers(gs, source, remaining)
		gs.SoldiersByRegion[target] = append([]Soldier{}, survivors...)
		gs.OwnersByRegion[target] = attackerSlot

	default:
		// Attackers wiped out; the survivors (none) do not return.
		events = append(events, defendedEvent(target, defenderColor))
		setSoldiers(gs, source, remaining)
		setSoldiers(gs, target, defSoldiers)
	}

	events = append(events, AttackEvent{DelayMs: battleSettleMs})
	return events
}

func defendedEvent(target int, color string) AttackEvent {
	return AttackEvent{
		DelayMs: combatRoundDelayMs,
		FloatingText: []FloatingText{
			{Region: target, Text: "Defended!", Color: color, Width: 7},
		},
	}
}

// rollSorted rolls n d6 and returns them sorted descending.
func rollSorted(rng *Rng, n int) []int {
	dice := make([]int, n)
	for i := range dice {
		dice[i] = rng.RollDice(6)
	}
	// n is at most 3.
	for i := 1; i < len(dice); i++ {
		for j := i; j > 0 && dice[j] > dice[j-1]; j-- {
			dice[j], dice[j-1] = dice[j-1], dice[j]
		}
	}
	return dice
}

// upgradeLevelOwned returns the effect value of an upgrade on any temple
// owned by the same player as the given region. Attacker bonuses (fire)
// come from the attacking player's temples, not the contested region.
func upgradeLevelOwned(gs *GameState, region int, u Upgrade) int {
	slot, ok := gs.Owner(region)
	if !ok {
		return 0
	}
	best := 0
	for _, t := range gs.TemplesOf(slot) {
		if t.Upgrade != u {
			continue
		}
		if v := UpgradeValue(u, t.Level); v > best {
			best = v
		}
	}
	return best
}

// setSoldiers writes a garrison back, dropping empty entries so states that
// went through combat compare equal to states built fresh.
func setSoldiers(gs *GameState, region int, soldiers []Soldier) {
	if len(soldiers) == 0 {
		delete(gs.SoldiersByRegion, region)
		return
	}
	gs.SoldiersByRegion[region] = soldiers
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
