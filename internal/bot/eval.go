package bot

import "github.com/freeeve/divine-conquest/api/pkg/conquest"

const evalEpsilon = 0.01

// slidingBonus linearly interpolates from startVal down to endVal between
// the drop-off turn (dropOffFraction of maxTurns) and the final turn.
// Before the drop-off, and for unlimited games, it stays at startVal.
func slidingBonus(gs *conquest.GameState, startVal, endVal, dropOffFraction float64) float64 {
	if gs.MaxTurns <= 0 {
		return startVal
	}
	dropOff := dropOffFraction * float64(gs.MaxTurns)
	alpha := (float64(gs.TurnNumber) - dropOff) / (float64(gs.MaxTurns) - dropOff)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return startVal + (endVal-startVal)*alpha
}

// regionFullValue prices a region: one point base, a decaying bonus for
// hosting a temple, and a decaying per-level bonus for an installed upgrade.
func regionFullValue(gs *conquest.GameState, region int) float64 {
	value := 1.0
	t, hasTemple := gs.TemplesByRegion[region]
	if hasTemple {
		value += slidingBonus(gs, 6, 0, 0.5)
		if t.Upgrade != conquest.UpgradeNone {
			value += slidingBonus(gs, 4, 0, 0.9) * float64(t.Level+1)
		}
	}
	return value
}

// regionThreat estimates how exposed a region is: enemy soldiers within the
// level's scan depth, distance-weighted, against our local garrison. Nice
// AIs never see threats.
func regionThreat(gs *conquest.GameState, slot, region int, level Level) float64 {
	if level == LevelNice {
		return 0
	}
	maxDepth := 0
	clampHigh := 0.5
	if level >= LevelMean {
		maxDepth = 2
		clampHigh = 1.1
	}

	enemyPresence := 0.0
	visited := map[int]bool{region: true}
	frontier := []int{region}
	for depth := 0; depth <= maxDepth; depth++ {
		var next []int
		for _, r := range frontier {
			reg := gs.RegionByIndex(r)
			if reg == nil {
				continue
			}
			for _, n := range reg.Neighbors {
				if visited[n] {
					continue
				}
				visited[n] = true
				next = append(next, n)
				owner, owned := gs.Owner(n)
				if owned && owner != slot {
					enemyPresence += float64(gs.SoldierCountAt(n)) * float64(2+depth) / 4
				}
			}
		}
		frontier = next
	}

	ourPresence := float64(gs.SoldierCountAt(region))
	threat := (enemyPresence/(ourPresence+evalEpsilon) - 1) / 1.5
	if threat < 0 {
		return 0
	}
	if threat > clampHigh {
		return clampHigh
	}
	return threat
}

// regionOpportunity measures how well a garrison can reinforce friendly
// neighbors, weighted by how valuable those neighbors are.
func regionOpportunity(gs *conquest.GameState, slot, region int, level Level) float64 {
	if level == LevelNice {
		return 0
	}
	reg := gs.RegionByIndex(region)
	if reg == nil {
		return 0
	}
	atk := float64(gs.SoldierCountAt(region))
	total := 0.0
	for _, n := range reg.Neighbors {
		if !gs.OwnedBy(n, slot) {
			continue
		}
		def := float64(gs.SoldierCountAt(n))
		chance := (atk/(def+evalEpsilon) - 0.9) * 0.5
		if chance < 0 {
			chance = 0
		}
		if chance > 0.5 {
			chance = 0.5
		}
		total += chance * regionFullValue(gs, n)
	}
	return total
}

// templeDangerousness ranks an owned temple by how contested its region is.
// The policy builds soldiers at the most dangerous temple and upgrades at
// the safest one.
func templeDangerousness(gs *conquest.GameState, t conquest.Temple, level Level) float64 {
	owner, ok := gs.Owner(t.Region)
	if !ok {
		return 0
	}
	return regionThreat(gs, owner, t.Region, level) + regionOpportunity(gs, owner, t.Region, level)
}

// HeuristicForPlayer scores a position for one slot. Higher is better.
func HeuristicForPlayer(gs *conquest.GameState, slot int, level Level) float64 {
	soldierBonus := slidingBonus(gs, 0.25, 0, 0.83)
	threatMult := slidingBonus(gs, 1, 0, 0.83)

	score := 0.0
	for i := range gs.Regions {
		idx := gs.Regions[i].Index
		if !gs.OwnedBy(idx, slot) {
			continue
		}
		value := regionFullValue(gs, idx)
		threat := regionThreat(gs, slot, idx, level)
		opportunity := regionOpportunity(gs, slot, idx, level)
		score += value + (opportunity-threat*value)*threatMult
		score += soldierBonus * float64(gs.SoldierCountAt(idx))
	}
	score += float64(conquest.Income(gs, slot)) * soldierBonus / 12
	return score
}
