package conquest

// Income computes a slot's end-of-turn faith income: one per owned region,
// one per soldier praying at an owned temple region, multiplied by the
// summed water-temple bonus percentage.
func Income(gs *GameState, slot int) int {
	base := gs.RegionCount(slot)
	waterPercent := 0
	for _, t := range gs.TemplesOf(slot) {
		base += gs.SoldierCountAt(t.Region)
		if t.Upgrade == UpgradeWater {
			waterPercent += UpgradeValue(UpgradeWater, t.Level)
		}
	}
	return base * (100 + waterPercent) / 100
}
