package conquest

// Upgrade identifies what a temple's upgrade slot holds, plus the special
// soldier "upgrade" that recruits instead of changing the temple.
type Upgrade int

const (
	UpgradeNone    Upgrade = -1
	UpgradeSoldier Upgrade = iota - 1
	UpgradeEarth
	UpgradeFire
	UpgradeWater
	UpgradeAir
)

func (u Upgrade) String() string {
	switch u {
	case UpgradeSoldier:
		return "soldier"
	case UpgradeEarth:
		return "earth"
	case UpgradeFire:
		return "fire"
	case UpgradeWater:
		return "water"
	case UpgradeAir:
		return "air"
	default:
		return "none"
	}
}

// UpgradeDef is the static rules data for one elemental upgrade.
// Costs[i] is the faith price of reaching level i; Values[i] is the effect
// magnitude at level i (kills for earth/fire, income percent for water,
// extra moves for air).
type UpgradeDef struct {
	Name   string
	Costs  []int
	Values []int
}

// upgradeDefs is loaded once and never mutated at runtime.
var upgradeDefs = map[Upgrade]UpgradeDef{
	UpgradeEarth: {Name: "Earth", Costs: []int{15, 25}, Values: []int{1, 2}},
	UpgradeFire:  {Name: "Fire", Costs: []int{15, 25}, Values: []int{1, 2}},
	UpgradeWater: {Name: "Water", Costs: []int{15, 25}, Values: []int{20, 40}},
	UpgradeAir:   {Name: "Air", Costs: []int{25, 40}, Values: []int{1, 2}},
}

// ElementalUpgrades lists the purchasable temple upgrades in catalog order.
func ElementalUpgrades() []Upgrade {
	return []Upgrade{UpgradeEarth, UpgradeFire, UpgradeWater, UpgradeAir}
}

// MaxUpgradeLevel returns the highest level index for an upgrade, or -1 for
// upgrades without levels (soldier, none).
func MaxUpgradeLevel(u Upgrade) int {
	def, ok := upgradeDefs[u]
	if !ok {
		return -1
	}
	return len(def.Values) - 1
}

// UpgradeCost returns the faith price of buying the given level, or -1 when
// the level does not exist.
func UpgradeCost(u Upgrade, level int) int {
	def, ok := upgradeDefs[u]
	if !ok || level < 0 || level >= len(def.Costs) {
		return -1
	}
	return def.Costs[level]
}

// UpgradeValue returns the effect magnitude at the given level, or 0.
func UpgradeValue(u Upgrade, level int) int {
	def, ok := upgradeDefs[u]
	if !ok || level < 0 || level >= len(def.Values) {
		return 0
	}
	return def.Values[level]
}

// SoldierCostSchedule prices soldier recruitment by the number of soldiers
// the player has already bought this turn; past the end the last entry holds.
var SoldierCostSchedule = []int{8, 11, 15, 20, 26, 33, 41, 50}

// SoldierCost returns the price of the next soldier given how many have been
// bought this turn.
func SoldierCost(boughtThisTurn int) int {
	if boughtThisTurn < 0 {
		boughtThisTurn = 0
	}
	if boughtThisTurn >= len(SoldierCostSchedule) {
		return SoldierCostSchedule[len(SoldierCostSchedule)-1]
	}
	return SoldierCostSchedule[boughtThisTurn]
}

// Per-turn and setup constants.
const (
	BaseMovesPerTurn = 3
	InitialSoldiers  = 3
	InitialFaith     = 12
)

// movesForSlot computes the move budget a slot receives at turn start:
// the base budget plus one per AIR temple level value the slot owns.
func movesForSlot(gs *GameState, slot int) int {
	moves := BaseMovesPerTurn
	for _, t := range gs.TemplesOf(slot) {
		if t.Upgrade == UpgradeAir {
			moves += UpgradeValue(UpgradeAir, t.Level)
		}
	}
	return moves
}
