package conquest

// GameStatus represents the overall game status.
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"
)

// Region is a node in the map graph. Immutable after map creation.
type Region struct {
	Index     int     `json:"index"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Neighbors []int   `json:"neighbors"`
}

// Soldier is a single army unit with a stable id. Animation flags live in
// client-side overlays, never here.
type Soldier struct {
	ID int `json:"i"`
}

// Temple sits on a region and holds at most one elemental upgrade.
// Upgrade is UpgradeNone while the slot is empty; Level indexes into the
// upgrade's value table once one is bought.
type Temple struct {
	Region  int     `json:"region"`
	Upgrade Upgrade `json:"upgrade"`
	Level   int     `json:"level"`
}

// Player occupies a slot in a game. Slot indices are the canonical player
// identity everywhere; array position is presentation only.
type Player struct {
	Slot        int    `json:"slot"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	IsAI        bool   `json:"is_ai"`
	Personality string `json:"personality,omitempty"`
}

// GameState is a complete authoritative snapshot of a game. It is mutated
// only through Apply; every other consumer works on clones.
//
// All integer-keyed maps serialize with stringified keys, which is what
// encoding/json does natively.
type GameState struct {
	TurnNumber        int `json:"turn_number"`
	MaxTurns          int `json:"max_turns"` // 0 = unlimited
	CurrentPlayerSlot int `json:"current_player_slot"`
	MovesRemaining    int `json:"moves_remaining"`

	Players []Player `json:"players"`
	Regions []Region `json:"regions"`

	OwnersByRegion   map[int]int       `json:"owners_by_region"`
	SoldiersByRegion map[int][]Soldier `json:"soldiers_by_region"`
	TemplesByRegion  map[int]Temple    `json:"temples_by_region"`
	FaithByPlayer    map[int]int       `json:"faith_by_player"`

	// ConqueredRegions holds regions taken by the current player this turn;
	// their garrisons cannot move again until next turn.
	ConqueredRegions  map[int]bool `json:"conquered_regions,omitempty"`
	EliminatedPlayers map[int]bool `json:"eliminated_players,omitempty"`

	// SoldierBuildsThisTurn indexes into the soldier cost schedule and
	// resets at end of turn.
	SoldierBuildsThisTurn int `json:"soldier_builds_this_turn"`

	// NextSoldierID is the id the next recruited soldier receives.
	NextSoldierID int `json:"next_soldier_id"`

	RngSeed string `json:"rng_seed"`
	Rng     Rng    `json:"rng"`
}

// NewGameState builds the starting state for a game. Every player gets a
// home region with a temple and an initial garrison; remaining regions stay
// neutral. The caller supplies the map and the ordered player list.
func NewGameState(regions []Region, players []Player, homeRegions []int, maxTurns int, seed string) *GameState {
	gs := &GameState{
		MaxTurns:         maxTurns,
		Players:          players,
		Regions:          regions,
		OwnersByRegion:   make(map[int]int),
		SoldiersByRegion: make(map[int][]Soldier),
		TemplesByRegion:  make(map[int]Temple),
		FaithByPlayer:    make(map[int]int),
		RngSeed:          seed,
		Rng:              NewRng(seed),
	}
	for i, p := range players {
		if i >= len(homeRegions) {
			break
		}
		home := homeRegions[i]
		gs.OwnersByRegion[home] = p.Slot
		gs.TemplesByRegion[home] = Temple{Region: home, Upgrade: UpgradeNone}
		for range InitialSoldiers {
			gs.addSoldier(home)
		}
		gs.FaithByPlayer[p.Slot] = InitialFaith
	}
	gs.MovesRemaining = movesForSlot(gs, gs.CurrentPlayerSlot)
	return gs
}

// addSoldier appends a new soldier at the end of the region's sequence.
func (gs *GameState) addSoldier(region int) Soldier {
	s := Soldier{ID: gs.NextSoldierID}
	gs.NextSoldierID++
	gs.SoldiersByRegion[region] = append(gs.SoldiersByRegion[region], s)
	return s
}

// RegionByIndex returns the region with the given index, or nil.
func (gs *GameState) RegionByIndex(idx int) *Region {
	for i := range gs.Regions {
		if gs.Regions[i].Index == idx {
			return &gs.Regions[i]
		}
	}
	return nil
}

// PlayerBySlot returns the player occupying the slot, or nil.
func (gs *GameState) PlayerBySlot(slot int) *Player {
	for i := range gs.Players {
		if gs.Players[i].Slot == slot {
			return &gs.Players[i]
		}
	}
	return nil
}

// Owner returns the owning slot of a region. ok is false for neutral regions.
func (gs *GameState) Owner(region int) (int, bool) {
	slot, ok := gs.OwnersByRegion[region]
	return slot, ok
}

// OwnedBy reports whether the region is owned by the given slot.
func (gs *GameState) OwnedBy(region, slot int) bool {
	owner, ok := gs.OwnersByRegion[region]
	return ok && owner == slot
}

// SoldiersAt returns the soldier sequence stationed at a region.
func (gs *GameState) SoldiersAt(region int) []Soldier {
	return gs.SoldiersByRegion[region]
}

// SoldierCountAt returns the garrison size of a region.
func (gs *GameState) SoldierCountAt(region int) int {
	return len(gs.SoldiersByRegion[region])
}

// RegionCount returns the number of regions owned by the slot.
func (gs *GameState) RegionCount(slot int) int {
	count := 0
	for i := range gs.Regions {
		if gs.OwnedBy(gs.Regions[i].Index, slot) {
			count++
		}
	}
	return count
}

// SoldierCount returns the total soldiers owned by the slot across all regions.
func (gs *GameState) SoldierCount(slot int) int {
	count := 0
	for i := range gs.Regions {
		idx := gs.Regions[i].Index
		if gs.OwnedBy(idx, slot) {
			count += len(gs.SoldiersByRegion[idx])
		}
	}
	return count
}

// TemplesOf returns the temples on regions owned by the slot, in region order.
func (gs *GameState) TemplesOf(slot int) []Temple {
	var temples []Temple
	for i := range gs.Regions {
		idx := gs.Regions[i].Index
		if !gs.OwnedBy(idx, slot) {
			continue
		}
		if t, ok := gs.TemplesByRegion[idx]; ok {
			temples = append(temples, t)
		}
	}
	return temples
}

// IsNeighbor reports whether two regions share an edge.
func (gs *GameState) IsNeighbor(a, b int) bool {
	r := gs.RegionByIndex(a)
	if r == nil {
		return false
	}
	for _, n := range r.Neighbors {
		if n == b {
			return true
		}
	}
	return false
}

// PlayerIsAlive reports whether the slot still owns at least one region and
// has not been eliminated.
func (gs *GameState) PlayerIsAlive(slot int) bool {
	if gs.EliminatedPlayers[slot] {
		return false
	}
	return gs.RegionCount(slot) > 0
}

// ActivePlayer returns the player whose turn it is.
func (gs *GameState) ActivePlayer() *Player {
	return gs.PlayerBySlot(gs.CurrentPlayerSlot)
}

// UpgradeLevelAt returns the effect value of the given upgrade at a region's
// temple, or 0 when the region has no temple or a different upgrade.
func (gs *GameState) UpgradeLevelAt(region int, u Upgrade) int {
	t, ok := gs.TemplesByRegion[region]
	if !ok || t.Upgrade != u {
		return 0
	}
	return UpgradeValue(u, t.Level)
}

// Clone returns a deep copy of the GameState. Mutations to the clone do not
// affect the original, which is what the AI search and the command processor
// rely on.
func (gs *GameState) Clone() *GameState {
	c := &GameState{
		TurnNumber:            gs.TurnNumber,
		MaxTurns:              gs.MaxTurns,
		CurrentPlayerSlot:     gs.CurrentPlayerSlot,
		MovesRemaining:        gs.MovesRemaining,
		Players:               gs.Players,
		Regions:               gs.Regions,
		SoldierBuildsThisTurn: gs.SoldierBuildsThisTurn,
		NextSoldierID:         gs.NextSoldierID,
		RngSeed:               gs.RngSeed,
		Rng:                   gs.Rng,
	}
	c.OwnersByRegion = make(map[int]int, len(gs.OwnersByRegion))
	for k, v := range gs.OwnersByRegion {
		c.OwnersByRegion[k] = v
	}
	c.SoldiersByRegion = make(map[int][]Soldier, len(gs.SoldiersByRegion))
	for k, v := range gs.SoldiersByRegion {
		if len(v) == 0 {
			continue
		}
		s := make([]Soldier, len(v))
		copy(s, v)
		c.SoldiersByRegion[k] = s
	}
	c.TemplesByRegion = make(map[int]Temple, len(gs.TemplesByRegion))
	for k, v := range gs.TemplesByRegion {
		c.TemplesByRegion[k] = v
	}
	c.FaithByPlayer = make(map[int]int, len(gs.FaithByPlayer))
	for k, v := range gs.FaithByPlayer {
		c.FaithByPlayer[k] = v
	}
	if gs.ConqueredRegions != nil {
		c.ConqueredRegions = make(map[int]bool, len(gs.ConqueredRegions))
		for k, v := range gs.ConqueredRegions {
			c.ConqueredRegions[k] = v
		}
	}
	if gs.EliminatedPlayers != nil {
		c.EliminatedPlayers = make(map[int]bool, len(gs.EliminatedPlayers))
		for k, v := range gs.EliminatedPlayers {
			c.EliminatedPlayers[k] = v
		}
	}
	return c
}
