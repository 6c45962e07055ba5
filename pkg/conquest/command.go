package conquest

import "fmt"

// CommandType tags the command union.
type CommandType string

const (
	CmdArmyMove CommandType = "ARMY_MOVE"
	CmdBuild    CommandType = "BUILD"
	CmdEndTurn  CommandType = "END_TURN"
	CmdResign   CommandType = "RESIGN"
)

// Command is the single command shape accepted by the engine. Which fields
// matter depends on Type; a tagged union keeps the validator and applier in
// one place instead of a class hierarchy.
type Command struct {
	Type   CommandType `json:"type"`
	Player int         `json:"player"`

	// ARMY_MOVE
	Source int `json:"source,omitempty"`
	Target int `json:"target,omitempty"`
	Count  int `json:"count,omitempty"`

	// BUILD
	Region  int     `json:"region,omitempty"`
	Upgrade Upgrade `json:"upgrade,omitempty"`

	// END_TURN: queued moves applied in order before the turn ends.
	Moves []Command `json:"moves,omitempty"`
}

// ErrorCode classifies validation failures for the client.
type ErrorCode string

const (
	ErrInvalidMove         ErrorCode = "INVALID_MOVE"
	ErrNotYourTurn         ErrorCode = "NOT_YOUR_TURN"
	ErrInsufficientFaith   ErrorCode = "INSUFFICIENT_FAITH"
	ErrNotAdjacent         ErrorCode = "NOT_ADJACENT"
	ErrConqueredCannotMove ErrorCode = "CONQUERED_CANNOT_MOVE"
	ErrGameEnded           ErrorCode = "GAME_ENDED"
)

// ValidationError describes why a command was rejected. The state is never
// touched when one is returned.
type ValidationError struct {
	Code    ErrorCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(code ErrorCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Result is the outcome of a successfully applied command.
type Result struct {
	State *GameState
	// AttackEvents is the combat animation plan for an army move that led
	// to battle; nil for peaceful transfers and non-move commands.
	AttackEvents []AttackEvent
	// End describes the game-over condition after this command, if reached.
	End *GameEnd
}

// Validate checks a command against the state without applying it.
func Validate(gs *GameState, cmd Command) error {
	if end := DetectEnd(gs); end != nil {
		return invalid(ErrGameEnded, "game is over")
	}
	if cmd.Type != CmdResign && cmd.Player != gs.CurrentPlayerSlot {
		return invalid(ErrNotYourTurn, "slot %d moved during slot %d's turn", cmd.Player, gs.CurrentPlayerSlot)
	}
	switch cmd.Type {
	case CmdArmyMove:
		return validateArmyMove(gs, cmd)
	case CmdBuild:
		return validateBuild(gs, cmd)
	case CmdEndTurn:
		return validateEndTurn(gs, cmd)
	case CmdResign:
		if gs.PlayerBySlot(cmd.Player) == nil {
			return invalid(ErrInvalidMove, "unknown slot %d", cmd.Player)
		}
		return nil
	default:
		return invalid(ErrInvalidMove, "unknown command type %q", cmd.Type)
	}
}

func validateArmyMove(gs *GameState, cmd Command) error {
	if !gs.OwnedBy(cmd.Source, cmd.Player) {
		return invalid(ErrInvalidMove, "source region %d is not owned by slot %d", cmd.Source, cmd.Player)
	}
	if gs.ConqueredRegions[cmd.Source] {
		return invalid(ErrConqueredCannotMove, "region %d was conquered this turn", cmd.Source)
	}
	if !gs.IsNeighbor(cmd.Source, cmd.Target) {
		return invalid(ErrNotAdjacent, "region %d is not adjacent to region %d", cmd.Target, cmd.Source)
	}
	if cmd.Count < 1 || cmd.Count > gs.SoldierCountAt(cmd.Source) {
		return invalid(ErrInvalidMove, "cannot move %d soldiers from region %d (%d stationed)",
			cmd.Count, cmd.Source, gs.SoldierCountAt(cmd.Source))
	}
	if gs.MovesRemaining < 1 {
		return invalid(ErrInvalidMove, "no moves remaining this turn")
	}
	return nil
}

func validateBuild(gs *GameState, cmd Command) error {
	if !gs.OwnedBy(cmd.Region, cmd.Player) {
		return invalid(ErrInvalidMove, "region %d is not owned by slot %d", cmd.Region, cmd.Player)
	}
	temple, ok := gs.TemplesByRegion[cmd.Region]
	if !ok {
		return invalid(ErrInvalidMove, "region %d has no temple", cmd.Region)
	}

	if cmd.Upgrade == UpgradeSoldier {
		if cost := SoldierCost(gs.SoldierBuildsThisTurn); gs.FaithByPlayer[cmd.Player] < cost {
			return invalid(ErrInsufficientFaith, "soldier costs %d faith, have %d", cost, gs.FaithByPlayer[cmd.Player])
		}
		return nil
	}

	if MaxUpgradeLevel(cmd.Upgrade) < 0 {
		return invalid(ErrInvalidMove, "unknown upgrade %d", cmd.Upgrade)
	}
	nextLevel := 0
	if temple.Upgrade != UpgradeNone {
		if temple.Upgrade != cmd.Upgrade {
			return invalid(ErrInvalidMove, "temple at region %d already holds %s", cmd.Region, temple.Upgrade)
		}
		nextLevel = temple.Level + 1
		if nextLevel > MaxUpgradeLevel(cmd.Upgrade) {
			return invalid(ErrInvalidMove, "%s is already at max level", cmd.Upgrade)
		}
	}
	cost := UpgradeCost(cmd.Upgrade, nextLevel)
	if gs.FaithByPlayer[cmd.Player] < cost {
		return invalid(ErrInsufficientFaith, "%s level %d costs %d faith, have %d",
			cmd.Upgrade, nextLevel, cost, gs.FaithByPlayer[cmd.Player])
	}
	return nil
}

// validateEndTurn checks the queued-move envelope against successive states.
// A failure anywhere rejects the whole envelope; the engine never applies a
// prefix of a batch.
func validateEndTurn(gs *GameState, cmd Command) error {
	if len(cmd.Moves) == 0 {
		return nil
	}
	scratch := gs.Clone()
	for i, mv := range cmd.Moves {
		if mv.Type == CmdEndTurn {
			return invalid(ErrInvalidMove, "queued move %d: nested END_TURN", i)
		}
		res, err := Apply(scratch, mv)
		if err != nil {
			return invalid(ErrInvalidMove, "queued move %d: %v", i, err)
		}
		scratch = res.State
	}
	return nil
}

// Apply validates a command and produces the next state. The input state is
// never mutated; Result.State is a fresh copy.
func Apply(gs *GameState, cmd Command) (*Result, error) {
	if err := Validate(gs, cmd); err != nil {
		return nil, err
	}

	next := gs.Clone()
	res := &Result{State: next}

	switch cmd.Type {
	case CmdArmyMove:
		applyArmyMove(next, cmd, res)
	case CmdBuild:
		applyBuild(next, cmd)
	case CmdEndTurn:
		for _, mv := range cmd.Moves {
			sub, err := Apply(next, mv)
			if err != nil {
				// Validate already walked the batch; a failure here means the
				// envelope itself was inconsistent.
				return nil, err
			}
			next = sub.State
			res.AttackEvents = append(res.AttackEvents, sub.AttackEvents...)
		}
		res.State = next
		endTurn(next)
	case CmdResign:
		resign(next, cmd.Player)
	}

	res.End = DetectEnd(res.State)
	return res, nil
}

func applyArmyMove(gs *GameState, cmd Command, res *Result) {
	gs.MovesRemaining--

	srcOwner := gs.OwnersByRegion[cmd.Source]
	dstOwner, dstOwned := gs.Owner(cmd.Target)

	if dstOwned && dstOwner == srcOwner {
		// Peaceful transfer: pop from the end of source, append to target.
		src := gs.SoldiersByRegion[cmd.Source]
		moving := src[len(src)-cmd.Count:]
		setSoldiers(gs, cmd.Source, src[:len(src)-cmd.Count])
		gs.SoldiersByRegion[cmd.Target] = append(gs.SoldiersByRegion[cmd.Target], moving...)
		return
	}

	ownedBefore := gs.OwnedBy(cmd.Target, srcOwner)
	res.AttackEvents = resolveCombat(gs, cmd.Source, cmd.Target, cmd.Count)
	if !ownedBefore && gs.OwnedBy(cmd.Target, srcOwner) {
		if gs.ConqueredRegions == nil {
			gs.ConqueredRegions = make(map[int]bool)
		}
		gs.ConqueredRegions[cmd.Target] = true
	}
}

func applyBuild(gs *GameState, cmd Command) {
	if cmd.Upgrade == UpgradeSoldier {
		gs.FaithByPlayer[cmd.Player] -= SoldierCost(gs.SoldierBuildsThisTurn)
		gs.SoldierBuildsThisTurn++
		gs.addSoldier(cmd.Region)
		return
	}
	temple := gs.TemplesByRegion[cmd.Region]
	nextLevel := 0
	if temple.Upgrade != UpgradeNone {
		nextLevel = temple.Level + 1
	}
	gs.FaithByPlayer[cmd.Player] -= UpgradeCost(cmd.Upgrade, nextLevel)
	temple.Upgrade = cmd.Upgrade
	temple.Level = nextLevel
	gs.TemplesByRegion[cmd.Region] = temple
}
