package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/divine-conquest/api/internal/model"
	"github.com/freeeve/divine-conquest/api/internal/repository"
	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

// ArenaSeat configures one bot seat in an arena game. Slot order follows
// the seat order.
type ArenaSeat struct {
	Difficulty  string
	Personality string
}

// ArenaConfig configures a single bot-vs-bot game.
type ArenaConfig struct {
	GameName  string
	Seats     []ArenaSeat
	MapName   string
	MaxTurns  int           // cap before scoring decides (0 = default 40)
	Seed      string        // "" derives one; ignored when results are persisted
	ThinkTime time.Duration // per-move search budget
	DryRun    bool          // skip DB writes
}

// ArenaResult describes the outcome of a completed arena game.
type ArenaResult struct {
	GameID     string      `json:"game_id,omitempty"`
	WinnerSlot int         `json:"winner_slot"` // -1 for a draw
	Reason     string      `json:"reason"`
	Turns      int         `json:"turns"`
	Scores     map[int]int `json:"scores"`
	Regions    map[int]int `json:"regions"`
}

// arenaColors matches the server's slot palette so persisted arena games
// render normally in the UI.
var arenaColors = []string{"#e74c3c", "#3498db", "#2ecc71", "#f1c40f"}

// maxArenaMoves caps one bot turn, against a policy that never stops.
const maxArenaMoves = 64

// RunGame plays a full game between bots, optionally persisting it through
// the usual turn log so it can be reviewed in the UI. Pass nil repos in
// dry-run mode.
func RunGame(
	ctx context.Context,
	cfg ArenaConfig,
	gameRepo repository.GameRepository,
	turnRepo repository.TurnRepository,
	userRepo repository.UserRepository,
) (*ArenaResult, error) {
	if len(cfg.Seats) < 2 || len(cfg.Seats) > len(arenaColors) {
		return nil, fmt.Errorf("arena needs 2 to %d seats, got %d", len(arenaColors), len(cfg.Seats))
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 40
	}
	switch cfg.MapName {
	case "small", "medium", "large":
	default:
		cfg.MapName = "medium"
	}
	if cfg.ThinkTime <= 0 {
		cfg.ThinkTime = 200 * time.Millisecond
	}

	seed := cfg.Seed
	if seed == "" {
		seed = fmt.Sprintf("arena-%d", time.Now().UnixNano())
	}

	var gameID string
	if !cfg.DryRun {
		var err error
		gameID, err = createArenaGame(ctx, cfg, gameRepo, userRepo)
		if err != nil {
			return nil, fmt.Errorf("create arena game: %w", err)
		}
		// The game id seeds map and dice, same as server games, so the
		// stored command log replays exactly.
		seed = gameID
	}

	players := make([]conquest.Player, len(cfg.Seats))
	for i, seat := range cfg.Seats {
		players[i] = conquest.Player{
			Slot:        i,
			Name:        fmt.Sprintf("Bot %d (%s)", i+1, seat.Difficulty),
			Color:       arenaColors[i],
			IsAI:        true,
			Personality: PersonalityByName(seat.Personality).Name,
		}
	}

	regions := conquest.GenerateMap(conquest.MapSize(cfg.MapName), seed)
	homes := conquest.HomeRegions(regions, len(players))
	gs := conquest.NewGameState(regions, players, homes, cfg.MaxTurns, seed)

	result := &ArenaResult{GameID: gameID, WinnerSlot: -1}

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.Turns++
		slot := gs.CurrentPlayerSlot
		seat := cfg.Seats[slot]

		var turn *model.Turn
		if !cfg.DryRun {
			stateBefore, err := json.Marshal(gs)
			if err != nil {
				return nil, fmt.Errorf("marshal state before: %w", err)
			}
			turn, err = turnRepo.CreateTurn(ctx, gameID, gs.TurnNumber, slot, stateBefore, time.Now().Add(time.Hour))
			if err != nil {
				return nil, fmt.Errorf("create turn: %w", err)
			}
		}

		envelope := planTurn(ctx, gs, slot, seat, cfg.ThinkTime)
		res, err := conquest.Apply(gs, envelope)
		if err != nil {
			// The plan was applied move by move while it was built, so the
			// envelope can only fail if the planner broke an invariant.
			return nil, fmt.Errorf("apply turn %d for slot %d: %w", gs.TurnNumber, slot, err)
		}
		gs = res.State

		if !cfg.DryRun {
			payload, err := json.Marshal(envelope)
			if err != nil {
				return nil, fmt.Errorf("marshal envelope: %w", err)
			}
			record := model.CommandRecord{TurnID: turn.ID, Slot: slot, Payload: payload}
			if err := turnRepo.SaveCommands(ctx, []model.CommandRecord{record}); err != nil {
				return nil, fmt.Errorf("save commands: %w", err)
			}
			stateAfter, err := json.Marshal(gs)
			if err != nil {
				return nil, fmt.Errorf("marshal state after: %w", err)
			}
			if err := turnRepo.ResolveTurn(ctx, turn.ID, stateAfter); err != nil {
				return nil, fmt.Errorf("resolve turn: %w", err)
			}
		}

		if res.End != nil {
			result.WinnerSlot = res.End.Winner
			result.Reason = string(res.End.Reason)
			result.Scores = res.End.Scores
			result.Regions = make(map[int]int, len(players))
			for _, p := range players {
				result.Regions[p.Slot] = gs.RegionCount(p.Slot)
			}
			if !cfg.DryRun {
				if err := gameRepo.SetFinished(ctx, gameID, res.End.Winner); err != nil {
					return nil, fmt.Errorf("set finished: %w", err)
				}
			}
			log.Info().Str("gameId", gameID).Int("winner", res.End.Winner).
				Int("turns", result.Turns).Str("reason", result.Reason).
				Msg("Arena game finished")
			return result, nil
		}
	}
}

// planTurn builds one slot's whole turn against a scratch state, exactly
// the way the server's bot turns are planned. Deterministic dice mean the
// returned envelope replays identically on the real state.
func planTurn(ctx context.Context, gs *conquest.GameState, slot int, seat ArenaSeat, thinkTime time.Duration) conquest.Command {
	level := LevelForDifficulty(seat.Difficulty)
	personality := PersonalityByName(seat.Personality)

	scratch := gs.Clone()
	var moves []conquest.Command
	for len(moves) < maxArenaMoves {
		if ctx.Err() != nil {
			break
		}
		cmd := PickMove(ctx, scratch, slot, personality, level, thinkTime)
		if cmd.Type == conquest.CmdEndTurn {
			break
		}
		res, err := conquest.Apply(scratch, cmd)
		if err != nil {
			log.Warn().Err(err).Int("slot", slot).Msg("Bot picked an unplayable move, ending turn")
			break
		}
		scratch = res.State
		moves = append(moves, cmd)
	}
	return conquest.Command{Type: conquest.CmdEndTurn, Player: slot, Moves: moves}
}

// createArenaGame creates the game row and its bot seats so a persisted
// arena game looks like any finished server game.
func createArenaGame(
	ctx context.Context,
	cfg ArenaConfig,
	gameRepo repository.GameRepository,
	userRepo repository.UserRepository,
) (string, error) {
	type seatInfo struct {
		userID string
		seat   ArenaSeat
	}
	seats := make([]seatInfo, len(cfg.Seats))
	for i, seat := range cfg.Seats {
		providerID := fmt.Sprintf("botmatch-%d-%s", i, seat.Difficulty)
		displayName := fmt.Sprintf("Bot %d (%s)", i+1, seat.Difficulty)
		user, err := userRepo.Upsert(ctx, "bot", providerID, displayName, "")
		if err != nil {
			return "", fmt.Errorf("upsert bot user %d: %w", i, err)
		}
		seats[i] = seatInfo{userID: user.ID, seat: seat}
	}

	gameName := cfg.GameName
	if gameName == "" {
		gameName = "botmatch"
	}
	game, err := gameRepo.Create(ctx, gameName, seats[0].userID, cfg.MapName, len(seats), cfg.MaxTurns, 3600)
	if err != nil {
		return "", fmt.Errorf("create game: %w", err)
	}

	slots := make(map[string]int, len(seats))
	colors := make(map[string]string, len(seats))
	for i, s := range seats {
		if err := gameRepo.JoinGameAsBot(ctx, game.ID, s.userID, s.seat.Difficulty, s.seat.Personality); err != nil {
			return "", fmt.Errorf("join bot %d: %w", i, err)
		}
		slots[s.userID] = i
		colors[s.userID] = arenaColors[i]
	}
	if err := gameRepo.AssignSlots(ctx, game.ID, slots, colors); err != nil {
		return "", fmt.Errorf("assign slots: %w", err)
	}
	return game.ID, nil
}
