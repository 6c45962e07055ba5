package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/divine-conquest/api/internal/bot"
	"github.com/freeeve/divine-conquest/api/internal/model"
	"github.com/freeeve/divine-conquest/api/internal/repository"
	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

var ErrNotYourTurn = errors.New("not your turn")

// DefaultAIThinkTime bounds each bot move's search when no budget is
// configured.
const DefaultAIThinkTime = 2 * time.Second

// maxBotMoves caps the commands a bot may issue in one turn, against a
// policy that never chooses to stop.
const maxBotMoves = 64

// TurnService orchestrates turn transitions: end-of-turn resolution, state
// advancement, timer management, and bot turns.
type TurnService struct {
	gameRepo    repository.GameRepository
	turnRepo    repository.TurnRepository
	cache       repository.GameCache
	broadcaster Broadcaster
	aiThinkTime time.Duration

	// gameLocks prevents concurrent resolution for the same game. The
	// keyspace listener, the poller, a player's explicit end-turn, and a
	// bot goroutine can all fire at once; without locking they would
	// resolve the same turn twice.
	gameLocks sync.Map
}

// NewTurnService creates a TurnService.
func NewTurnService(
	gameRepo repository.GameRepository,
	turnRepo repository.TurnRepository,
	cache repository.GameCache,
	broadcaster Broadcaster,
) *TurnService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &TurnService{
		gameRepo:    gameRepo,
		turnRepo:    turnRepo,
		cache:       cache,
		broadcaster: broadcaster,
		aiThinkTime: DefaultAIThinkTime,
	}
}

// SetAIThinkTime overrides the per-move search budget for bot turns.
func (s *TurnService) SetAIThinkTime(d time.Duration) {
	if d > 0 {
		s.aiThinkTime = d
	}
}

// gameLock returns the mutex for a given game ID.
func (s *TurnService) gameLock(gameID string) *sync.Mutex {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// InitializeGame sets up Redis state and the timer when a game starts.
// Called after StartGame creates the first turn.
func (s *TurnService) InitializeGame(ctx context.Context, gameID string) error {
	turn, err := s.turnRepo.CurrentTurn(ctx, gameID)
	if err != nil {
		return err
	}
	if turn == nil {
		return ErrNoActiveTurn
	}
	if err := s.cache.SetGameState(ctx, gameID, turn.StateBefore); err != nil {
		return fmt.Errorf("set game state: %w", err)
	}
	if err := s.cache.SetTimer(ctx, gameID, turn.Deadline); err != nil {
		return fmt.Errorf("set timer: %w", err)
	}

	s.broadcaster.BroadcastGameEvent(gameID, "game_started", map[string]any{
		"turn_number": turn.TurnNumber,
		"slot":        turn.Slot,
		"deadline":    turn.Deadline.Format(time.RFC3339),
	})

	var gs conquest.GameState
	if err := json.Unmarshal(turn.StateBefore, &gs); err != nil {
		return fmt.Errorf("unmarshal initial state: %w", err)
	}
	s.kickBotIfActive(&gs, gameID, turn.Deadline)
	return nil
}

// RecoverActiveGames rehydrates Redis state for all active games from
// Postgres. Called on server startup to restore timers and game state lost
// during a restart.
func (s *TurnService) RecoverActiveGames(ctx context.Context) error {
	games, err := s.gameRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active games: %w", err)
	}
	if len(games) == 0 {
		log.Info().Msg("No active games to recover")
		return nil
	}

	log.Info().Int("count", len(games)).Msg("Recovering active games after restart")

	for _, game := range games {
		turn, err := s.turnRepo.CurrentTurn(ctx, game.ID)
		if err != nil {
			log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to get current turn during recovery")
			continue
		}
		if turn == nil {
			log.Warn().Str("gameId", game.ID).Msg("Active game has no current turn, skipping")
			continue
		}

		if err := s.cache.SetGameState(ctx, game.ID, turn.StateBefore); err != nil {
			log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to restore game state")
			continue
		}
		if time.Now().Before(turn.Deadline) {
			if err := s.cache.SetTimer(ctx, game.ID, turn.Deadline); err != nil {
				log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to restore timer")
			}
		}

		var gs conquest.GameState
		if err := json.Unmarshal(turn.StateBefore, &gs); err != nil {
			log.Error().Err(err).Str("gameId", game.ID).Msg("Failed to unmarshal state for recovery")
			continue
		}
		s.kickBotIfActive(&gs, game.ID, turn.Deadline)

		log.Info().Str("gameId", game.ID).Int("turnNumber", turn.TurnNumber).
			Int("slot", turn.Slot).Time("deadline", turn.Deadline).
			Msg("Recovered game state")
	}

	return nil
}

// EndTurn resolves the caller's own turn before the deadline.
func (s *TurnService) EndTurn(ctx context.Context, gameID, userID string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "active" {
		return ErrGameNotActive
	}
	slot, ok := playerSlot(game, userID)
	if !ok {
		return ErrNotInGame
	}

	gs, err := s.liveState(ctx, gameID)
	if err != nil {
		return err
	}
	if gs.CurrentPlayerSlot != slot {
		return ErrNotYourTurn
	}
	return s.resolveTurnInternal(ctx, gameID, true)
}

// ResolveTurn resolves a game's current turn after the deadline. Called by
// the timer listener and the deadline poller.
func (s *TurnService) ResolveTurn(ctx context.Context, gameID string) error {
	return s.resolveTurnInternal(ctx, gameID, false)
}

// resolveTurnInternal applies the active slot's queued moves as a single
// end-of-turn envelope against the authoritative state, persists the
// outcome, and advances to the next turn.
func (s *TurnService) resolveTurnInternal(ctx context.Context, gameID string, early bool) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil || game == nil {
		return fmt.Errorf("find game: %w", err)
	}
	if game.Status != "active" {
		log.Info().Str("gameId", gameID).Str("status", game.Status).Msg("Skipping resolution for non-active game")
		return nil
	}

	turn, err := s.turnRepo.CurrentTurn(ctx, gameID)
	if err != nil || turn == nil {
		return fmt.Errorf("get current turn: %w", err)
	}

	// Guard against resolving a turn whose deadline hasn't passed yet
	// (unless the player asked for it).
	if !early && time.Now().Before(turn.Deadline) {
		log.Debug().Str("gameId", gameID).Time("deadline", turn.Deadline).Msg("Turn deadline not yet reached, skipping")
		return nil
	}

	gs, err := s.liveState(ctx, gameID)
	if err != nil {
		return err
	}
	slot := gs.CurrentPlayerSlot

	log.Info().Str("gameId", gameID).Str("turnId", turn.ID).
		Bool("early", early).Int("turnNumber", turn.TurnNumber).Int("slot", slot).
		Msg("Resolving turn")

	envelope := conquest.Command{
		Type:   conquest.CmdEndTurn,
		Player: slot,
		Moves:  s.collectQueuedMoves(ctx, gameID, slot),
	}

	res, err := conquest.Apply(gs, envelope)
	if err != nil {
		// A stale queue (e.g. written against a state the resign of another
		// player has since changed) must not stall the game. Drop the plan
		// and end the turn bare.
		log.Warn().Err(err).Str("gameId", gameID).Int("slot", slot).
			Msg("Queued moves rejected at resolution, ending turn without them")
		envelope.Moves = nil
		res, err = conquest.Apply(gs, envelope)
	}
	if err != nil {
		var vErr *conquest.ValidationError
		if errors.As(err, &vErr) && vErr.Code == conquest.ErrGameEnded {
			// The state is already terminal but the game row never flipped,
			// likely a crash mid-finish. Finish it now.
			return s.finishGame(ctx, game, conquest.DetectEnd(gs))
		}
		return fmt.Errorf("apply end turn: %w", err)
	}

	if err := s.saveEnvelope(ctx, turn, slot, envelope); err != nil {
		return err
	}
	if err := s.cache.ClearQueuedMoves(ctx, gameID, slot); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Int("slot", slot).Msg("Failed to clear queued moves")
	}

	return s.advanceToNextTurn(ctx, game, turn, envelope, res)
}

// Resign removes a player from a game. Resigning during one's own turn also
// passes play; resigning out of turn only updates the board.
func (s *TurnService) Resign(ctx context.Context, gameID, userID string) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil || game == nil {
		return fmt.Errorf("find game: %w", err)
	}
	if game.Status != "active" {
		return ErrGameNotActive
	}
	slot, ok := playerSlot(game, userID)
	if !ok {
		return ErrNotInGame
	}

	turn, err := s.turnRepo.CurrentTurn(ctx, gameID)
	if err != nil || turn == nil {
		return fmt.Errorf("get current turn: %w", err)
	}
	gs, err := s.liveState(ctx, gameID)
	if err != nil {
		return err
	}

	cmd := conquest.Command{Type: conquest.CmdResign, Player: slot}
	res, err := conquest.Apply(gs, cmd)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCommand, err)
	}

	log.Info().Str("gameId", gameID).Int("slot", slot).Msg("Player resigned")
	if err := s.saveEnvelope(ctx, turn, slot, cmd); err != nil {
		return err
	}
	if err := s.cache.ClearQueuedMoves(ctx, gameID, slot); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Int("slot", slot).Msg("Failed to clear queued moves")
	}

	// A resign by the active player passes play, which closes the turn.
	if res.End != nil || res.State.CurrentPlayerSlot != gs.CurrentPlayerSlot {
		return s.advanceToNextTurn(ctx, game, turn, cmd, res)
	}

	stateJSON, err := json.Marshal(res.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.cache.SetGameState(ctx, gameID, stateJSON); err != nil {
		return fmt.Errorf("set game state: %w", err)
	}
	s.broadcaster.BroadcastGameEvent(gameID, "player_resigned", map[string]any{
		"slot":  slot,
		"state": res.State,
	})
	return nil
}

// advanceToNextTurn stores the resolved turn, checks for game over, creates
// the next turn with a fresh timer, and broadcasts the transition. The
// envelope and its attack events ride along on the broadcast so clients can
// replay the resolution locally.
func (s *TurnService) advanceToNextTurn(
	ctx context.Context,
	game *model.Game,
	turn *model.Turn,
	envelope conquest.Command,
	res *conquest.Result,
) error {
	stateAfterJSON, err := json.Marshal(res.State)
	if err != nil {
		return fmt.Errorf("marshal state after: %w", err)
	}
	if err := s.turnRepo.ResolveTurn(ctx, turn.ID, stateAfterJSON); err != nil {
		return fmt.Errorf("resolve turn: %w", err)
	}

	var lastMove *conquest.Command
	if n := len(envelope.Moves); n > 0 {
		lastMove = &envelope.Moves[n-1]
	}
	s.broadcaster.BroadcastGameEvent(game.ID, "turn_resolved", map[string]any{
		"turn_id":       turn.ID,
		"turn_number":   turn.TurnNumber,
		"actorSlot":     envelope.Player,
		"turnMoves":     envelope.Moves,
		"lastMove":      lastMove,
		"attack_events": res.AttackEvents,
		"state":         res.State,
	})

	if res.End != nil {
		return s.finishGame(ctx, game, res.End)
	}

	deadline := time.Now().Add(time.Duration(game.TurnTimerSeconds) * time.Second)
	newTurn, err := s.turnRepo.CreateTurn(ctx, game.ID, res.State.TurnNumber, res.State.CurrentPlayerSlot, stateAfterJSON, deadline)
	if err != nil {
		return fmt.Errorf("create next turn: %w", err)
	}
	if err := s.cache.SetGameState(ctx, game.ID, stateAfterJSON); err != nil {
		return fmt.Errorf("set new state: %w", err)
	}
	if err := s.cache.SetTimer(ctx, game.ID, deadline); err != nil {
		return fmt.Errorf("set timer: %w", err)
	}

	log.Info().Str("gameId", game.ID).Int("turnNumber", newTurn.TurnNumber).
		Int("slot", newTurn.Slot).Time("deadline", deadline).
		Msg("Game advanced to next turn")

	s.broadcaster.BroadcastGameEvent(game.ID, "turn_changed", map[string]any{
		"turn_number": newTurn.TurnNumber,
		"slot":        newTurn.Slot,
		"deadline":    deadline.Format(time.RFC3339),
	})

	s.kickBotIfActive(res.State, game.ID, deadline)
	return nil
}

// finishGame flips the game row, announces the result, and drops the live
// Redis data.
func (s *TurnService) finishGame(ctx context.Context, game *model.Game, end *conquest.GameEnd) error {
	if end == nil {
		return fmt.Errorf("finish game %s: no end condition", game.ID)
	}
	log.Info().Str("gameId", game.ID).Int("winner", end.Winner).
		Str("reason", string(end.Reason)).Msg("Game over")

	if err := s.gameRepo.SetFinished(ctx, game.ID, end.Winner); err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	s.broadcaster.BroadcastGameEvent(game.ID, "game_ended", map[string]any{
		"winner": end.Winner,
		"reason": string(end.Reason),
		"scores": end.Scores,
	})
	return s.cache.DeleteGameData(ctx, game.ID, slotsOf(game))
}

// CleanupStoppedGame broadcasts the game_ended event and clears cached game
// data after a creator stop.
func (s *TurnService) CleanupStoppedGame(ctx context.Context, gameID string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil || game == nil {
		return fmt.Errorf("find game: %w", err)
	}
	s.broadcaster.BroadcastGameEvent(gameID, "game_ended", map[string]any{
		"winner": -1,
		"reason": "stopped",
	})
	return s.cache.DeleteGameData(ctx, gameID, slotsOf(game))
}

// kickBotIfActive starts a background bot turn when the active slot is an
// AI. The bot gets the turn timer minus a margin, clamped so a misconfigured
// timer can neither starve nor stall it.
func (s *TurnService) kickBotIfActive(gs *conquest.GameState, gameID string, deadline time.Time) {
	active := gs.ActivePlayer()
	if active == nil || !active.IsAI {
		return
	}

	botTimeout := time.Until(deadline) - 5*time.Second
	if botTimeout > 30*time.Second {
		botTimeout = 30 * time.Second
	}
	if botTimeout < 5*time.Second {
		botTimeout = 5 * time.Second
	}
	go func() {
		botCtx, cancel := context.WithTimeout(context.Background(), botTimeout)
		defer cancel()
		if err := s.PlayBotTurn(botCtx, gameID); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("Bot turn failed")
		}
	}()
}

// PlayBotTurn plays out the active bot's whole turn: it picks commands one
// at a time against a scratch state, queues them, and resolves the turn
// early. Resolution re-applies the same envelope on the authoritative state,
// which the deterministic dice reproduce exactly.
func (s *TurnService) PlayBotTurn(ctx context.Context, gameID string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil || game == nil {
		return fmt.Errorf("find game for bot turn: %w", err)
	}
	if game.Status != "active" {
		return nil
	}

	gs, err := s.liveState(ctx, gameID)
	if err != nil {
		return err
	}
	slot := gs.CurrentPlayerSlot
	player := gs.PlayerBySlot(slot)
	if player == nil || !player.IsAI {
		return nil
	}

	var difficulty string
	for _, p := range game.Players {
		if p.Slot == slot {
			difficulty = p.BotDifficulty
			break
		}
	}
	level := bot.LevelForDifficulty(difficulty)
	personality := bot.PersonalityByName(player.Personality)

	scratch := gs.Clone()
	var moves []conquest.Command
	for len(moves) < maxBotMoves {
		if ctx.Err() != nil {
			break
		}
		cmd := bot.PickMove(ctx, scratch, slot, personality, level, s.aiThinkTime)
		if cmd.Type == conquest.CmdEndTurn {
			break
		}
		res, err := conquest.Apply(scratch, cmd)
		if err != nil {
			log.Warn().Err(err).Str("gameId", gameID).Int("slot", slot).
				Msg("Bot picked an unplayable move, ending turn")
			break
		}
		scratch = res.State
		moves = append(moves, cmd)
	}

	log.Debug().Str("gameId", gameID).Int("slot", slot).
		Str("personality", personality.Name).Int("moveCount", len(moves)).
		Msg("Bot turn planned")

	movesJSON, err := json.Marshal(moves)
	if err != nil {
		return fmt.Errorf("marshal bot moves: %w", err)
	}
	if err := s.cache.SetQueuedMoves(ctx, gameID, slot, movesJSON); err != nil {
		return fmt.Errorf("cache bot moves: %w", err)
	}

	// The resolve path owns its deadline handling; the bot's budget must not
	// cancel it halfway through persistence.
	return s.resolveTurnInternal(context.WithoutCancel(ctx), gameID, true)
}

// saveEnvelope appends one accepted command envelope to the turn's log.
func (s *TurnService) saveEnvelope(ctx context.Context, turn *model.Turn, slot int, envelope conquest.Command) error {
	existing, err := s.turnRepo.CommandsByTurn(ctx, turn.ID)
	if err != nil {
		return fmt.Errorf("load command log: %w", err)
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	record := model.CommandRecord{
		TurnID:  turn.ID,
		Slot:    slot,
		Seq:     len(existing),
		Payload: payload,
	}
	if err := s.turnRepo.SaveCommands(ctx, []model.CommandRecord{record}); err != nil {
		return fmt.Errorf("save command: %w", err)
	}
	return nil
}

// collectQueuedMoves reads the slot's stored plan; a missing or corrupt
// queue resolves the turn with no moves.
func (s *TurnService) collectQueuedMoves(ctx context.Context, gameID string, slot int) []conquest.Command {
	raw, err := s.cache.GetQueuedMoves(ctx, gameID, slot)
	if err != nil || raw == nil {
		return nil
	}
	var moves []conquest.Command
	if err := json.Unmarshal(raw, &moves); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Int("slot", slot).Msg("Invalid queued moves, resolving without them")
		return nil
	}
	return moves
}

// liveState loads the game state from Redis, falling back to Postgres.
func (s *TurnService) liveState(ctx context.Context, gameID string) (*conquest.GameState, error) {
	return loadLiveState(ctx, s.cache, s.turnRepo, gameID)
}

// slotsOf lists the assigned slots in a started game.
func slotsOf(game *model.Game) []int {
	var slots []int
	for _, p := range game.Players {
		if p.Slot >= 0 {
			slots = append(slots, p.Slot)
		}
	}
	return slots
}
