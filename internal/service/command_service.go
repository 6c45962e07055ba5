package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/freeeve/divine-conquest/api/internal/model"
	"github.com/freeeve/divine-conquest/api/internal/repository"
	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

var (
	ErrNoActiveTurn   = errors.New("no active turn")
	ErrInvalidCommand = errors.New("invalid command")
)

// CommandService handles move queueing and validation. Queued moves are
// presentation state in Redis; the authoritative apply happens in
// TurnService when the turn ends.
type CommandService struct {
	gameRepo repository.GameRepository
	turnRepo repository.TurnRepository
	cache    repository.GameCache
}

// NewCommandService creates a CommandService.
func NewCommandService(gameRepo repository.GameRepository, turnRepo repository.TurnRepository, cache repository.GameCache) *CommandService {
	return &CommandService{gameRepo: gameRepo, turnRepo: turnRepo, cache: cache}
}

// GameRepo returns the game repository for use by handlers.
func (s *CommandService) GameRepo() repository.GameRepository {
	return s.gameRepo
}

// playerSlot finds the seat slot a user occupies in a started game.
func playerSlot(game *model.Game, userID string) (int, bool) {
	for _, p := range game.Players {
		if p.UserID == userID && p.Slot >= 0 {
			return p.Slot, true
		}
	}
	return -1, false
}

// loadLiveState loads a game's state from Redis, falling back to the current
// turn's state_before in Postgres after a cache loss.
func loadLiveState(ctx context.Context, cache repository.GameCache, turnRepo repository.TurnRepository, gameID string) (*conquest.GameState, error) {
	stateJSON, err := cache.GetGameState(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("get cached state: %w", err)
	}
	if stateJSON == nil {
		turn, err := turnRepo.CurrentTurn(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if turn == nil {
			return nil, ErrNoActiveTurn
		}
		stateJSON = turn.StateBefore
	}

	var gs conquest.GameState
	if err := json.Unmarshal(stateJSON, &gs); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &gs, nil
}

// QueueMoves validates a player's planned moves for the current turn and
// stores them. The whole batch is checked against the live state exactly the
// way the end-of-turn envelope will be: a single bad move rejects all of
// them, so the queue can never hold a plan the resolution would refuse.
func (s *CommandService) QueueMoves(ctx context.Context, gameID, userID string, moves []conquest.Command) ([]conquest.Command, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != "active" {
		return nil, ErrGameNotActive
	}
	slot, ok := playerSlot(game, userID)
	if !ok {
		return nil, ErrNotInGame
	}

	gs, err := loadLiveState(ctx, s.cache, s.turnRepo, gameID)
	if err != nil {
		return nil, err
	}

	// The player field on every queued move is server-assigned, never
	// trusted from the client.
	for i := range moves {
		moves[i].Player = slot
	}

	envelope := conquest.Command{Type: conquest.CmdEndTurn, Player: slot, Moves: moves}
	if err := conquest.Validate(gs, envelope); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, err)
	}

	movesJSON, err := json.Marshal(moves)
	if err != nil {
		return nil, fmt.Errorf("marshal moves: %w", err)
	}
	if err := s.cache.SetQueuedMoves(ctx, gameID, slot, movesJSON); err != nil {
		return nil, fmt.Errorf("cache moves: %w", err)
	}
	return moves, nil
}

// QueuedMoves returns a player's stored plan for the current turn.
func (s *CommandService) QueuedMoves(ctx context.Context, gameID, userID string) ([]conquest.Command, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	slot, ok := playerSlot(game, userID)
	if !ok {
		return nil, ErrNotInGame
	}

	raw, err := s.cache.GetQueuedMoves(ctx, gameID, slot)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var moves []conquest.Command
	if err := json.Unmarshal(raw, &moves); err != nil {
		return nil, fmt.Errorf("unmarshal queued moves: %w", err)
	}
	return moves, nil
}

// LiveState returns the current authoritative state for a game.
func (s *CommandService) LiveState(ctx context.Context, gameID string) (*conquest.GameState, error) {
	return loadLiveState(ctx, s.cache, s.turnRepo, gameID)
}

// Turns returns the resolved turn history for a game.
func (s *CommandService) Turns(ctx context.Context, gameID string) ([]model.Turn, error) {
	return s.turnRepo.ListTurns(ctx, gameID)
}

// Commands returns the accepted command log of one turn.
func (s *CommandService) Commands(ctx context.Context, turnID string) ([]model.CommandRecord, error) {
	return s.turnRepo.CommandsByTurn(ctx, turnID)
}
