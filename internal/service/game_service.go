package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/freeeve/divine-conquest/api/internal/bot"
	"github.com/freeeve/divine-conquest/api/internal/model"
	"github.com/freeeve/divine-conquest/api/internal/repository"
	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrGameNotWaiting = errors.New("game is not in waiting status")
	ErrGameFull       = errors.New("game is full")
	ErrNotEnough      = errors.New("need at least 2 players to start")
	ErrNotCreator     = errors.New("only the creator can do this")
	ErrGameNotActive  = errors.New("game is not active")
	ErrAlreadyJoined  = errors.New("already joined this game")
	ErrNotInGame      = errors.New("you are not in this game")
)

// Game size and timer bounds.
const (
	MinPlayers              = 2
	MaxPlayersPerGame       = 4
	DefaultTurnTimerSeconds = 24 * 60 * 60
	MinTurnTimerSeconds     = 30
)

// slotColors indexes player colors by slot.
var slotColors = []string{"#e74c3c", "#3498db", "#2ecc71", "#f1c40f"}

// GameService handles game lifecycle operations.
type GameService struct {
	gameRepo repository.GameRepository
	turnRepo repository.TurnRepository
	userRepo repository.UserRepository
}

// NewGameService creates a GameService.
func NewGameService(gameRepo repository.GameRepository, turnRepo repository.TurnRepository, userRepo repository.UserRepository) *GameService {
	return &GameService{gameRepo: gameRepo, turnRepo: turnRepo, userRepo: userRepo}
}

// CreateGame creates a new game in "waiting" status. Empty seats are filled
// with bots immediately; humans joining later replace the newest bot.
func (s *GameService) CreateGame(ctx context.Context, name, creatorID, mapName string, maxPlayers, maxTurns, turnTimerSeconds int, botDifficulty string, botOnly bool) (*model.Game, error) {
	if maxPlayers < MinPlayers {
		maxPlayers = MinPlayers
	}
	if maxPlayers > MaxPlayersPerGame {
		maxPlayers = MaxPlayersPerGame
	}
	if maxTurns < 0 {
		maxTurns = 0
	}
	if turnTimerSeconds <= 0 {
		turnTimerSeconds = DefaultTurnTimerSeconds
	}
	if turnTimerSeconds < MinTurnTimerSeconds {
		turnTimerSeconds = MinTurnTimerSeconds
	}
	switch mapName {
	case "small", "medium", "large":
	default:
		mapName = "medium"
	}
	if botDifficulty == "" {
		botDifficulty = "Normal"
	}

	game, err := s.gameRepo.Create(ctx, name, creatorID, mapName, maxPlayers, maxTurns, turnTimerSeconds)
	if err != nil {
		return nil, err
	}

	// Creator auto-joins unless bot-only mode
	if !botOnly {
		if err := s.gameRepo.JoinGame(ctx, game.ID, creatorID); err != nil {
			return nil, err
		}
	}

	// Fill remaining seats with bots, rotating through the personalities so
	// no two bots in a small game play identically.
	botCount := maxPlayers - 1
	if botOnly {
		botCount = maxPlayers
	}
	personalities := bot.PersonalityNames()
	for i := 1; i <= botCount; i++ {
		providerID := fmt.Sprintf("bot-%d", i)
		displayName := fmt.Sprintf("Bot %d", i)
		botUser, err := s.userRepo.Upsert(ctx, "bot", providerID, displayName, "")
		if err != nil {
			return nil, fmt.Errorf("create bot user %d: %w", i, err)
		}
		personality := personalities[(i-1)%len(personalities)]
		if err := s.gameRepo.JoinGameAsBot(ctx, game.ID, botUser.ID, botDifficulty, personality); err != nil {
			return nil, fmt.Errorf("join bot %d: %w", i, err)
		}
	}

	return s.gameRepo.FindByID(ctx, game.ID)
}

// JoinGame adds a player to a waiting game, replacing a bot when all seats
// are taken.
func (s *GameService) JoinGame(ctx context.Context, gameID, userID string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "waiting" {
		return ErrGameNotWaiting
	}

	for _, p := range game.Players {
		if p.UserID == userID {
			return ErrAlreadyJoined
		}
	}

	count, err := s.gameRepo.PlayerCount(ctx, gameID)
	if err != nil {
		return err
	}

	if count >= game.MaxPlayers {
		hasBots := false
		for _, p := range game.Players {
			if p.IsBot {
				hasBots = true
				break
			}
		}
		if !hasBots {
			return ErrGameFull
		}
		return s.gameRepo.ReplaceBot(ctx, gameID, userID)
	}

	return s.gameRepo.JoinGame(ctx, gameID, userID)
}

// StartGame assigns slots and colors, builds the starting board, and creates
// the first turn. The caller is responsible for initializing the live state
// via TurnService.InitializeGame afterwards.
func (s *GameService) StartGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != "waiting" {
		return nil, ErrGameNotWaiting
	}
	if game.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if len(game.Players) < MinPlayers {
		return nil, ErrNotEnough
	}

	// Shuffle seat order, then deal slots 0..n-1 with their colors.
	order := make([]model.GamePlayer, len(game.Players))
	copy(order, game.Players)
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	slots := make(map[string]int, len(order))
	colors := make(map[string]string, len(order))
	for i, p := range order {
		slots[p.UserID] = i
		colors[p.UserID] = slotColors[i%len(slotColors)]
	}
	if err := s.gameRepo.AssignSlots(ctx, gameID, slots, colors); err != nil {
		return nil, err
	}

	players := make([]conquest.Player, len(order))
	for i, p := range order {
		name := "Player " + fmt.Sprint(i+1)
		if u, err := s.userRepo.FindByID(ctx, p.UserID); err == nil && u != nil {
			name = u.DisplayName
		}
		players[i] = conquest.Player{
			Slot:        i,
			Name:        name,
			Color:       colors[p.UserID],
			IsAI:        p.IsBot,
			Personality: p.BotPersonality,
		}
	}

	// The game id seeds both the map layout and the combat dice, so a
	// finished game can be replayed from its command log alone.
	regions := conquest.GenerateMap(conquest.MapSize(game.MapName), gameID)
	homes := conquest.HomeRegions(regions, len(players))
	state := conquest.NewGameState(regions, players, homes, game.MaxTurns, gameID)

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal initial state: %w", err)
	}

	deadline := time.Now().Add(time.Duration(game.TurnTimerSeconds) * time.Second)
	if _, err := s.turnRepo.CreateTurn(ctx, gameID, state.TurnNumber, state.CurrentPlayerSlot, stateJSON, deadline); err != nil {
		return nil, err
	}

	return s.gameRepo.FindByID(ctx, gameID)
}

// GetGame returns a game by ID.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	return game, nil
}

// UpdateBotDifficulty validates and updates a bot's difficulty level.
func (s *GameService) UpdateBotDifficulty(ctx context.Context, gameID, userID, botUserID, difficulty string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "waiting" {
		return ErrGameNotWaiting
	}
	if game.CreatorID != userID {
		return ErrNotCreator
	}
	switch difficulty {
	case "Nice", "Normal", "Hard":
	default:
		return fmt.Errorf("invalid difficulty: must be Nice, Normal, or Hard")
	}
	return s.gameRepo.UpdateBotDifficulty(ctx, gameID, botUserID, difficulty)
}

// DeleteGame removes a waiting game. Only the game creator can delete a game.
func (s *GameService) DeleteGame(ctx context.Context, gameID, userID string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "waiting" {
		return ErrGameNotWaiting
	}
	if game.CreatorID != userID {
		return ErrNotCreator
	}
	return s.gameRepo.Delete(ctx, gameID)
}

// StopGame ends an active game as a draw. Only the game creator can stop a game.
func (s *GameService) StopGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
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
	if game.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if err := s.gameRepo.SetFinished(ctx, gameID, -1); err != nil {
		return nil, err
	}
	return s.gameRepo.FindByID(ctx, gameID)
}

// ListGames returns open games or games the user is in.
func (s *GameService) ListGames(ctx context.Context, userID string, filter string) ([]model.Game, error) {
	switch filter {
	case "my":
		return s.gameRepo.ListByUser(ctx, userID)
	case "finished":
		return s.gameRepo.ListFinished(ctx)
	default:
		return s.gameRepo.ListOpen(ctx)
	}
}
