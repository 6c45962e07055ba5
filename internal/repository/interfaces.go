package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/divine-conquest/api/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// GameRepository defines game and seat data operations.
type GameRepository interface {
	Create(ctx context.Context, name, creatorID, mapName string, maxPlayers, maxTurns, turnTimerSeconds int) (*model.Game, error)
	FindByID(ctx context.Context, id string) (*model.Game, error)
	ListOpen(ctx context.Context) ([]model.Game, error)
	ListByUser(ctx context.Context, userID string) ([]model.Game, error)
	ListActive(ctx context.Context) ([]model.Game, error)
	ListFinished(ctx context.Context) ([]model.Game, error)
	JoinGame(ctx context.Context, gameID, userID string) error
	JoinGameAsBot(ctx context.Context, gameID, userID, difficulty, personality string) error
	ReplaceBot(ctx context.Context, gameID, userID string) error
	PlayerCount(ctx context.Context, gameID string) (int, error)
	AssignSlots(ctx context.Context, gameID string, slots map[string]int, colors map[string]string) error
	SetStarted(ctx context.Context, gameID string) error
	SetFinished(ctx context.Context, gameID string, winnerSlot int) error
	Delete(ctx context.Context, gameID string) error
	UpdateBotDifficulty(ctx context.Context, gameID, botUserID, difficulty string) error
}

// TurnRepository defines the durable turn and command log.
type TurnRepository interface {
	CreateTurn(ctx context.Context, gameID string, turnNumber, slot int, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error)
	CurrentTurn(ctx context.Context, gameID string) (*model.Turn, error)
	ListTurns(ctx context.Context, gameID string) ([]model.Turn, error)
	ResolveTurn(ctx context.Context, turnID string, stateAfter json.RawMessage) error
	SaveCommands(ctx context.Context, commands []model.CommandRecord) error
	CommandsByTurn(ctx context.Context, turnID string) ([]model.CommandRecord, error)
	ListExpired(ctx context.Context) ([]model.Turn, error)
}

// GameCache defines live game state operations (Redis).
type GameCache interface {
	SetGameState(ctx context.Context, gameID string, state json.RawMessage) error
	GetGameState(ctx context.Context, gameID string) (json.RawMessage, error)
	SetQueuedMoves(ctx context.Context, gameID string, slot int, moves json.RawMessage) error
	GetQueuedMoves(ctx context.Context, gameID string, slot int) (json.RawMessage, error)
	ClearQueuedMoves(ctx context.Context, gameID string, slot int) error
	SetTimer(ctx context.Context, gameID string, deadline time.Time) error
	ClearTimer(ctx context.Context, gameID string) error
	DeleteGameData(ctx context.Context, gameID string, slots []int) error
}
