package model

import (
	"encoding/json"
	"time"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Game represents a conquest game.
type Game struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatorID string `json:"creator_id"`
	Status    string `json:"status"` // waiting, active, finished
	// WinnerSlot is -1 for a draw and null (nil) while the game runs.
	WinnerSlot *int `json:"winner_slot,omitempty"`

	MapName    string `json:"map_name"`
	MaxPlayers int    `json:"max_players"`
	// MaxTurns of 0 plays without a turn limit.
	MaxTurns int `json:"max_turns"`
	// TurnTimerSeconds of 0 disables the per-turn clock.
	TurnTimerSeconds int `json:"turn_timer_seconds"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Players []GamePlayer `json:"players,omitempty"`
}

// GamePlayer represents a player's seat in a game.
type GamePlayer struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
	// Slot is assigned at game start; -1 while waiting.
	Slot           int       `json:"slot"`
	Color          string    `json:"color,omitempty"`
	IsBot          bool      `json:"is_bot"`
	BotDifficulty  string    `json:"bot_difficulty,omitempty"`
	BotPersonality string    `json:"bot_personality,omitempty"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Turn is the durable record of one player turn: the state it started from
// and, once the turn resolves, the state it produced.
type Turn struct {
	ID          string          `json:"id"`
	GameID      string          `json:"game_id"`
	TurnNumber  int             `json:"turn_number"`
	Slot        int             `json:"slot"`
	StateBefore json.RawMessage `json:"state_before"`
	StateAfter  json.RawMessage `json:"state_after,omitempty"`
	Deadline    time.Time       `json:"deadline"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CommandRecord is one accepted command within a turn, stored for replay
// and audit.
type CommandRecord struct {
	ID        string          `json:"id"`
	TurnID    string          `json:"turn_id"`
	Slot      int             `json:"slot"`
	Seq       int             `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
