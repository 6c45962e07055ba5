package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/divine-conquest/api/internal/model"
)

// GameRepo handles game and game_player database operations.
type GameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a GameRepo.
func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

const gameColumns = `id, name, creator_id, status, winner_slot, map_name, max_players,
	max_turns, turn_timer_seconds, created_at, started_at, finished_at`

func scanGame(row interface{ Scan(...any) error }) (*model.Game, error) {
	var g model.Game
	var winner sql.NullInt64
	err := row.Scan(&g.ID, &g.Name, &g.CreatorID, &g.Status, &winner, &g.MapName, &g.MaxPlayers,
		&g.MaxTurns, &g.TurnTimerSeconds, &g.CreatedAt, &g.StartedAt, &g.FinishedAt)
	if err != nil {
		return nil, err
	}
	if winner.Valid {
		w := int(winner.Int64)
		g.WinnerSlot = &w
	}
	return &g, nil
}

// Create inserts a new game in waiting status.
func (r *GameRepo) Create(ctx context.Context, name, creatorID, mapName string, maxPlayers, maxTurns, turnTimerSeconds int) (*model.Game, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO games (name, creator_id, map_name, max_players, max_turns, turn_timer_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+gameColumns,
		name, creatorID, mapName, maxPlayers, maxTurns, turnTimerSeconds,
	)
	g, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	return g, nil
}

// FindByID returns a game by ID with its players, or nil when absent.
func (r *GameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}

	players, err := r.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Players = players
	return g, nil
}

func (r *GameRepo) listGames(ctx context.Context, query string, args ...any) ([]model.Game, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// ListOpen returns games in "waiting" status.
func (r *GameRepo) ListOpen(ctx context.Context) ([]model.Game, error) {
	return r.listGames(ctx,
		`SELECT `+gameColumns+` FROM games WHERE status = 'waiting' ORDER BY created_at DESC LIMIT 50`)
}

// ListByUser returns all games a user is part of (as player or creator).
func (r *GameRepo) ListByUser(ctx context.Context, userID string) ([]model.Game, error) {
	return r.listGames(ctx,
		`SELECT DISTINCT g.id, g.name, g.creator_id, g.status, g.winner_slot, g.map_name, g.max_players,
		        g.max_turns, g.turn_timer_seconds, g.created_at, g.started_at, g.finished_at
		 FROM games g LEFT JOIN game_players gp ON g.id = gp.game_id AND gp.user_id = $1
		 WHERE gp.user_id = $1 OR g.creator_id = $1
		 ORDER BY g.created_at DESC LIMIT 50`, userID)
}

// ListFinished returns finished games, most recent first.
func (r *GameRepo) ListFinished(ctx context.Context) ([]model.Game, error) {
	return r.listGames(ctx,
		`SELECT `+gameColumns+` FROM games WHERE status = 'finished' ORDER BY finished_at DESC LIMIT 100`)
}

// ListActive returns all games with status 'active', including their players.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	games, err := r.listGames(ctx,
		`SELECT `+gameColumns+` FROM games WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	for i := range games {
		players, err := r.ListPlayers(ctx, games[i].ID)
		if err != nil {
			return nil, err
		}
		games[i].Players = players
	}
	return games, nil
}

// JoinGame adds a player to a game.
func (r *GameRepo) JoinGame(ctx context.Context, gameID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_players (game_id, user_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		gameID, userID,
	)
	if err != nil {
		return fmt.Errorf("join game: %w", err)
	}
	return nil
}

// JoinGameAsBot adds a bot player with a difficulty and personality.
func (r *GameRepo) JoinGameAsBot(ctx context.Context, gameID, userID, difficulty, personality string) error {
	if difficulty == "" {
		difficulty = "Normal"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_players (game_id, user_id, is_bot, bot_difficulty, bot_personality)
		 VALUES ($1, $2, true, $3, $4)
		 ON CONFLICT DO NOTHING`,
		gameID, userID, difficulty, personality,
	)
	if err != nil {
		return fmt.Errorf("join game as bot: %w", err)
	}
	return nil
}

// ReplaceBot swaps the newest bot seat for a human player.
func (r *GameRepo) ReplaceBot(ctx context.Context, gameID, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var botUserID string
	err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM game_players
		 WHERE game_id = $1 AND is_bot = true
		 ORDER BY joined_at DESC LIMIT 1`, gameID,
	).Scan(&botUserID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("replace bot: no bot seat in game %s", gameID)
	}
	if err != nil {
		return fmt.Errorf("replace bot: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM game_players WHERE game_id = $1 AND user_id = $2`, gameID, botUserID); err != nil {
		return fmt.Errorf("remove bot seat: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO game_players (game_id, user_id) VALUES ($1, $2)`, gameID, userID); err != nil {
		return fmt.Errorf("seat player: %w", err)
	}
	return tx.Commit()
}

// ListPlayers returns all seats in a game in join order.
func (r *GameRepo) ListPlayers(ctx context.Context, gameID string) ([]model.GamePlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, user_id, slot, color, is_bot, bot_difficulty, bot_personality, joined_at
		 FROM game_players WHERE game_id = $1 ORDER BY joined_at`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.GamePlayer
	for rows.Next() {
		var p model.GamePlayer
		var color, difficulty, personality sql.NullString
		if err := rows.Scan(&p.GameID, &p.UserID, &p.Slot, &color, &p.IsBot, &difficulty, &personality, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.Color = color.String
		p.BotDifficulty = difficulty.String
		p.BotPersonality = personality.String
		players = append(players, p)
	}
	return players, rows.Err()
}

// PlayerCount returns the number of seats taken in a game.
func (r *GameRepo) PlayerCount(ctx context.Context, gameID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_players WHERE game_id = $1`, gameID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("player count: %w", err)
	}
	return count, nil
}

// AssignSlots writes each player's slot and color in one transaction and
// flips the game to active.
func (r *GameRepo) AssignSlots(ctx context.Context, gameID string, slots map[string]int, colors map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for userID, slot := range slots {
		_, err := tx.ExecContext(ctx,
			`UPDATE game_players SET slot = $1, color = $2 WHERE game_id = $3 AND user_id = $4`,
			slot, colors[userID], gameID, userID,
		)
		if err != nil {
			return fmt.Errorf("assign slot: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE games SET status = 'active', started_at = now() WHERE id = $1`, gameID,
	)
	if err != nil {
		return fmt.Errorf("update game status: %w", err)
	}

	return tx.Commit()
}

// SetStarted flips a game to active without touching seats. Used by tools
// that seed their own slots.
func (r *GameRepo) SetStarted(ctx context.Context, gameID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = 'active', started_at = now() WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("set started: %w", err)
	}
	return nil
}

// UpdateBotDifficulty changes the difficulty level of a bot seat.
func (r *GameRepo) UpdateBotDifficulty(ctx context.Context, gameID, botUserID, difficulty string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE game_players SET bot_difficulty = $1 WHERE game_id = $2 AND user_id = $3 AND is_bot = true`,
		difficulty, gameID, botUserID)
	if err != nil {
		return fmt.Errorf("update bot difficulty: %w", err)
	}
	return nil
}

// Delete removes a game and all associated data (cascades to players, turns
// and commands).
func (r *GameRepo) Delete(ctx context.Context, gameID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}

// SetFinished marks a game finished with the winning slot, -1 for a draw.
func (r *GameRepo) SetFinished(ctx context.Context, gameID string, winnerSlot int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = 'finished', winner_slot = $1, finished_at = now() WHERE id = $2`,
		winnerSlot, gameID,
	)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}
