package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/freeeve/divine-conquest/api/internal/model"
)

// TurnRepo handles turn and command database operations.
type TurnRepo struct {
	db *sql.DB
}

// NewTurnRepo creates a TurnRepo.
func NewTurnRepo(db *sql.DB) *TurnRepo {
	return &TurnRepo{db: db}
}

// CreateTurn inserts a new unresolved turn.
func (r *TurnRepo) CreateTurn(ctx context.Context, gameID string, turnNumber, slot int, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error) {
	var t model.Turn
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO turns (game_id, turn_number, slot, state_before, deadline)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, game_id, turn_number, slot, state_before, deadline, created_at`,
		gameID, turnNumber, slot, stateBefore, deadline,
	).Scan(&t.ID, &t.GameID, &t.TurnNumber, &t.Slot, &t.StateBefore, &t.Deadline, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create turn: %w", err)
	}
	return &t, nil
}

// CurrentTurn returns the latest unresolved turn for a game, or nil.
func (r *TurnRepo) CurrentTurn(ctx context.Context, gameID string) (*model.Turn, error) {
	var t model.Turn
	var stateAfter sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, game_id, turn_number, slot, state_before, state_after, deadline, resolved_at, created_at
		 FROM turns WHERE game_id = $1 AND resolved_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`, gameID,
	).Scan(&t.ID, &t.GameID, &t.TurnNumber, &t.Slot, &t.StateBefore, &stateAfter, &t.Deadline, &t.ResolvedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current turn: %w", err)
	}
	if stateAfter.Valid {
		t.StateAfter = json.RawMessage(stateAfter.String)
	}
	return &t, nil
}

// ListTurns returns all turns for a game in play order.
func (r *TurnRepo) ListTurns(ctx context.Context, gameID string) ([]model.Turn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, turn_number, slot, state_before, state_after, deadline, resolved_at, created_at
		 FROM turns WHERE game_id = $1
		 ORDER BY turn_number, created_at`, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var stateAfter sql.NullString
		if err := rows.Scan(&t.ID, &t.GameID, &t.TurnNumber, &t.Slot, &t.StateBefore, &stateAfter, &t.Deadline, &t.ResolvedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if stateAfter.Valid {
			t.StateAfter = json.RawMessage(stateAfter.String)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ResolveTurn marks a turn as resolved and stores the resulting state.
func (r *TurnRepo) ResolveTurn(ctx context.Context, turnID string, stateAfter json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE turns SET state_after = $1, resolved_at = now() WHERE id = $2`,
		stateAfter, turnID,
	)
	if err != nil {
		return fmt.Errorf("resolve turn: %w", err)
	}
	return nil
}

// SaveCommands inserts a batch of accepted commands for a turn.
func (r *TurnRepo) SaveCommands(ctx context.Context, commands []model.CommandRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO commands (turn_id, slot, seq, payload) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare insert command: %w", err)
	}
	defer stmt.Close()

	for _, c := range commands {
		if _, err := stmt.ExecContext(ctx, c.TurnID, c.Slot, c.Seq, c.Payload); err != nil {
			return fmt.Errorf("insert command: %w", err)
		}
	}
	return tx.Commit()
}

// CommandsByTurn returns a turn's accepted commands in submission order.
func (r *TurnRepo) CommandsByTurn(ctx context.Context, turnID string) ([]model.CommandRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, turn_id, slot, seq, payload, created_at
		 FROM commands WHERE turn_id = $1 ORDER BY seq`, turnID,
	)
	if err != nil {
		return nil, fmt.Errorf("commands by turn: %w", err)
	}
	defer rows.Close()

	var commands []model.CommandRecord
	for rows.Next() {
		var c model.CommandRecord
		if err := rows.Scan(&c.ID, &c.TurnID, &c.Slot, &c.Seq, &c.Payload, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		commands = append(commands, c)
	}
	return commands, rows.Err()
}

// ListExpired returns the latest unresolved turn per game where the deadline
// has passed. Uses DISTINCT ON to avoid returning orphaned old turns.
func (r *TurnRepo) ListExpired(ctx context.Context) ([]model.Turn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ON (t.game_id) t.id, t.game_id, t.turn_number, t.slot, t.state_before, t.deadline, t.created_at
		 FROM turns t
		 JOIN games g ON g.id = t.game_id
		 WHERE t.resolved_at IS NULL AND t.deadline < now() AND g.status = 'active'
		 ORDER BY t.game_id, t.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list expired turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.ID, &t.GameID, &t.TurnNumber, &t.Slot, &t.StateBefore, &t.Deadline, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expired turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
