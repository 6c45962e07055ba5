package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for Redis game state.
func stateKey(gameID string) string { return "game:" + gameID + ":state" }
func timerKey(gameID string) string { return "game:" + gameID + ":timer" }
func movesKey(gameID string, slot int) string {
	return "game:" + gameID + ":moves:" + strconv.Itoa(slot)
}

// SetGameState stores the live game state JSON.
func (c *Client) SetGameState(ctx context.Context, gameID string, state json.RawMessage) error {
	return c.rdb.Set(ctx, stateKey(gameID), []byte(state), 0).Err()
}

// GetGameState retrieves the live game state JSON.
func (c *Client) GetGameState(ctx context.Context, gameID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, stateKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game state: %w", err)
	}
	return json.RawMessage(data), nil
}

// SetQueuedMoves stores a slot's planned moves for the current turn. The
// queue is presentation state: it is validated only when the turn ends.
func (c *Client) SetQueuedMoves(ctx context.Context, gameID string, slot int, moves json.RawMessage) error {
	return c.rdb.Set(ctx, movesKey(gameID, slot), []byte(moves), 0).Err()
}

// GetQueuedMoves retrieves a slot's planned moves, nil when none are queued.
func (c *Client) GetQueuedMoves(ctx context.Context, gameID string, slot int) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, movesKey(gameID, slot)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queued moves: %w", err)
	}
	return json.RawMessage(data), nil
}

// ClearQueuedMoves drops a slot's planned moves.
func (c *Client) ClearQueuedMoves(ctx context.Context, gameID string, slot int) error {
	return c.rdb.Del(ctx, movesKey(gameID, slot)).Err()
}

// turnGracePeriod is the extra time after the displayed deadline before the
// turn auto-ends, giving players a few seconds of leeway.
const turnGracePeriod = 5 * time.Second

// SetTimer creates a timer key with a TTL. When the key expires, Redis
// keyspace notifications trigger the auto end-of-turn. The TTL includes a
// grace period so the key expires slightly after the displayed deadline.
func (c *Client) SetTimer(ctx context.Context, gameID string, deadline time.Time) error {
	ttl := time.Until(deadline) + turnGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, timerKey(gameID), deadline.Unix(), ttl).Err()
}

// ClearTimer removes the timer for a game.
func (c *Client) ClearTimer(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, timerKey(gameID)).Err()
}

// DeleteGameData removes all Redis data for a game (on game end).
func (c *Client) DeleteGameData(ctx context.Context, gameID string, slots []int) error {
	keys := []string{stateKey(gameID), timerKey(gameID)}
	for _, slot := range slots {
		keys = append(keys, movesKey(gameID, slot))
	}
	return c.rdb.Del(ctx, keys...).Err()
}
