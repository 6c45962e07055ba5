package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

func newCommandService(f *turnFixture) *CommandService {
	return NewCommandService(f.gameRepo, f.turnRepo, f.cache)
}

func TestQueueMoves(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))
	svc := newCommandService(f)
	home := f.homeOf(0)

	moves := []conquest.Command{
		{Type: conquest.CmdBuild, Region: home, Upgrade: conquest.UpgradeSoldier},
	}
	stored, err := svc.QueueMoves(context.Background(), f.game.ID, "user-a", moves)
	if err != nil {
		t.Fatalf("QueueMoves: %v", err)
	}
	if stored[0].Player != 0 {
		t.Errorf("expected the player field to be server-assigned to 0, got %d", stored[0].Player)
	}

	got, err := svc.QueuedMoves(context.Background(), f.game.ID, "user-a")
	if err != nil {
		t.Fatalf("QueuedMoves: %v", err)
	}
	if len(got) != 1 || got[0].Type != conquest.CmdBuild || got[0].Region != home {
		t.Errorf("queued moves did not round-trip, got %+v", got)
	}
}

func TestQueueMovesOverridesClientPlayer(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))
	svc := newCommandService(f)

	// A client claiming to act for another slot gets its moves reassigned,
	// which then fail validation because slot 1 is not the active player.
	moves := []conquest.Command{
		{Type: conquest.CmdBuild, Player: 0, Region: f.homeOf(0), Upgrade: conquest.UpgradeSoldier},
	}
	if _, err := svc.QueueMoves(context.Background(), f.game.ID, "user-b", moves); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand for an out-of-turn plan, got %v", err)
	}
}

func TestQueueMovesRejectsBadBatch(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))
	svc := newCommandService(f)
	home := f.homeOf(0)

	// The second build is unaffordable, which rejects the whole batch.
	moves := []conquest.Command{
		{Type: conquest.CmdBuild, Region: home, Upgrade: conquest.UpgradeSoldier},
		{Type: conquest.CmdBuild, Region: home, Upgrade: conquest.UpgradeSoldier},
	}
	if _, err := svc.QueueMoves(context.Background(), f.game.ID, "user-a", moves); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand, got %v", err)
	}
	if raw, _ := f.cache.GetQueuedMoves(context.Background(), f.game.ID, 0); raw != nil {
		t.Error("a rejected batch must not reach the queue")
	}
}

func TestQueueMovesChecks(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))
	svc := newCommandService(f)

	if _, err := svc.QueueMoves(context.Background(), "nonexistent", "user-a", nil); err != ErrGameNotFound {
		t.Errorf("expected ErrGameNotFound, got %v", err)
	}
	if _, err := svc.QueueMoves(context.Background(), f.game.ID, "stranger", nil); err != ErrNotInGame {
		t.Errorf("expected ErrNotInGame, got %v", err)
	}

	f.gameRepo.games[f.game.ID].Status = "finished"
	if _, err := svc.QueueMoves(context.Background(), f.game.ID, "user-a", nil); err != ErrGameNotActive {
		t.Errorf("expected ErrGameNotActive, got %v", err)
	}
}

func TestQueuedMovesEmpty(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))
	svc := newCommandService(f)

	got, err := svc.QueuedMoves(context.Background(), f.game.ID, "user-a")
	if err != nil {
		t.Fatalf("QueuedMoves: %v", err)
	}
	if got != nil {
		t.Errorf("expected no queued moves, got %+v", got)
	}
}

func TestLiveStateFallsBackToPostgres(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))
	svc := newCommandService(f)

	// Simulate a cache loss; the current turn's snapshot takes over.
	delete(f.cache.states, f.game.ID)

	gs, err := svc.LiveState(context.Background(), f.game.ID)
	if err != nil {
		t.Fatalf("LiveState: %v", err)
	}
	if gs.CurrentPlayerSlot != 0 || len(gs.Regions) != conquest.MapSmall {
		t.Errorf("unexpected fallback state: slot %d, %d regions", gs.CurrentPlayerSlot, len(gs.Regions))
	}
}

func TestLiveStateNoActiveTurn(t *testing.T) {
	gameRepo := newMockGameRepo()
	turnRepo := newMockTurnRepo()
	svc := NewCommandService(gameRepo, turnRepo, newMockCache())

	if _, err := svc.LiveState(context.Background(), "game-x"); err != ErrNoActiveTurn {
		t.Errorf("expected ErrNoActiveTurn, got %v", err)
	}
}

func TestTurnHistoryAndCommandLog(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))
	svc := newCommandService(f)

	movesJSON, _ := json.Marshal([]conquest.Command{
		{Type: conquest.CmdBuild, Player: 0, Region: f.homeOf(0), Upgrade: conquest.UpgradeSoldier},
	})
	f.cache.SetQueuedMoves(context.Background(), f.game.ID, 0, movesJSON)
	if err := f.svc.EndTurn(context.Background(), f.game.ID, "user-a"); err != nil {
		t.Fatalf("EndTurn: %v", err)
	}

	turns, err := svc.Turns(context.Background(), f.game.ID)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}

	records, err := svc.Commands(context.Background(), turns[0].ID)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(records) != 1 || records[0].Slot != 0 || records[0].Seq != 0 {
		t.Errorf("unexpected command log: %+v", records)
	}
}
