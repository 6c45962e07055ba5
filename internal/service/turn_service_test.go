package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/freeeve/divine-conquest/api/internal/model"
	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

// turnFixture wires a TurnService against mocks with a started game whose
// board is built directly, so tests control exactly who sits in which slot.
type turnFixture struct {
	svc      *TurnService
	gameRepo *mockGameRepo
	turnRepo *mockTurnRepo
	cache    *mockCache
	bcast    *recordingBroadcaster
	game     *model.Game
	state    *conquest.GameState
}

type seat struct {
	userID      string
	isBot       bool
	difficulty  string
	personality string
}

func newTurnFixture(t *testing.T, seats []seat, deadline time.Time) *turnFixture {
	t.Helper()

	gameRepo := newMockGameRepo()
	turnRepo := newMockTurnRepo()
	cache := newMockCache()
	bcast := &recordingBroadcaster{}
	svc := NewTurnService(gameRepo, turnRepo, cache, bcast)

	game := &model.Game{
		ID:               "game-1",
		Name:             "Fixture",
		CreatorID:        seats[0].userID,
		Status:           "active",
		MapName:          "small",
		MaxPlayers:       len(seats),
		TurnTimerSeconds: 3600,
	}
	gameRepo.games[game.ID] = game

	var players []conquest.Player
	for slot, s := range seats {
		gameRepo.players[game.ID] = append(gameRepo.players[game.ID], model.GamePlayer{
			GameID:         game.ID,
			UserID:         s.userID,
			Slot:           slot,
			Color:          "#ffffff",
			IsBot:          s.isBot,
			BotDifficulty:  s.difficulty,
			BotPersonality: s.personality,
		})
		players = append(players, conquest.Player{
			Slot:        slot,
			Name:        s.userID,
			IsAI:        s.isBot,
			Personality: s.personality,
		})
	}

	regions := conquest.GenerateMap(conquest.MapSmall, game.ID)
	homes := conquest.HomeRegions(regions, len(players))
	gs := conquest.NewGameState(regions, players, homes, 0, game.ID)

	stateJSON, err := json.Marshal(gs)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	if _, err := turnRepo.CreateTurn(context.Background(), game.ID, 0, 0, stateJSON, deadline); err != nil {
		t.Fatalf("create turn: %v", err)
	}
	cache.states[game.ID] = stateJSON

	return &turnFixture{
		svc:      svc,
		gameRepo: gameRepo,
		turnRepo: turnRepo,
		cache:    cache,
		bcast:    bcast,
		game:     game,
		state:    gs,
	}
}

func twoHumans() []seat {
	return []seat{{userID: "user-a"}, {userID: "user-b"}}
}

func (f *turnFixture) homeOf(slot int) int {
	for _, r := range f.state.Regions {
		if f.state.OwnedBy(r.Index, slot) {
			return r.Index
		}
	}
	return -1
}

func hasEvent(b *recordingBroadcaster, eventType string) bool {
	for _, e := range b.events {
		if e.eventType == eventType {
			return true
		}
	}
	return false
}

func TestInitializeGame(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))
	delete(f.cache.states, f.game.ID)

	if err := f.svc.InitializeGame(context.Background(), f.game.ID); err != nil {
		t.Fatalf("InitializeGame: %v", err)
	}
	if f.cache.states[f.game.ID] == nil {
		t.Error("expected game state in cache")
	}
	if _, ok := f.cache.timers[f.game.ID]; !ok {
		t.Error("expected timer in cache")
	}
	if !hasEvent(f.bcast, "game_started") {
		t.Errorf("expected game_started broadcast, got %v", f.bcast.eventTypes())
	}
}

func TestEndTurnAppliesQueuedMoves(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))
	home := f.homeOf(0)

	moves := []conquest.Command{
		{Type: conquest.CmdBuild, Player: 0, Region: home, Upgrade: conquest.UpgradeSoldier},
	}
	movesJSON, _ := json.Marshal(moves)
	f.cache.SetQueuedMoves(context.Background(), f.game.ID, 0, movesJSON)

	if err := f.svc.EndTurn(context.Background(), f.game.ID, "user-a"); err != nil {
		t.Fatalf("EndTurn: %v", err)
	}

	// The old turn is resolved with the build applied.
	turns, _ := f.turnRepo.ListTurns(context.Background(), f.game.ID)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns after resolution, got %d", len(turns))
	}
	if turns[0].ResolvedAt == nil {
		t.Fatal("expected the first turn to be resolved")
	}
	var after conquest.GameState
	if err := json.Unmarshal(turns[0].StateAfter, &after); err != nil {
		t.Fatalf("unmarshal state after: %v", err)
	}
	if got := after.SoldierCountAt(home); got != conquest.InitialSoldiers+1 {
		t.Errorf("expected %d soldiers at home after build, got %d", conquest.InitialSoldiers+1, got)
	}
	if after.CurrentPlayerSlot != 1 {
		t.Errorf("expected play to pass to slot 1, got %d", after.CurrentPlayerSlot)
	}

	// The envelope landed in the command log and the queue was cleared.
	records, _ := f.turnRepo.CommandsByTurn(context.Background(), turns[0].ID)
	if len(records) != 1 {
		t.Fatalf("expected 1 command record, got %d", len(records))
	}
	var envelope conquest.Command
	if err := json.Unmarshal(records[0].Payload, &envelope); err != nil {
		t.Fatalf("unmarshal command record: %v", err)
	}
	if envelope.Type != conquest.CmdEndTurn || len(envelope.Moves) != 1 {
		t.Errorf("expected an END_TURN envelope with 1 move, got %s with %d", envelope.Type, len(envelope.Moves))
	}
	if raw, _ := f.cache.GetQueuedMoves(context.Background(), f.game.ID, 0); raw != nil {
		t.Error("expected queued moves to be cleared")
	}

	// The next turn belongs to slot 1 and carries a fresh deadline.
	if turns[1].Slot != 1 {
		t.Errorf("expected next turn for slot 1, got %d", turns[1].Slot)
	}
	if !hasEvent(f.bcast, "turn_resolved") || !hasEvent(f.bcast, "turn_changed") {
		t.Errorf("expected turn_resolved and turn_changed, got %v", f.bcast.eventTypes())
	}
}

func TestEndTurnOutOfTurn(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))

	if err := f.svc.EndTurn(context.Background(), f.game.ID, "user-b"); err != ErrNotYourTurn {
		t.Errorf("expected ErrNotYourTurn, got %v", err)
	}
	if err := f.svc.EndTurn(context.Background(), f.game.ID, "stranger"); err != ErrNotInGame {
		t.Errorf("expected ErrNotInGame, got %v", err)
	}
}

func TestResolveTurnRespectsDeadline(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))

	// The deadline is an hour away; the poller firing now must not resolve.
	if err := f.svc.ResolveTurn(context.Background(), f.game.ID); err != nil {
		t.Fatalf("ResolveTurn: %v", err)
	}
	turn, _ := f.turnRepo.CurrentTurn(context.Background(), f.game.ID)
	if turn == nil || turn.Slot != 0 {
		t.Error("expected the first turn to still be open")
	}
	if len(f.bcast.events) != 0 {
		t.Errorf("expected no broadcasts, got %v", f.bcast.eventTypes())
	}
}

func TestResolveTurnAfterDeadline(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(-time.Minute))

	if err := f.svc.ResolveTurn(context.Background(), f.game.ID); err != nil {
		t.Fatalf("ResolveTurn: %v", err)
	}
	turns, _ := f.turnRepo.ListTurns(context.Background(), f.game.ID)
	if len(turns) != 2 || turns[0].ResolvedAt == nil {
		t.Fatal("expected the expired turn to be resolved and a new one created")
	}
	if turns[1].Slot != 1 {
		t.Errorf("expected next turn for slot 1, got %d", turns[1].Slot)
	}
}

func TestResolveTurnDropsStaleQueue(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(-time.Minute))

	// A plan referencing a region slot 0 does not own fails when applied;
	// resolution must fall back to a bare end-of-turn instead of stalling.
	stale := []conquest.Command{
		{Type: conquest.CmdArmyMove, Player: 0, Source: f.homeOf(1), Target: f.homeOf(0), Count: 1},
	}
	staleJSON, _ := json.Marshal(stale)
	f.cache.SetQueuedMoves(context.Background(), f.game.ID, 0, staleJSON)

	if err := f.svc.ResolveTurn(context.Background(), f.game.ID); err != nil {
		t.Fatalf("ResolveTurn: %v", err)
	}
	turns, _ := f.turnRepo.ListTurns(context.Background(), f.game.ID)
	if len(turns) != 2 || turns[0].ResolvedAt == nil {
		t.Fatal("expected the turn to resolve without the stale plan")
	}
	records, _ := f.turnRepo.CommandsByTurn(context.Background(), turns[0].ID)
	if len(records) != 1 {
		t.Fatalf("expected 1 command record, got %d", len(records))
	}
	var envelope conquest.Command
	json.Unmarshal(records[0].Payload, &envelope)
	if len(envelope.Moves) != 0 {
		t.Errorf("expected a bare END_TURN in the log, got %d moves", len(envelope.Moves))
	}
}

func TestResignOutOfTurnKeepsGameRunning(t *testing.T) {
	f := newTurnFixture(t, []seat{
		{userID: "user-a"}, {userID: "user-b"}, {userID: "user-c"},
	}, time.Now().Add(time.Hour))

	if err := f.svc.Resign(context.Background(), f.game.ID, "user-b"); err != nil {
		t.Fatalf("Resign: %v", err)
	}

	// Slot 0 is still playing; the board just lost a contender.
	game, _ := f.gameRepo.FindByID(context.Background(), f.game.ID)
	if game.Status != "active" {
		t.Errorf("expected the game to stay active, got %s", game.Status)
	}
	if !hasEvent(f.bcast, "player_resigned") {
		t.Errorf("expected player_resigned broadcast, got %v", f.bcast.eventTypes())
	}
	var cached conquest.GameState
	if err := json.Unmarshal(f.cache.states[f.game.ID], &cached); err != nil {
		t.Fatalf("unmarshal cached state: %v", err)
	}
	if !cached.EliminatedPlayers[1] {
		t.Error("expected slot 1 marked eliminated in the live state")
	}
	if cached.CurrentPlayerSlot != 0 {
		t.Errorf("expected slot 0 to keep the turn, got %d", cached.CurrentPlayerSlot)
	}
}

func TestResignEndsTwoPlayerGame(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))

	if err := f.svc.Resign(context.Background(), f.game.ID, "user-b"); err != nil {
		t.Fatalf("Resign: %v", err)
	}

	game, _ := f.gameRepo.FindByID(context.Background(), f.game.ID)
	if game.Status != "finished" {
		t.Fatalf("expected the game to finish, got %s", game.Status)
	}
	if game.WinnerSlot == nil || *game.WinnerSlot != 0 {
		t.Errorf("expected slot 0 to win, got %v", game.WinnerSlot)
	}
	if !hasEvent(f.bcast, "game_ended") {
		t.Errorf("expected game_ended broadcast, got %v", f.bcast.eventTypes())
	}
	if f.cache.states[f.game.ID] != nil {
		t.Error("expected live game data to be dropped")
	}
}

func TestResignByActivePlayerPassesPlay(t *testing.T) {
	f := newTurnFixture(t, []seat{
		{userID: "user-a"}, {userID: "user-b"}, {userID: "user-c"},
	}, time.Now().Add(time.Hour))

	if err := f.svc.Resign(context.Background(), f.game.ID, "user-a"); err != nil {
		t.Fatalf("Resign: %v", err)
	}

	turns, _ := f.turnRepo.ListTurns(context.Background(), f.game.ID)
	if len(turns) != 2 || turns[0].ResolvedAt == nil {
		t.Fatal("expected the resigner's turn to close")
	}
	if turns[1].Slot != 1 {
		t.Errorf("expected play to pass to slot 1, got %d", turns[1].Slot)
	}
	if !hasEvent(f.bcast, "turn_resolved") || !hasEvent(f.bcast, "turn_changed") {
		t.Errorf("expected turn_resolved and turn_changed, got %v", f.bcast.eventTypes())
	}
}

func TestPlayBotTurn(t *testing.T) {
	f := newTurnFixture(t, []seat{
		{userID: "bot-1", isBot: true, difficulty: "Nice", personality: "Berserker"},
		{userID: "user-b"},
	}, time.Now().Add(time.Hour))
	f.svc.SetAIThinkTime(20 * time.Millisecond)

	if err := f.svc.PlayBotTurn(context.Background(), f.game.ID); err != nil {
		t.Fatalf("PlayBotTurn: %v", err)
	}

	// The bot's turn resolved and play passed to the human seat, so no
	// further bot goroutine was kicked.
	turns, _ := f.turnRepo.ListTurns(context.Background(), f.game.ID)
	if len(turns) != 2 || turns[0].ResolvedAt == nil {
		t.Fatal("expected the bot's turn to resolve")
	}
	if turns[1].Slot != 1 {
		t.Errorf("expected next turn for the human slot, got %d", turns[1].Slot)
	}
	records, _ := f.turnRepo.CommandsByTurn(context.Background(), turns[0].ID)
	if len(records) != 1 {
		t.Fatalf("expected the bot's envelope in the command log, got %d records", len(records))
	}
}

func TestPlayBotTurnSkipsHumanSlot(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))

	if err := f.svc.PlayBotTurn(context.Background(), f.game.ID); err != nil {
		t.Fatalf("PlayBotTurn: %v", err)
	}
	turn, _ := f.turnRepo.CurrentTurn(context.Background(), f.game.ID)
	if turn == nil || turn.Slot != 0 {
		t.Error("expected a human turn to be left alone")
	}
}

func TestRecoverActiveGames(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))
	delete(f.cache.states, f.game.ID)
	delete(f.cache.timers, f.game.ID)

	if err := f.svc.RecoverActiveGames(context.Background()); err != nil {
		t.Fatalf("RecoverActiveGames: %v", err)
	}
	if f.cache.states[f.game.ID] == nil {
		t.Error("expected game state restored to cache")
	}
	if _, ok := f.cache.timers[f.game.ID]; !ok {
		t.Error("expected timer restored to cache")
	}
}

func TestRecoverActiveGamesSkipsExpiredTimer(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(-time.Minute))
	delete(f.cache.states, f.game.ID)
	delete(f.cache.timers, f.game.ID)

	if err := f.svc.RecoverActiveGames(context.Background()); err != nil {
		t.Fatalf("RecoverActiveGames: %v", err)
	}
	if f.cache.states[f.game.ID] == nil {
		t.Error("expected game state restored to cache")
	}
	// The deadline already passed; the poller resolves it, not a new timer.
	if _, ok := f.cache.timers[f.game.ID]; ok {
		t.Error("expected no timer for an expired turn")
	}
}

func TestCleanupStoppedGame(t *testing.T) {
	f := newTurnFixture(t, twoHumans(), time.Now().Add(time.Hour))

	if err := f.svc.CleanupStoppedGame(context.Background(), f.game.ID); err != nil {
		t.Fatalf("CleanupStoppedGame: %v", err)
	}
	if !hasEvent(f.bcast, "game_ended") {
		t.Errorf("expected game_ended broadcast, got %v", f.bcast.eventTypes())
	}
	if f.cache.states[f.game.ID] != nil {
		t.Error("expected live game data to be dropped")
	}
}
