package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/freeeve/divine-conquest/api/internal/model"
)

type mockGameRepo struct {
	games   map[string]*model.Game
	players map[string][]model.GamePlayer
}

func newMockGameRepo() *mockGameRepo {
	return &mockGameRepo{
		games:   make(map[string]*model.Game),
		players: make(map[string][]model.GamePlayer),
	}
}

func (m *mockGameRepo) Create(_ context.Context, name, creatorID, mapName string, maxPlayers, maxTurns, turnTimerSeconds int) (*model.Game, error) {
	g := &model.Game{
		ID:               fmt.Sprintf("game-%d", len(m.games)+1),
		Name:             name,
		CreatorID:        creatorID,
		Status:           "waiting",
		MapName:          mapName,
		MaxPlayers:       maxPlayers,
		MaxTurns:         maxTurns,
		TurnTimerSeconds: turnTimerSeconds,
		CreatedAt:        time.Now(),
	}
	m.games[g.ID] = g
	return g, nil
}

func (m *mockGameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	cp.Players = m.players[id]
	return &cp, nil
}

func (m *mockGameRepo) ListOpen(_ context.Context) ([]model.Game, error) {
	var result []model.Game
	for _, g := range m.games {
		if g.Status == "waiting" {
			result = append(result, *g)
		}
	}
	return result, nil
}

func (m *mockGameRepo) ListByUser(_ context.Context, userID string) ([]model.Game, error) {
	seen := make(map[string]bool)
	var result []model.Game
	for gameID, players := range m.players {
		for _, p := range players {
			if p.UserID == userID && !seen[gameID] {
				if g, ok := m.games[gameID]; ok {
					result = append(result, *g)
					seen[gameID] = true
				}
			}
		}
	}
	for _, g := range m.games {
		if g.CreatorID == userID && !seen[g.ID] {
			result = append(result, *g)
			seen[g.ID] = true
		}
	}
	return result, nil
}

func (m *mockGameRepo) ListActive(_ context.Context) ([]model.Game, error) {
	var result []model.Game
	for _, g := range m.games {
		if g.Status == "active" {
			cp := *g
			cp.Players = m.players[g.ID]
			result = append(result, cp)
		}
	}
	return result, nil
}

func (m *mockGameRepo) ListFinished(_ context.Context) ([]model.Game, error) {
	var result []model.Game
	for _, g := range m.games {
		if g.Status == "finished" {
			cp := *g
			cp.Players = m.players[g.ID]
			result = append(result, cp)
		}
	}
	return result, nil
}

func (m *mockGameRepo) JoinGame(_ context.Context, gameID, userID string) error {
	m.players[gameID] = append(m.players[gameID], model.GamePlayer{
		GameID:   gameID,
		UserID:   userID,
		Slot:     -1,
		JoinedAt: time.Now(),
	})
	return nil
}

func (m *mockGameRepo) JoinGameAsBot(_ context.Context, gameID, userID, difficulty, personality string) error {
	if difficulty == "" {
		difficulty = "Normal"
	}
	m.players[gameID] = append(m.players[gameID], model.GamePlayer{
		GameID:         gameID,
		UserID:         userID,
		Slot:           -1,
		IsBot:          true,
		BotDifficulty:  difficulty,
		BotPersonality: personality,
		JoinedAt:       time.Now(),
	})
	return nil
}

func (m *mockGameRepo) ReplaceBot(_ context.Context, gameID, newUserID string) error {
	players := m.players[gameID]
	for i := len(players) - 1; i >= 0; i-- {
		if players[i].IsBot {
			players[i] = model.GamePlayer{
				GameID:   gameID,
				UserID:   newUserID,
				Slot:     -1,
				JoinedAt: time.Now(),
			}
			m.players[gameID] = players
			return nil
		}
	}
	return fmt.Errorf("no bot to replace")
}

func (m *mockGameRepo) PlayerCount(_ context.Context, gameID string) (int, error) {
	return len(m.players[gameID]), nil
}

func (m *mockGameRepo) AssignSlots(_ context.Context, gameID string, slots map[string]int, colors map[string]string) error {
	players := m.players[gameID]
	for i := range players {
		if slot, ok := slots[players[i].UserID]; ok {
			players[i].Slot = slot
			players[i].Color = colors[players[i].UserID]
		}
	}
	m.players[gameID] = players
	if g, ok := m.games[gameID]; ok {
		g.Status = "active"
		now := time.Now()
		g.StartedAt = &now
	}
	return nil
}

func (m *mockGameRepo) SetStarted(_ context.Context, gameID string) error {
	if g, ok := m.games[gameID]; ok {
		g.Status = "active"
		now := time.Now()
		g.StartedAt = &now
	}
	return nil
}

func (m *mockGameRepo) SetFinished(_ context.Context, gameID string, winnerSlot int) error {
	if g, ok := m.games[gameID]; ok {
		g.Status = "finished"
		g.WinnerSlot = &winnerSlot
		now := time.Now()
		g.FinishedAt = &now
	}
	return nil
}

func (m *mockGameRepo) Delete(_ context.Context, gameID string) error {
	delete(m.games, gameID)
	delete(m.players, gameID)
	return nil
}

func (m *mockGameRepo) UpdateBotDifficulty(_ context.Context, gameID, botUserID, difficulty string) error {
	players := m.players[gameID]
	for i, p := range players {
		if p.UserID == botUserID && p.IsBot {
			players[i].BotDifficulty = difficulty
			return nil
		}
	}
	return fmt.Errorf("bot not found")
}

// mockUserRepo implements repository.UserRepository for testing.
type mockUserRepo struct {
	users map[string]*model.User
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (m *mockUserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Upsert(_ context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			u.DisplayName = displayName
			return u, nil
		}
	}
	m.seq++
	// Minted IDs live in their own namespace so they can never collide with
	// the literal "user-N" IDs tests hand in as creators.
	u := &model.User{
		ID:          fmt.Sprintf("bot-user-%d", m.seq),
		Provider:    provider,
		ProviderID:  providerID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) UpdateDisplayName(_ context.Context, id, displayName string) error {
	if u, ok := m.users[id]; ok {
		u.DisplayName = displayName
	}
	return nil
}

type mockTurnRepo struct {
	turns    map[string]*model.Turn
	commands map[string][]model.CommandRecord
	seq      int
}

func newMockTurnRepo() *mockTurnRepo {
	return &mockTurnRepo{
		turns:    make(map[string]*model.Turn),
		commands: make(map[string][]model.CommandRecord),
	}
}

func (m *mockTurnRepo) CreateTurn(_ context.Context, gameID string, turnNumber, slot int, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error) {
	m.seq++
	t := &model.Turn{
		ID:          fmt.Sprintf("turn-%d", m.seq),
		GameID:      gameID,
		TurnNumber:  turnNumber,
		Slot:        slot,
		StateBefore: stateBefore,
		Deadline:    deadline,
		CreatedAt:   time.Now(),
	}
	m.turns[t.ID] = t
	return t, nil
}

func (m *mockTurnRepo) CurrentTurn(_ context.Context, gameID string) (*model.Turn, error) {
	var latest *model.Turn
	for _, t := range m.turns {
		if t.GameID != gameID || t.ResolvedAt != nil {
			continue
		}
		if latest == nil || turnSeq(t.ID) > turnSeq(latest.ID) {
			latest = t
		}
	}
	return latest, nil
}

func turnSeq(id string) int {
	n, _ := strconv.Atoi(id[len("turn-"):])
	return n
}

func (m *mockTurnRepo) ListTurns(_ context.Context, gameID string) ([]model.Turn, error) {
	var result []model.Turn
	for _, t := range m.turns {
		if t.GameID == gameID {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return turnSeq(result[i].ID) < turnSeq(result[j].ID) })
	return result, nil
}

func (m *mockTurnRepo) ResolveTurn(_ context.Context, turnID string, stateAfter json.RawMessage) error {
	if t, ok := m.turns[turnID]; ok {
		t.StateAfter = stateAfter
		now := time.Now()
		t.ResolvedAt = &now
	}
	return nil
}

func (m *mockTurnRepo) SaveCommands(_ context.Context, commands []model.CommandRecord) error {
	for _, c := range commands {
		m.commands[c.TurnID] = append(m.commands[c.TurnID], c)
	}
	return nil
}

func (m *mockTurnRepo) CommandsByTurn(_ context.Context, turnID string) ([]model.CommandRecord, error) {
	return m.commands[turnID], nil
}

func (m *mockTurnRepo) ListExpired(_ context.Context) ([]model.Turn, error) {
	var result []model.Turn
	for _, t := range m.turns {
		if t.ResolvedAt == nil && time.Now().After(t.Deadline) {
			result = append(result, *t)
		}
	}
	return result, nil
}

// mockCache implements repository.GameCache for testing.
type mockCache struct {
	states map[string]json.RawMessage
	moves  map[string]json.RawMessage // key: "gameID:slot"
	timers map[string]time.Time
}

func newMockCache() *mockCache {
	return &mockCache{
		states: make(map[string]json.RawMessage),
		moves:  make(map[string]json.RawMessage),
		timers: make(map[string]time.Time),
	}
}

func movesMockKey(gameID string, slot int) string {
	return gameID + ":" + strconv.Itoa(slot)
}

func (c *mockCache) SetGameState(_ context.Context, gameID string, state json.RawMessage) error {
	c.states[gameID] = state
	return nil
}

func (c *mockCache) GetGameState(_ context.Context, gameID string) (json.RawMessage, error) {
	return c.states[gameID], nil
}

func (c *mockCache) SetQueuedMoves(_ context.Context, gameID string, slot int, moves json.RawMessage) error {
	c.moves[movesMockKey(gameID, slot)] = moves
	return nil
}

func (c *mockCache) GetQueuedMoves(_ context.Context, gameID string, slot int) (json.RawMessage, error) {
	return c.moves[movesMockKey(gameID, slot)], nil
}

func (c *mockCache) ClearQueuedMoves(_ context.Context, gameID string, slot int) error {
	delete(c.moves, movesMockKey(gameID, slot))
	return nil
}

func (c *mockCache) SetTimer(_ context.Context, gameID string, deadline time.Time) error {
	c.timers[gameID] = deadline
	return nil
}

func (c *mockCache) ClearTimer(_ context.Context, gameID string) error {
	delete(c.timers, gameID)
	return nil
}

func (c *mockCache) DeleteGameData(_ context.Context, gameID string, slots []int) error {
	delete(c.states, gameID)
	delete(c.timers, gameID)
	for _, slot := range slots {
		delete(c.moves, movesMockKey(gameID, slot))
	}
	return nil
}

// recordingBroadcaster captures broadcast events for assertions.
type recordingBroadcaster struct {
	events []broadcastEvent
}

type broadcastEvent struct {
	gameID    string
	eventType string
	data      any
}

func (b *recordingBroadcaster) BroadcastGameEvent(gameID string, eventType string, data any) {
	b.events = append(b.events, broadcastEvent{gameID: gameID, eventType: eventType, data: data})
}

func (b *recordingBroadcaster) eventTypes() []string {
	var types []string
	for _, e := range b.events {
		types = append(types, e.eventType)
	}
	return types
}
