package handler

import (
	"errors"
	"net/http"

	"github.com/freeeve/divine-conquest/api/internal/auth"
	"github.com/freeeve/divine-conquest/api/internal/service"
	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

// CommandHandler handles move queueing, turn actions, and turn history
// endpoints.
type CommandHandler struct {
	cmdSvc  *service.CommandService
	turnSvc *service.TurnService
	hub     *Hub
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(cmdSvc *service.CommandService, turnSvc *service.TurnService, hub *Hub) *CommandHandler {
	return &CommandHandler{cmdSvc: cmdSvc, turnSvc: turnSvc, hub: hub}
}

// QueueMoves handles POST /api/v1/games/{id}/moves
func (h *CommandHandler) QueueMoves(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	var req struct {
		Moves []conquest.Command `json:"moves"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	moves, err := h.cmdSvc.QueueMoves(r.Context(), gameID, userID, req.Moves)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrGameNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, service.ErrNotInGame) || errors.Is(err, service.ErrGameNotActive) || errors.Is(err, service.ErrNoActiveTurn) {
			status = http.StatusBadRequest
		} else if errors.Is(err, service.ErrInvalidCommand) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	h.hub.BroadcastToGame(gameID, WSEvent{
		Type:   EventMovesQueued,
		GameID: gameID,
		Data:   map[string]any{"count": len(moves)},
	})

	writeJSON(w, http.StatusOK, map[string]any{"moves": moves})
}

// GetQueuedMoves handles GET /api/v1/games/{id}/moves
func (h *CommandHandler) GetQueuedMoves(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	moves, err := h.cmdSvc.QueuedMoves(r.Context(), gameID, userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrGameNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, service.ErrNotInGame) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	if moves == nil {
		moves = []conquest.Command{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"moves": moves})
}

// EndTurn handles POST /api/v1/games/{id}/end-turn
func (h *CommandHandler) EndTurn(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.turnSvc.EndTurn(r.Context(), gameID, userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrGameNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, service.ErrNotInGame) || errors.Is(err, service.ErrGameNotActive) {
			status = http.StatusBadRequest
		} else if errors.Is(err, service.ErrNotYourTurn) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// Resign handles POST /api/v1/games/{id}/resign
func (h *CommandHandler) Resign(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.turnSvc.Resign(r.Context(), gameID, userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrGameNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, service.ErrNotInGame) || errors.Is(err, service.ErrGameNotActive) || errors.Is(err, service.ErrInvalidCommand) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resigned"})
}

// GameState handles GET /api/v1/games/{id}/state
func (h *CommandHandler) GameState(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")

	state, err := h.cmdSvc.LiveState(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveTurn) {
			writeError(w, http.StatusNotFound, "no live state for this game")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ListTurns handles GET /api/v1/games/{id}/turns
func (h *CommandHandler) ListTurns(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	turns, err := h.cmdSvc.Turns(r.Context(), gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if turns == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

// TurnCommands handles GET /api/v1/games/{id}/turns/{turnId}/commands
func (h *CommandHandler) TurnCommands(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("turnId")
	commands, err := h.cmdSvc.Commands(r.Context(), turnID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if commands == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, commands)
}
