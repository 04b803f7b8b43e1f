package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"velvetcode/internal/exec"
	"velvetcode/internal/models"
	"velvetcode/internal/services"
	"velvetcode/internal/session"
	"velvetcode/internal/utils"
	"velvetcode/internal/workspace"
)

const (
	defaultRunTimeout = 15 * time.Second
	maxBodyBytes      = 1 << 20
)

type runner interface {
	Run(ctx context.Context, req models.RunRequest) (models.RunResult, error)
}

type assistant interface {
	Suggest(ctx context.Context, req models.SuggestRequest) (string, error)
}

type roomStatus interface {
	GetRoomStatus(ctx context.Context, roomID string) (*models.RoomInfo, error)
}

// Deps wires the handlers. Runner, Assistant and Feed are optional; the
// endpoints that need them answer 503 when they are missing.
type Deps struct {
	Log        *zap.Logger
	Router     *session.EventRouter
	Runner     runner
	Assistant  assistant
	Feed       roomStatus
	SendQueue  int
	RunTimeout time.Duration
}

type Handlers struct {
	log        *zap.Logger
	router     *session.EventRouter
	hub        *session.Hub
	runner     runner
	assistant  assistant
	feed       roomStatus
	sendQueue  int
	runTimeout time.Duration
	now        func() time.Time
}

func NewHandlers(deps Deps) *Handlers {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.RunTimeout <= 0 {
		deps.RunTimeout = defaultRunTimeout
	}
	return &Handlers{
		log:        deps.Log,
		router:     deps.Router,
		hub:        deps.Router.Hub(),
		runner:     deps.Runner,
		assistant:  deps.Assistant,
		feed:       deps.Feed,
		sendQueue:  deps.SendQueue,
		runTimeout: deps.RunTimeout,
		now:        time.Now,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) ListLanguages(w http.ResponseWriter, _ *http.Request) {
	utils.JSON(w, http.StatusOK, models.LanguagesResponse{
		Extensions: workspace.Extensions(),
		Runnable:   exec.Languages(),
	})
}

/*** Rooms ***/

func (h *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	state, ok := h.hub.Snapshot(roomID)
	if !ok {
		utils.Error(w, http.StatusNotFound, "room_not_found", "room "+roomID+" does not exist")
		return
	}
	utils.JSON(w, http.StatusOK, state)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	room, ok := h.hub.Get(roomID)
	if !ok {
		utils.Error(w, http.StatusNotFound, "room_not_found", "room "+roomID+" does not exist")
		return
	}
	utils.JSON(w, http.StatusOK, room.Runs())
}

func (h *Handlers) GetRoomStatus(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		utils.Error(w, http.StatusServiceUnavailable, "feed_disabled", "room activity feed is not configured")
		return
	}
	roomID := chi.URLParam(r, "id")
	info, err := h.feed.GetRoomStatus(r.Context(), roomID)
	if err != nil {
		utils.Error(w, http.StatusNotFound, "room_not_found", err.Error())
		return
	}
	utils.JSON(w, http.StatusOK, info)
}

/*** Code execution ***/

func (h *Handlers) RunCode(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		utils.Error(w, http.StatusServiceUnavailable, "sandbox_disabled", "code execution is not enabled")
		return
	}
	var req models.RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.runTimeout)
	defer cancel()
	res, err := h.runner.Run(ctx, req)
	if err != nil {
		if errors.Is(err, exec.ErrUnsupportedLanguage) || errors.Is(err, exec.ErrEmptyCode) {
			utils.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.log.Error("sandbox run failed", zap.String("language", string(req.Language)), zap.Error(err))
		utils.Error(w, http.StatusInternalServerError, "sandbox_error", err.Error())
		return
	}

	if req.RoomID != "" {
		rec := models.RunRecord{
			ID:       utils.NewID(),
			Language: req.Language,
			Result:   res,
			RanAt:    h.now().UnixMilli(),
		}
		if !h.router.RecordRun(req.RoomID, rec) {
			h.log.Debug("run result for unknown room", zap.String("room_id", req.RoomID))
		}
	}
	utils.JSON(w, http.StatusOK, res)
}

/*** AI suggestions ***/

func (h *Handlers) Suggest(w http.ResponseWriter, r *http.Request) {
	var req models.SuggestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	message, err := h.suggest(r.Context(), req)
	if err != nil {
		h.writeSuggestError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.SuggestResponse{Message: message})
}

// Assist asks the AI provider about code in a room and relays the answer, or
// the failure, to every member as a chat message.
func (h *Handlers) Assist(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	room, ok := h.hub.Get(roomID)
	if !ok {
		utils.Error(w, http.StatusNotFound, "room_not_found", "room "+roomID+" does not exist")
		return
	}
	var req models.AssistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	suggestReq := models.SuggestRequest{Kind: req.Kind, Language: req.Language, Code: req.Code}
	if req.FileID != "" {
		node, err := room.File(req.FileID)
		if err != nil || !node.IsFile() {
			utils.Error(w, http.StatusNotFound, "file_not_found", "file "+req.FileID+" does not exist")
			return
		}
		suggestReq.Code = node.File.Content
		if suggestReq.Language == "" {
			suggestReq.Language = node.File.Language
		}
	}

	message, err := h.suggest(r.Context(), suggestReq)
	if errors.Is(err, services.ErrInvalidSuggestion) {
		utils.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := message
	if err != nil {
		text = "AI request failed: " + err.Error()
	}
	h.router.RelayChat(roomID, models.ChatMessage{
		ID:        utils.NewID(),
		Author:    models.AIAgentName,
		Text:      text,
		Timestamp: h.now().UnixMilli(),
	})
	if err != nil {
		h.writeSuggestError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, models.SuggestResponse{Message: message})
}

func (h *Handlers) suggest(ctx context.Context, req models.SuggestRequest) (string, error) {
	if h.assistant == nil {
		return "", services.ErrAssistantUnavailable
	}
	return h.assistant.Suggest(ctx, req)
}

func (h *Handlers) writeSuggestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidSuggestion):
		utils.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, services.ErrAssistantUnavailable):
		utils.Error(w, http.StatusServiceUnavailable, "ai_unavailable", err.Error())
	default:
		h.log.Warn("ai suggestion failed", zap.Error(err))
		utils.Error(w, http.StatusBadGateway, "ai_error", err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(out)
}
