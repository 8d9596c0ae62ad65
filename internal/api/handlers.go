package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"codeshare/internal/models"
	"codeshare/internal/session"
	"codeshare/internal/utils"
)

const maxMessageSize = 1 << 20

type Options struct {
	AllowedOrigins   []string
	ClientSendBuffer int
}

type Handlers struct {
	log        *utils.Logger
	hub        *session.Hub
	upgrader   websocket.Upgrader
	sendBuffer int
}

func NewHandlers(log *utils.Logger, hub *session.Hub, opts Options) *Handlers {
	return &Handlers{
		log:        log,
		hub:        hub,
		upgrader:   websocket.Upgrader{CheckOrigin: originChecker(opts.AllowedOrigins)},
		sendBuffer: opts.ClientSendBuffer,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) ListLanguages(w http.ResponseWriter, _ *http.Request) {
	utils.JSON(w, http.StatusOK, models.SupportedLanguages())
}

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.JSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Language != "" && !req.Language.Valid() {
		utils.JSONError(w, http.StatusBadRequest, "unsupported language: "+string(req.Language))
		return
	}

	sess := h.hub.CreateSession(req.Language, req.InitialCode)
	h.log.Info("session created", "sessionId", sess.SessionID, "language", sess.Language)
	utils.JSON(w, http.StatusCreated, models.CreateSessionResponse{
		SessionID: sess.SessionID,
		CreatedAt: sess.CreatedAt,
	})
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.hub.Store().Get(id)
	if !ok {
		notFound(w, id)
		return
	}
	utils.JSON(w, http.StatusOK, sess)
}

func (h *Handlers) GetCode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.hub.Store().Get(id)
	if !ok {
		notFound(w, id)
		return
	}
	utils.JSON(w, http.StatusOK, models.CodeResponse{Code: sess.Code, Language: sess.Language})
}

func (h *Handlers) UpdateCode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.UpdateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == nil {
		utils.JSONError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.Language != "" && !req.Language.Valid() {
		utils.JSONError(w, http.StatusBadRequest, "unsupported language: "+string(req.Language))
		return
	}

	err := h.hub.UpdateCode(r.Context(), id, req.Code, req.Language)
	switch {
	case errors.Is(err, session.ErrNotFound):
		notFound(w, id)
	case err != nil:
		h.log.Error("code update failed", "sessionId", id, "error", err.Error())
		utils.JSONError(w, http.StatusServiceUnavailable, "session updates unavailable")
	default:
		utils.JSON(w, http.StatusOK, models.UpdateCodeResponse{Success: true})
	}
}

/*** Real-time channel: one JSON frame per websocket message ***/
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	client := session.NewClientWithBuffer(conn, h.sendBuffer)
	if err := h.hub.Connect(client); err != nil {
		_ = conn.WriteJSON(models.WSFrame{Type: models.EventError, Data: "unavailable"})
		return
	}

	writerDone := make(chan struct{})
	go func() {
		client.WritePump()
		close(writerDone)
	}()

	h.readLoop(client)

	if err := h.hub.Disconnect(client); err != nil {
		client.Close()
	}
	<-writerDone
}

func (h *Handlers) readLoop(client *session.Client) {
	conn := client.Conn
	client.PrepareRead(maxMessageSize)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read failed", "clientId", client.ID, "error", err.Error())
			}
			return
		}
		var frame models.WSFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			client.Send(models.WSFrame{Type: models.EventError, Data: "malformed_frame"})
			continue
		}
		if err := h.hub.Submit(client, frame); err != nil {
			return
		}
	}
}

func notFound(w http.ResponseWriter, id string) {
	utils.JSONError(w, http.StatusNotFound, "Session "+id+" not found")
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
