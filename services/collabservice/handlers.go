package collabservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"coderoom-core/internal/config"
	"coderoom-core/internal/ot"
	"coderoom-core/internal/presence"
	"coderoom-core/internal/schema"
	"coderoom-core/internal/session"
)

// Inbound event names.
const (
	EventJoin           = "join"
	EventLeave          = "leave"
	EventCodeChange     = session.EventCodeChange
	EventCursorUpdate   = session.EventCursorUpdate
	EventLanguageChange = session.EventLanguageChange
	EventChatMessage    = session.EventChatMessage
	EventError          = "error"
)

// Error codes sent back to the originating connection.
const (
	CodeRoomNotFound     = "room_not_found"
	CodeInvalidOperation = "invalid_operation"
	CodeInvalidLanguage  = "invalid_language"
	CodeNotParticipant   = "not_participant"
	CodeBadRequest       = "bad_request"
	CodeInternal         = "internal"
)

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

type roomRequest struct {
	RoomID string `json:"roomId"`
}

type joinRequest struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

type codeChangeRequest struct {
	RoomID    string          `json:"roomId"`
	Operation json.RawMessage `json:"operation"`
	// Content is the sender's view of the document; the server ignores it.
	Content string `json:"content,omitempty"`
}

// wireOperation is the client form of an operation. Origin and timestamp are
// assigned by the server.
type wireOperation struct {
	Type     ot.Kind `json:"type"`
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Length   int     `json:"length"`
}

type cursorRequest struct {
	RoomID    string              `json:"roomId"`
	Cursor    presence.Cursor     `json:"cursor"`
	Selection *presence.Selection `json:"selection"`
}

type languageRequest struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

type chatRequest struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// dispatch decodes one inbound envelope and routes it to the registry.
func (s *Service) dispatch(ctx context.Context, c *client, message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
		s.sendError(c, "", CodeBadRequest, "malformed envelope")
		return
	}

	var err error
	switch env.Event {
	case EventJoin:
		err = s.handleJoin(ctx, c, env.Data)
	case EventCodeChange:
		err = s.handleCodeChange(ctx, c, env.Data)
	case EventCursorUpdate:
		err = s.handleCursor(ctx, c, env.Data)
	case EventLanguageChange:
		err = s.handleLanguage(ctx, c, env.Data)
	case EventChatMessage:
		err = s.handleChat(ctx, c, env.Data)
	case EventLeave:
		err = s.handleLeave(ctx, c, env.Data)
	default:
		s.sendError(c, env.Event, CodeBadRequest, "unknown event")
		return
	}
	if err != nil {
		code := errorCode(err)
		if code == CodeInternal {
			log.Printf("Client %s %s failed: %v", c.id, env.Event, err)
		}
		s.sendError(c, env.Event, code, err.Error())
	}
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return badRequest("missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("invalid payload: " + err.Error())
	}
	return nil
}

func checkRoomID(roomID string) error {
	if !schema.ValidRoomID(roomID) {
		return badRequest("invalid roomId")
	}
	return nil
}

func (s *Service) handleJoin(ctx context.Context, c *client, data json.RawMessage) error {
	var req joinRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := checkRoomID(req.RoomID); err != nil {
		return err
	}
	// room-state reaches the client through the hub, ahead of any broadcast.
	if _, err := s.registry.Join(ctx, req.RoomID, c.user, req.Language, c.id); err != nil {
		return err
	}
	c.rooms[req.RoomID] = true
	return nil
}

func (s *Service) handleCodeChange(ctx context.Context, c *client, data json.RawMessage) error {
	var req codeChangeRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := checkRoomID(req.RoomID); err != nil {
		return err
	}
	if len(req.Operation) == 0 {
		return badRequest("missing operation")
	}
	if err := s.opValidator.ValidateBytes(req.Operation); err != nil {
		return fmt.Errorf("%w: %v", ot.ErrInvalidOperation, err)
	}
	var wire wireOperation
	if err := json.Unmarshal(req.Operation, &wire); err != nil {
		return fmt.Errorf("%w: %v", ot.ErrInvalidOperation, err)
	}
	op := ot.Operation{Kind: wire.Type, Position: wire.Position, Text: wire.Text, Length: wire.Length}
	_, err := s.registry.Submit(ctx, req.RoomID, c.user.ID, op)
	return err
}

func (s *Service) handleCursor(ctx context.Context, c *client, data json.RawMessage) error {
	var req cursorRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := checkRoomID(req.RoomID); err != nil {
		return err
	}
	return s.registry.UpdateCursor(ctx, req.RoomID, c.user.ID, req.Cursor, req.Selection)
}

func (s *Service) handleLanguage(ctx context.Context, c *client, data json.RawMessage) error {
	var req languageRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := checkRoomID(req.RoomID); err != nil {
		return err
	}
	if req.Language == "" {
		return badRequest("missing language")
	}
	return s.registry.ChangeLanguage(ctx, req.RoomID, c.user.ID, req.Language)
}

func (s *Service) handleChat(ctx context.Context, c *client, data json.RawMessage) error {
	var req chatRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := checkRoomID(req.RoomID); err != nil {
		return err
	}
	if req.Message == "" {
		return badRequest("empty message")
	}
	_, err := s.registry.RelayChat(ctx, req.RoomID, c.user.ID, req.Message)
	return err
}

func (s *Service) handleLeave(ctx context.Context, c *client, data json.RawMessage) error {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if err := checkRoomID(req.RoomID); err != nil {
		return err
	}
	delete(c.rooms, req.RoomID)
	return s.registry.Leave(ctx, req.RoomID, c.user.ID, c.id)
}

// disconnect leaves every room the client joined and drops it from the hub.
func (s *Service) disconnect(ctx context.Context, c *client) {
	s.hub.unregister(c)
	for roomID := range c.rooms {
		err := s.registry.Leave(context.WithoutCancel(ctx), roomID, c.user.ID, c.id)
		if err != nil && !errors.Is(err, session.ErrRoomNotFound) && !errors.Is(err, session.ErrNotParticipant) {
			log.Printf("Client %s leave %s failed: %v", c.id, roomID, err)
		}
	}
	c.rooms = nil
}

func (s *Service) sendError(c *client, event, code, message string) {
	s.hub.Send(c.id, session.Event{Name: EventError, Data: ErrorPayload{
		Code:    code,
		Message: message,
		Event:   event,
	}})
}

func errorCode(err error) string {
	var bad badRequest
	switch {
	case errors.As(err, &bad):
		return CodeBadRequest
	case errors.Is(err, session.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, session.ErrNotParticipant):
		return CodeNotParticipant
	case errors.Is(err, ot.ErrInvalidOperation):
		return CodeInvalidOperation
	case errors.Is(err, config.ErrUnknownLanguage):
		return CodeInvalidLanguage
	default:
		return CodeInternal
	}
}

// GetRoomHandler returns the live snapshot of a room.
func (s *Service) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	if !schema.ValidRoomID(roomID) {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	snap, err := s.registry.Snapshot(r.Context(), roomID)
	if errors.Is(err, session.ErrRoomNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Failed to snapshot room %s: %v", roomID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetRoomOperationsHandler returns the room's operation log, oldest first.
func (s *Service) GetRoomOperationsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room_id"]
	ops, err := s.registry.Operations(r.Context(), roomID)
	if errors.Is(err, session.ErrRoomNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roomId": roomID, "operations": ops})
}

// HealthHandler reports liveness and load.
func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"instance":    s.instanceID,
		"rooms":       s.registry.Len(),
		"connections": s.hub.Len(),
	})
}

// LanguagesHandler lists the languages a room may use.
func (s *Service) LanguagesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"default":   s.templates.DefaultLanguage(),
		"languages": s.templates.Languages(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
