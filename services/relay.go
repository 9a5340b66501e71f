package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avelkar/aria/backend/models"
	ws "github.com/avelkar/aria/backend/websocket"
)

// ChatStore is the slice of the chat-log repository the relay needs.
type ChatStore interface {
	AppendEntry(ctx context.Context, userID string, entry models.ChatEntry) error
	History(ctx context.Context, userID string) ([]models.ChatEntry, error)
	GetBinding(ctx context.Context, userID, persona string) (*models.AgentBinding, error)
	SaveBinding(ctx context.Context, userID string, binding models.AgentBinding) error
}

// AgentAPI is the slice of the external agent client the relay needs.
type AgentAPI interface {
	Provision(ctx context.Context, name, systemPrompt string) (string, error)
	Send(ctx context.Context, agentID, role, text string) (*AgentReply, error)
}

// PersonaSource resolves a user's currently selected persona key.
type PersonaSource interface {
	SelectedPersona(ctx context.Context, userID string) (string, error)
}

// roomBinding is one connection's membership: set on join, cleared on leave,
// removed for good on disconnect.
type roomBinding struct {
	UserID      string
	Room        string
	DisplayName string
	Persona     string
}

// ChatRelay bridges websocket connections to the synchronous external agent
// service and fakes incremental delivery of the agent's reply. It owns the
// connection->binding session registry; all access goes through its mutex.
type ChatRelay struct {
	store       ChatStore
	agents      AgentAPI
	prefs       PersonaSource
	personas    *PersonaStore
	streamDelay time.Duration

	mu       sync.Mutex
	sessions map[*ws.Client]roomBinding
}

func NewChatRelay(store ChatStore, agents AgentAPI, prefs PersonaSource, personas *PersonaStore, streamDelay time.Duration) *ChatRelay {
	return &ChatRelay{
		store:       store,
		agents:      agents,
		prefs:       prefs,
		personas:    personas,
		streamDelay: streamDelay,
		sessions:    make(map[*ws.Client]roomBinding),
	}
}

// Join binds the connection to (user, room), replays the user's full sorted
// history to the joining client, announces the join, and lazily provisions an
// agent for the user's selected persona. Provisioning failure is logged, not
// retried; the user is left without a working chat session until the next
// join attempt.
func (r *ChatRelay) Join(ctx context.Context, client *ws.Client, userID, room string) {
	if userID == "" || room == "" {
		slog.Warn("Join with missing user or room", "user_id", userID, "room", room)
		return
	}

	personaKey, err := r.prefs.SelectedPersona(ctx, userID)
	if err != nil || personaKey == "" {
		if err != nil {
			slog.Error("Failed to resolve selected persona, using default", "error", err, "user_id", userID)
		}
		personaKey = r.personas.DefaultKey()
	}
	persona := r.personas.Get(personaKey)

	binding := roomBinding{
		UserID:      userID,
		Room:        room,
		DisplayName: client.DisplayName,
		Persona:     personaKey,
	}
	r.mu.Lock()
	r.sessions[client] = binding
	r.mu.Unlock()

	history, err := r.store.History(ctx, userID)
	if err != nil {
		slog.Error("Failed to load chat history", "error", err, "user_id", userID)
	} else {
		historyJSON, err := json.Marshal(history)
		if err != nil {
			slog.Error("Failed to encode chat history", "error", err, "user_id", userID)
		} else {
			client.SendEvent(ws.Event{Event: "load_chat_history", Room: room, Message: string(historyJSON)})
		}
	}

	notice := fmt.Sprintf("%s has joined", binding.DisplayName)
	r.persistSystemEntry(ctx, userID, binding.DisplayName, notice)
	r.emitRoom(room, ws.Event{Event: "system", Room: room, Message: notice})

	existing, err := r.store.GetBinding(ctx, userID, personaKey)
	if err != nil {
		slog.Error("Failed to look up agent binding", "error", err, "user_id", userID, "persona", personaKey)
		return
	}

	if existing == nil {
		agentName := agentNameFor(personaKey, room)
		agentID, err := r.agents.Provision(ctx, agentName, persona.SystemPrompt)
		if err != nil {
			slog.Error("Agent provisioning failed", "error", err, "user_id", userID, "persona", personaKey, "agent_name", agentName)
			return
		}
		if err := r.store.SaveBinding(ctx, userID, models.AgentBinding{
			Persona:   personaKey,
			AgentName: agentName,
			AgentID:   agentID,
		}); err != nil {
			slog.Error("Failed to save agent binding", "error", err, "user_id", userID, "persona", personaKey)
			return
		}
		r.deliverToAgent(ctx, binding, agentID, persona, "system", persona.FirstGreeting)
		return
	}

	r.deliverToAgent(ctx, binding, existing.AgentID, persona, "system", persona.ReturnGreeting)
}

// Leave persists a "left" system entry and clears the room membership. Missing
// user or room fields make it a no-op.
func (r *ChatRelay) Leave(ctx context.Context, client *ws.Client, userID, room string) {
	if userID == "" || room == "" {
		return
	}

	r.mu.Lock()
	binding, ok := r.sessions[client]
	if ok {
		delete(r.sessions, client)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	notice := fmt.Sprintf("%s has left", binding.DisplayName)
	r.persistSystemEntry(ctx, binding.UserID, binding.DisplayName, notice)
}

// Disconnect is the implicit leave triggered by transport closure. Without a
// recorded binding (a disconnect racing a join) it is a silent no-op.
func (r *ChatRelay) Disconnect(client *ws.Client) {
	r.mu.Lock()
	binding, ok := r.sessions[client]
	if ok {
		delete(r.sessions, client)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	ctx := context.Background()
	notice := fmt.Sprintf("%s disconnected", binding.DisplayName)
	r.persistSystemEntry(ctx, binding.UserID, binding.DisplayName, notice)
	slog.Info("Connection closed", "user_id", binding.UserID, "room", binding.Room)
}

// Message persists the user's message, relays it to the bound agent, and
// pseudo-streams the reply back to the room. A failed agent turn is logged and
// produces no reply and no agent entry.
func (r *ChatRelay) Message(ctx context.Context, client *ws.Client, userID, room, text string) {
	r.mu.Lock()
	binding, ok := r.sessions[client]
	r.mu.Unlock()
	if !ok {
		slog.Warn("Message from connection with no room", "user_id", userID, "room", room)
		return
	}

	entry := models.ChatEntry{
		Sender:     models.SenderUser,
		SenderName: binding.DisplayName,
		Message:    text,
		Timestamp:  time.Now().UTC(),
		Tokens:     CountTokens(text),
	}
	if err := r.store.AppendEntry(ctx, binding.UserID, entry); err != nil {
		slog.Error("Failed to persist user message", "error", err, "user_id", binding.UserID)
	}

	agentBinding, err := r.store.GetBinding(ctx, binding.UserID, binding.Persona)
	if err != nil || agentBinding == nil {
		slog.Error("No agent binding for message", "error", err, "user_id", binding.UserID, "persona", binding.Persona)
		return
	}

	persona := r.personas.Get(binding.Persona)
	r.deliverToAgent(ctx, binding, agentBinding.AgentID, persona, "user", text)
}

// deliverToAgent makes the single synchronous agent call and replays the reply
// into the room: each fragment character by character with a fixed delay, then
// a terminal done event, then one final_message holding the concatenation of
// the streamed fragments, which is also persisted as the agent's entry. The
// emission loop deliberately blocks for the duration of the fake typing.
func (r *ChatRelay) deliverToAgent(ctx context.Context, binding roomBinding, agentID string, persona Persona, role, text string) {
	reply, err := r.agents.Send(ctx, agentID, role, text)
	if err != nil {
		slog.Error("Agent call failed", "error", err, "user_id", binding.UserID, "agent_id", agentID)
		return
	}

	for _, fragment := range reply.Fragments {
		for _, ch := range fragment {
			r.emitRoom(binding.Room, ws.Event{
				Event:   "streamed_message",
				Room:    binding.Room,
				Message: string(ch),
				Persona: persona.Key,
			})
			if r.streamDelay > 0 {
				time.Sleep(r.streamDelay)
			}
		}
	}
	r.emitRoom(binding.Room, ws.Event{
		Event:   "streamed_message",
		Room:    binding.Room,
		Persona: persona.Key,
		Done:    true,
	})

	final := reply.Text()
	r.emitRoom(binding.Room, ws.Event{
		Event:   "final_message",
		Room:    binding.Room,
		Message: final,
		Persona: persona.Key,
	})

	entry := models.ChatEntry{
		Sender:     models.SenderAgent,
		SenderName: persona.DisplayName,
		Message:    final,
		Timestamp:  time.Now().UTC(),
		Tokens:     reply.TotalTokens,
	}
	if err := r.store.AppendEntry(ctx, binding.UserID, entry); err != nil {
		slog.Error("Failed to persist agent reply", "error", err, "user_id", binding.UserID)
	}
}

func (r *ChatRelay) persistSystemEntry(ctx context.Context, userID, senderName, message string) {
	entry := models.ChatEntry{
		Sender:     models.SenderSystem,
		SenderName: senderName,
		Message:    message,
		Timestamp:  time.Now().UTC(),
	}
	if err := r.store.AppendEntry(ctx, userID, entry); err != nil {
		slog.Error("Failed to persist system entry", "error", err, "user_id", userID)
	}
}

// emitRoom fans an event out to every connection currently bound to the room.
func (r *ChatRelay) emitRoom(room string, ev ws.Event) {
	r.mu.Lock()
	members := make([]*ws.Client, 0, len(r.sessions))
	for client, binding := range r.sessions {
		if binding.Room == room {
			members = append(members, client)
		}
	}
	r.mu.Unlock()

	for _, client := range members {
		client.SendEvent(ev)
	}
}

// agentNameFor derives the external agent name from the persona and the room:
// persona "jill" in room "user_room_42" provisions "Jill42Agent".
func agentNameFor(personaKey, room string) string {
	tail := room
	if idx := strings.LastIndex(room, "_"); idx >= 0 {
		tail = room[idx+1:]
	}
	return capitalize(personaKey) + tail + "Agent"
}
