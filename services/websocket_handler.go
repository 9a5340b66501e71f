package services

import (
	"context"
	"encoding/json"
	"log/slog"

	ws "github.com/avelkar/aria/backend/websocket"
)

// WebSocketHandler decodes inbound realtime events and routes them to the
// chat relay. One event is handled at a time per connection; the relay's
// pseudo-streaming deliberately blocks that connection's event loop.
type WebSocketHandler struct {
	relay *ChatRelay
}

func NewWebSocketHandler(relay *ChatRelay) *WebSocketHandler {
	return &WebSocketHandler{relay: relay}
}

// HandleEvent processes one client->server event: join, leave or message.
func (h *WebSocketHandler) HandleEvent(client *ws.Client, messageBytes []byte) {
	var ev ws.Event
	if err := json.Unmarshal(messageBytes, &ev); err != nil {
		slog.Error("Failed to unmarshal event", "error", err, "user_id", client.UserID)
		return
	}

	slog.Info("Event received", "event", ev.Event, "user_id", client.UserID, "room", ev.Room)

	ctx := context.Background()
	switch ev.Event {
	case "join":
		h.relay.Join(ctx, client, ev.User, ev.Room)
	case "leave":
		h.relay.Leave(ctx, client, ev.User, ev.Room)
	case "message":
		h.relay.Message(ctx, client, ev.User, ev.Room, ev.Message)
	default:
		slog.Warn("Unknown event", "event", ev.Event, "user_id", client.UserID)
	}
}

// HandleClose runs when the transport closes: the implicit leave.
func (h *WebSocketHandler) HandleClose(client *ws.Client) {
	h.relay.Disconnect(client)
}
