package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
}

type Client struct {
	Hub            *Hub
	Conn           *websocket.Conn
	Send           chan []byte
	ConnID         string
	UserID         string
	DisplayName    string
	MessageHandler func(*Client, []byte) // Function to handle incoming events
	CloseHandler   func(*Client)         // Invoked once when the connection goes away
	closeOnce      sync.Once
}

// Event is the wire envelope for every realtime message, in both directions.
// Client->server: "join", "leave", "message".
// Server->client: "load_chat_history", "streamed_message", "final_message", "system".
type Event struct {
	Event   string `json:"event"`
	User    string `json:"user,omitempty"`
	Room    string `json:"room,omitempty"`
	Message string `json:"message,omitempty"`
	Persona string `json:"persona,omitempty"`
	Done    bool   `json:"done,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Info("Client registered", "conn_id", client.ConnID, "user_id", client.UserID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			client.closed()
			slog.Info("Client unregistered", "user_id", client.UserID)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID, displayName string) *Client {
	client := &Client{
		Hub:         h,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		ConnID:      uuid.New().String(),
		UserID:      userID,
		DisplayName: displayName,
	}

	h.register <- client
	return client
}

func (c *Client) closed() {
	c.closeOnce.Do(func() {
		if c.CloseHandler != nil {
			c.CloseHandler(c)
		}
	})
}

// SendEvent marshals an event onto the client's send channel. A full or closed
// channel drops the event rather than blocking the caller.
func (c *Client) SendEvent(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal event", "error", err, "event", ev.Event)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			// Send channel already closed by the hub, drop the event.
		}
	}()
	select {
	case c.Send <- payload:
	default:
		slog.Warn("Failed to send event - client channel full", "event", ev.Event, "user_id", c.UserID)
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			break
		}

		if c.MessageHandler != nil {
			c.MessageHandler(c, messageBytes)
		} else {
			slog.Warn("No event handler configured", "user_id", c.UserID)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
