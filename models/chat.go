package models

import (
	"fmt"
	"time"
)

// Sender kinds for chat entries.
const (
	SenderUser   = "user"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

// ChatEntry is one immutable chat record: a user message, an agent reply, or a
// synthetic system event (joined/left/disconnected).
type ChatEntry struct {
	Sender     string    `bson:"sender" json:"sender"` // "user", "agent" or "system"
	SenderName string    `bson:"sender_name" json:"sender_name"`
	Message    string    `bson:"message" json:"message"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	Tokens     int       `bson:"tokens,omitempty" json:"tokens,omitempty"`
}

// ChatDay groups one user's entries for one calendar day. The grouping is a
// storage convenience only: consumers must flatten and re-sort by timestamp,
// never rely on document or array order.
type ChatDay struct {
	ID      string      `bson:"_id" json:"id"` // "{user_id}Chat{MM-DD-YYYY}"
	UserID  string      `bson:"user_id" json:"user_id"`
	Entries []ChatEntry `bson:"chat_history" json:"chat_history"`
}

// ChatDayID builds the per-user-per-day document identifier.
func ChatDayID(userID string, day time.Time) string {
	return fmt.Sprintf("%sChat%s", userID, day.UTC().Format("01-02-2006"))
}

// AgentBinding maps a persona to the identifier the external agent service
// assigned when the agent was provisioned. Bindings are append-only and keyed
// by the persona-derived agent name.
type AgentBinding struct {
	Persona   string `bson:"persona" json:"persona"`
	AgentName string `bson:"agent_name" json:"agent_name"`
	AgentID   string `bson:"agent_id" json:"agent_id"`
}

// AgentIndex is the per-user index document: the user's agent bindings plus
// the ids of the daily chat documents written so far.
type AgentIndex struct {
	ID       string         `bson:"_id" json:"id"` // user id
	Bindings []AgentBinding `bson:"agents" json:"agents"`
	ChatDays []string       `bson:"chat_days" json:"chat_days"`
}

// BindingFor returns the binding for a persona, or nil when the user has none.
func (i *AgentIndex) BindingFor(persona string) *AgentBinding {
	for idx := range i.Bindings {
		if i.Bindings[idx].Persona == persona {
			return &i.Bindings[idx]
		}
	}
	return nil
}
