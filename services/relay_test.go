package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelkar/aria/backend/models"
	ws "github.com/avelkar/aria/backend/websocket"
)

type fakeStore struct {
	entries    []models.ChatEntry
	history    []models.ChatEntry
	bindings   map[string]models.AgentBinding
	appendErr  error
	bindingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{bindings: make(map[string]models.AgentBinding)}
}

func (s *fakeStore) AppendEntry(ctx context.Context, userID string, entry models.ChatEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeStore) History(ctx context.Context, userID string) ([]models.ChatEntry, error) {
	return s.history, nil
}

func (s *fakeStore) GetBinding(ctx context.Context, userID, persona string) (*models.AgentBinding, error) {
	if s.bindingErr != nil {
		return nil, s.bindingErr
	}
	if b, ok := s.bindings[persona]; ok {
		return &b, nil
	}
	return nil, nil
}

func (s *fakeStore) SaveBinding(ctx context.Context, userID string, binding models.AgentBinding) error {
	s.bindings[binding.Persona] = binding
	return nil
}

type fakeAgent struct {
	reply        *AgentReply
	sendErr      error
	provisionErr error
	provisioned  []string
	sent         []string
	sentRoles    []string
}

func (a *fakeAgent) Provision(ctx context.Context, name, systemPrompt string) (string, error) {
	if a.provisionErr != nil {
		return "", a.provisionErr
	}
	a.provisioned = append(a.provisioned, name)
	return "agent-" + name, nil
}

func (a *fakeAgent) Send(ctx context.Context, agentID, role, text string) (*AgentReply, error) {
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	a.sent = append(a.sent, text)
	a.sentRoles = append(a.sentRoles, role)
	return a.reply, nil
}

type fakePrefs struct {
	persona string
	err     error
}

func (p *fakePrefs) SelectedPersona(ctx context.Context, userID string) (string, error) {
	return p.persona, p.err
}

func testPersonas() *PersonaStore {
	return &PersonaStore{
		personas: map[string]Persona{
			"jill": {
				Key:            "jill",
				DisplayName:    "Jill",
				SystemPrompt:   "You are Jill.",
				FirstGreeting:  "Hi, I'm Jill.",
				ReturnGreeting: "Welcome back.",
			},
		},
		defaultKey: "jill",
	}
}

func testClient() *ws.Client {
	return &ws.Client{Send: make(chan []byte, 256), UserID: "user-1", DisplayName: "Ada"}
}

// drainEvents decodes everything queued on the client's send channel.
func drainEvents(t *testing.T, c *ws.Client) []ws.Event {
	t.Helper()
	var events []ws.Event
	for {
		select {
		case payload := <-c.Send:
			var ev ws.Event
			require.NoError(t, json.Unmarshal(payload, &ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventsOf(events []ws.Event, name string) []ws.Event {
	var out []ws.Event
	for _, ev := range events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestJoinFirstTimeProvisionsAgentAndGreets(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"Hi, I'm Jill."}, TotalTokens: 5}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)
	client := testClient()

	relay.Join(context.Background(), client, "user-1", "user_room_42")

	require.Len(t, agent.provisioned, 1)
	assert.Equal(t, "Jill42Agent", agent.provisioned[0])
	require.Len(t, agent.sentRoles, 1)
	assert.Equal(t, "system", agent.sentRoles[0])
	assert.Equal(t, "Hi, I'm Jill.", agent.sent[0])

	saved, ok := store.bindings["jill"]
	require.True(t, ok)
	assert.Equal(t, "Jill42Agent", saved.AgentName)
	assert.Equal(t, "agent-Jill42Agent", saved.AgentID)

	events := drainEvents(t, client)
	require.NotEmpty(t, eventsOf(events, "load_chat_history"))
	require.NotEmpty(t, eventsOf(events, "final_message"))
}

func TestJoinExistingBindingUsesReturnGreeting(t *testing.T) {
	store := newFakeStore()
	store.bindings["jill"] = models.AgentBinding{Persona: "jill", AgentName: "Jill42Agent", AgentID: "agent-1"}
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"Welcome back."}}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)

	relay.Join(context.Background(), testClient(), "user-1", "user_room_42")

	assert.Empty(t, agent.provisioned)
	require.Len(t, agent.sent, 1)
	assert.Equal(t, "Welcome back.", agent.sent[0])
}

// A second join for the same user and persona reuses the recorded binding:
// exactly one provisioned agent, ever.
func TestDoubleJoinProvisionsOnce(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"hi"}}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)

	ctx := context.Background()
	first := testClient()
	relay.Join(ctx, first, "user-1", "user_room_42")
	relay.Leave(ctx, first, "user-1", "user_room_42")
	relay.Join(ctx, testClient(), "user-1", "user_room_42")

	assert.Len(t, agent.provisioned, 1)
	assert.Len(t, store.bindings, 1)
}

func TestJoinReplaysSortedHistory(t *testing.T) {
	store := newFakeStore()
	store.history = []models.ChatEntry{
		{Sender: models.SenderUser, SenderName: "Ada", Message: "hello"},
		{Sender: models.SenderAgent, SenderName: "Jill", Message: "hi there"},
	}
	store.bindings["jill"] = models.AgentBinding{Persona: "jill", AgentID: "agent-1"}
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"ok"}}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)
	client := testClient()

	relay.Join(context.Background(), client, "user-1", "user_room_42")

	loads := eventsOf(drainEvents(t, client), "load_chat_history")
	require.Len(t, loads, 1)

	var replayed []models.ChatEntry
	require.NoError(t, json.Unmarshal([]byte(loads[0].Message), &replayed))
	require.Len(t, replayed, 2)
	assert.Equal(t, "hello", replayed[0].Message)
	assert.Equal(t, "hi there", replayed[1].Message)
}

// The streamed characters, the final message and the persisted agent entry
// must all come from the same parsed reply.
func TestStreamedAndFinalTextAgree(t *testing.T) {
	store := newFakeStore()
	store.bindings["jill"] = models.AgentBinding{Persona: "jill", AgentID: "agent-1"}
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"Rain ", "later today."}, TotalTokens: 9}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)
	client := testClient()

	ctx := context.Background()
	relay.Join(ctx, client, "user-1", "user_room_42")
	drainEvents(t, client)
	store.entries = nil

	relay.Message(ctx, client, "user-1", "user_room_42", "weather?")

	events := drainEvents(t, client)
	var streamed string
	for _, ev := range eventsOf(events, "streamed_message") {
		streamed += ev.Message
	}
	finals := eventsOf(events, "final_message")
	require.Len(t, finals, 1)

	assert.Equal(t, "Rain later today.", streamed)
	assert.Equal(t, streamed, finals[0].Message)

	// Persisted entries: the user's message, then the agent's reply with the
	// upstream token count.
	require.Len(t, store.entries, 2)
	assert.Equal(t, models.SenderUser, store.entries[0].Sender)
	assert.Equal(t, CountTokens("weather?"), store.entries[0].Tokens)
	assert.Equal(t, models.SenderAgent, store.entries[1].Sender)
	assert.Equal(t, streamed, store.entries[1].Message)
	assert.Equal(t, 9, store.entries[1].Tokens)
}

func TestStreamDoneMarkerPrecedesFinal(t *testing.T) {
	store := newFakeStore()
	store.bindings["jill"] = models.AgentBinding{Persona: "jill", AgentID: "agent-1"}
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"ok"}}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)
	client := testClient()

	ctx := context.Background()
	relay.Join(ctx, client, "user-1", "user_room_42")
	drainEvents(t, client)

	relay.Message(ctx, client, "user-1", "user_room_42", "hi")

	events := drainEvents(t, client)
	doneAt, finalAt := -1, -1
	for i, ev := range events {
		if ev.Event == "streamed_message" && ev.Done {
			doneAt = i
		}
		if ev.Event == "final_message" {
			finalAt = i
		}
	}
	require.GreaterOrEqual(t, doneAt, 0)
	require.GreaterOrEqual(t, finalAt, 0)
	assert.Less(t, doneAt, finalAt)
}

func TestMessageWithoutJoinIsDropped(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"ok"}}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)
	client := testClient()

	relay.Message(context.Background(), client, "user-1", "user_room_42", "hello?")

	assert.Empty(t, store.entries)
	assert.Empty(t, agent.sent)
	assert.Empty(t, drainEvents(t, client))
}

func TestAgentFailurePersistsNothingForTheReply(t *testing.T) {
	store := newFakeStore()
	store.bindings["jill"] = models.AgentBinding{Persona: "jill", AgentID: "agent-1"}
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"ok"}}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)
	client := testClient()

	ctx := context.Background()
	relay.Join(ctx, client, "user-1", "user_room_42")
	drainEvents(t, client)
	store.entries = nil

	agent.sendErr = errors.New("agent unavailable")
	relay.Message(ctx, client, "user-1", "user_room_42", "hi")

	// The user's message is kept, no agent entry follows and nothing streams.
	require.Len(t, store.entries, 1)
	assert.Equal(t, models.SenderUser, store.entries[0].Sender)
	assert.Empty(t, drainEvents(t, client))
}

func TestProvisionFailureLeavesNoBinding(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{provisionErr: errors.New("quota exceeded")}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)

	relay.Join(context.Background(), testClient(), "user-1", "user_room_42")

	assert.Empty(t, store.bindings)
	assert.Empty(t, agent.sent)
}

func TestLeavePersistsNoticeAndUnbinds(t *testing.T) {
	store := newFakeStore()
	store.bindings["jill"] = models.AgentBinding{Persona: "jill", AgentID: "agent-1"}
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"ok"}}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)
	client := testClient()

	ctx := context.Background()
	relay.Join(ctx, client, "user-1", "user_room_42")
	store.entries = nil

	relay.Leave(ctx, client, "user-1", "user_room_42")

	require.Len(t, store.entries, 1)
	assert.Equal(t, models.SenderSystem, store.entries[0].Sender)
	assert.Contains(t, store.entries[0].Message, "has left")

	// A message after leaving has no session to land in.
	relay.Message(ctx, client, "user-1", "user_room_42", "still there?")
	assert.Len(t, store.entries, 1)
}

func TestDisconnectWithoutBindingIsSilent(t *testing.T) {
	store := newFakeStore()
	relay := NewChatRelay(store, &fakeAgent{}, &fakePrefs{persona: "jill"}, testPersonas(), 0)

	relay.Disconnect(testClient())

	assert.Empty(t, store.entries)
}

func TestDisconnectAfterJoinPersistsNotice(t *testing.T) {
	store := newFakeStore()
	store.bindings["jill"] = models.AgentBinding{Persona: "jill", AgentID: "agent-1"}
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"ok"}}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)
	client := testClient()

	relay.Join(context.Background(), client, "user-1", "user_room_42")
	store.entries = nil

	relay.Disconnect(client)

	require.Len(t, store.entries, 1)
	assert.Equal(t, models.SenderSystem, store.entries[0].Sender)
	assert.Contains(t, store.entries[0].Message, "disconnected")
}

func TestJoinFallsBackToDefaultPersona(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"hi"}}}
	relay := NewChatRelay(store, agent, &fakePrefs{err: errors.New("db down")}, testPersonas(), 0)

	relay.Join(context.Background(), testClient(), "user-1", "user_room_7")

	require.Len(t, agent.provisioned, 1)
	assert.Equal(t, "Jill7Agent", agent.provisioned[0])
}

func TestRoomEventsReachAllMembers(t *testing.T) {
	store := newFakeStore()
	store.bindings["jill"] = models.AgentBinding{Persona: "jill", AgentID: "agent-1"}
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"ok"}}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)

	first := testClient()
	second := &ws.Client{Send: make(chan []byte, 256), UserID: "user-1", DisplayName: "Ada"}

	ctx := context.Background()
	relay.Join(ctx, first, "user-1", "user_room_42")
	relay.Join(ctx, second, "user-1", "user_room_42")
	drainEvents(t, first)
	drainEvents(t, second)

	relay.Message(ctx, first, "user-1", "user_room_42", "hi")

	assert.NotEmpty(t, eventsOf(drainEvents(t, first), "final_message"))
	assert.NotEmpty(t, eventsOf(drainEvents(t, second), "final_message"))
}

func TestAgentNameFor(t *testing.T) {
	tests := []struct {
		persona  string
		room     string
		expected string
	}{
		{"jill", "user_room_42", "Jill42Agent"},
		{"jill", "user_room_7", "Jill7Agent"},
		{"marcus", "room_1", "Marcus1Agent"},
		{"jill", "lobby", "JilllobbyAgent"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, agentNameFor(tt.persona, tt.room))
	}
}

// Full first-visit flow: Ann joins user_room_42 with persona jill and sees
// history, the joined notice, the streamed greeting ending with a done marker
// and exactly one final message.
func TestFirstJoinScenario(t *testing.T) {
	store := newFakeStore()
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"Hi Ann, I'm Jill."}, TotalTokens: 6}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 0)
	client := &ws.Client{Send: make(chan []byte, 256), UserID: "user-1", DisplayName: "Ann"}

	relay.Join(context.Background(), client, "user-1", "user_room_42")

	require.Equal(t, []string{"Jill42Agent"}, agent.provisioned)

	events := drainEvents(t, client)
	require.Equal(t, "load_chat_history", events[0].Event)

	systems := eventsOf(events, "system")
	require.Len(t, systems, 1)
	assert.Equal(t, "Ann has joined", systems[0].Message)

	streamed := eventsOf(events, "streamed_message")
	require.NotEmpty(t, streamed)
	assert.True(t, streamed[len(streamed)-1].Done)

	var text string
	for _, ev := range streamed {
		text += ev.Message
	}
	finals := eventsOf(events, "final_message")
	require.Len(t, finals, 1)
	assert.Equal(t, "Hi Ann, I'm Jill.", text)
	assert.Equal(t, text, finals[0].Message)
	assert.Equal(t, "jill", finals[0].Persona)
}

func TestStreamDelayPacesEmission(t *testing.T) {
	store := newFakeStore()
	store.bindings["jill"] = models.AgentBinding{Persona: "jill", AgentID: "agent-1"}
	agent := &fakeAgent{reply: &AgentReply{Fragments: []string{"abcde"}}}
	relay := NewChatRelay(store, agent, &fakePrefs{persona: "jill"}, testPersonas(), 5*time.Millisecond)
	client := testClient()

	ctx := context.Background()
	relay.Join(ctx, client, "user-1", "user_room_42")
	drainEvents(t, client)

	start := time.Now()
	relay.Message(ctx, client, "user-1", "user_room_42", "hi")
	elapsed := time.Since(start)

	// 5 characters at 5ms apiece.
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
}
