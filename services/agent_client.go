package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// AgentClient talks to the external conversational-agent service. The service
// is consumed as an opaque REST API: provision an agent, send it a message,
// read back an ordered step list plus usage stats.
type AgentClient struct {
	client *resty.Client
}

// AgentReply is the parsed outcome of one conversational turn: the reply
// fragments extracted from the response's function-call steps, in step order,
// plus the agent's reported token usage. Fragments come out of a single parse
// pass; the final message is always their concatenation.
type AgentReply struct {
	Fragments   []string
	TotalTokens int
}

// Text returns the full reply, the concatenation of all fragments in emission
// order.
func (r *AgentReply) Text() string {
	text := ""
	for _, fragment := range r.Fragments {
		text += fragment
	}
	return text
}

type provisionRequest struct {
	Name   string `json:"name"`
	System string `json:"system"`
}

type provisionResponse struct {
	ID string `json:"id"`
}

type agentMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type messagesRequest struct {
	Messages []agentMessage `json:"messages"`
}

type messagesResponse struct {
	Steps []struct {
		StepType     string `json:"step_type"`
		FunctionCall *struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function_call,omitempty"`
	} `json:"steps"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func NewAgentClient(baseURL, apiKey string, timeout time.Duration) *AgentClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &AgentClient{client: c}
}

// Provision creates a new agent with the given name and persona system prompt
// and returns the identifier the service assigned.
func (a *AgentClient) Provision(ctx context.Context, name, systemPrompt string) (string, error) {
	var out provisionResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(&provisionRequest{Name: name, System: systemPrompt}).
		SetResult(&out).
		Post("/v1/agents")
	if err != nil {
		return "", fmt.Errorf("agent provision request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return "", fmt.Errorf("agent provision status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.ID == "" {
		return "", fmt.Errorf("agent provision returned no id")
	}

	slog.Info("Agent provisioned", "name", name, "agent_id", out.ID)
	return out.ID, nil
}

// Send delivers one message to an agent and parses the reply. Only steps
// tagged as function calls carry user-facing text; each such step's arguments
// JSON holds a "message" field. A step whose arguments fail to parse is
// logged and dropped, and the remaining steps are still processed.
func (a *AgentClient) Send(ctx context.Context, agentID, role, text string) (*AgentReply, error) {
	var out messagesResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(&messagesRequest{Messages: []agentMessage{{Role: role, Text: text}}}).
		SetResult(&out).
		Post(fmt.Sprintf("/v1/agents/%s/messages", agentID))
	if err != nil {
		return nil, fmt.Errorf("agent message request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("agent message status %d: %s", resp.StatusCode(), resp.String())
	}

	reply := &AgentReply{TotalTokens: out.Usage.TotalTokens}
	for _, step := range out.Steps {
		if step.StepType != "function_call" || step.FunctionCall == nil {
			continue
		}
		var args struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(step.FunctionCall.Arguments), &args); err != nil {
			slog.Error("Malformed function-call arguments, dropping fragment",
				"error", err, "agent_id", agentID, "function", step.FunctionCall.Name)
			continue
		}
		reply.Fragments = append(reply.Fragments, args.Message)
	}

	return reply, nil
}

// Deprovision deletes an agent from the external service.
func (a *AgentClient) Deprovision(ctx context.Context, agentID string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/v1/agents/%s", agentID))
	if err != nil {
		return fmt.Errorf("agent deprovision request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("agent deprovision status %d: %s", resp.StatusCode(), resp.String())
	}

	slog.Info("Agent deprovisioned", "agent_id", agentID)
	return nil
}
