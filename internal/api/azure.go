package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/atlasserver/atlasai/internal/logging"
)

// Message represents a chat message
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Tool represents a function/tool that the AI can call
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function represents a function definition
type Function struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

// ToolCall represents a function call from the AI
type ToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ChatRequest represents the Chat Completions API request
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Choice represents a response choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// ChatResponse represents the API response
type ChatResponse struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// AzureErrorResponse represents an Azure API error
type AzureErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// AzureProvider is the Azure OpenAI chat completions adapter
type AzureProvider struct {
	cfg        ProviderConfig
	creds      CredentialResolver
	httpClient *http.Client
	logger     *logging.Logger
}

var _ Provider = (*AzureProvider)(nil)

// NewAzureProvider creates a new Azure OpenAI adapter
func NewAzureProvider(cfg ProviderConfig, opts Options) *AzureProvider {
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	return &AzureProvider{
		cfg:        cfg,
		creds:      opts.Credentials,
		httpClient: logging.NewHTTPClient(0, opts.Logger),
		logger:     opts.Logger,
	}
}

// ID returns the provider id
func (c *AzureProvider) ID() string {
	return c.cfg.ID
}

// APIURL builds the full API URL for chat completions
func (c *AzureProvider) APIURL() string {
	return fmt.Sprintf("%s/openai/v1/chat/completions", c.cfg.Endpoint)
}

// Invoke sends one chat completions request
func (c *AzureProvider) Invoke(ctx context.Context, conversation []Turn, tools []ToolSpec) (*RawOutput, error) {
	if err := requireUserTurn(c.cfg.ID, conversation); err != nil {
		return nil, err
	}
	apiKey, err := resolveSecret(c.cfg, c.creds)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqBody := ChatRequest{
		Model:       c.cfg.Model,
		Messages:    toChatMessages(conversation),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, Tool{
			Type:     "function",
			Function: Function{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL(), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-ms-client-request-id", uuid.NewString())
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, c.cfg.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, c.cfg.ID, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp AzureErrorResponse
		errMsg := fmt.Sprintf("status code %d", resp.StatusCode)
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			errMsg = errResp.Error.Message
		}
		return nil, statusError(c.cfg.ID, resp.StatusCode, "Azure API error: "+errMsg)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, malformed(c.cfg.ID, "failed to parse response: %v", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, malformed(c.cfg.ID, "no choices in response")
	}

	return chatResp.toRawOutput(c.cfg)
}

func (r *ChatResponse) toRawOutput(cfg ProviderConfig) (*RawOutput, error) {
	msg := r.Choices[0].Message
	out := &RawOutput{
		Text:     msg.Content,
		Provider: cfg.ID,
		Model:    cfg.Model,
		Usage:    r.Usage,
	}
	for _, tc := range msg.ToolCalls {
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			return nil, malformed(cfg.ID, "invalid tool call args for %s: %v", tc.Function.Name, err)
		}
		out.ToolCalls = append(out.ToolCalls, ToolRequest{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}

func toChatMessages(conversation []Turn) []Message {
	msgs := make([]Message, 0, len(conversation))
	for _, t := range conversation {
		m := Message{Role: t.Role, Content: t.Content, ToolCallID: t.ToolCallID}
		for _, tc := range t.ToolCalls {
			var call ToolCall
			call.ID = tc.ID
			call.Type = "function"
			call.Function.Name = tc.Name
			call.Function.Arguments = encodeArguments(tc.Arguments)
			m.ToolCalls = append(m.ToolCalls, call)
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// decodeArguments parses the JSON-string arguments of an OpenAI-style call.
func decodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func encodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
