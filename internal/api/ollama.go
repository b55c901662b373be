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

	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/logging"
)

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// OllamaProvider talks to a local Ollama engine through its native chat API.
type OllamaProvider struct {
	cfg        ProviderConfig
	creds      CredentialResolver
	httpClient *http.Client
	logger     *logging.Logger
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates an adapter for a local Ollama engine.
func NewOllamaProvider(cfg ProviderConfig, opts Options) *OllamaProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = constants.DefaultOllamaHost
	}
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	return &OllamaProvider{
		cfg:        cfg,
		creds:      opts.Credentials,
		httpClient: logging.NewHTTPClient(0, opts.Logger),
		logger:     opts.Logger,
	}
}

// ID returns the provider id
func (p *OllamaProvider) ID() string {
	return p.cfg.ID
}

// Invoke sends one non-streaming chat request.
func (p *OllamaProvider) Invoke(ctx context.Context, conversation []Turn, tools []ToolSpec) (*RawOutput, error) {
	if err := requireUserTurn(p.cfg.ID, conversation); err != nil {
		return nil, err
	}
	secret, err := resolveSecret(p.cfg, p.creds)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	reqBody := ollamaChatRequest{
		Model:    p.cfg.Model,
		Messages: toOllamaMessages(conversation),
		Stream:   false,
	}
	for _, t := range tools {
		reqBody.Tools = append(reqBody.Tools, ollamaTool{
			Type:     "function",
			Function: Function{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	options := map[string]any{}
	if p.cfg.Temperature > 0 {
		options["temperature"] = p.cfg.Temperature
	}
	if p.cfg.MaxTokens > 0 {
		options["num_predict"] = p.cfg.MaxTokens
	}
	if len(options) > 0 {
		reqBody.Options = options
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, p.cfg.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, p.cfg.ID, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		errMsg := fmt.Sprintf("status code %d", resp.StatusCode)
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			errMsg = errResp.Error
		}
		// Ollama reports a missing model as 404; the engine is up but cannot serve.
		if resp.StatusCode == http.StatusNotFound {
			return nil, &ProviderError{Kind: ErrUnavailable, Provider: p.cfg.ID, StatusCode: resp.StatusCode, Err: fmt.Errorf("ollama: %s", errMsg)}
		}
		return nil, statusError(p.cfg.ID, resp.StatusCode, "ollama: "+errMsg)
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, malformed(p.cfg.ID, "failed to parse response: %v", err)
	}
	if chatResp.Error != "" {
		return nil, malformed(p.cfg.ID, "ollama: %s", chatResp.Error)
	}

	out := &RawOutput{
		Text:     chatResp.Message.Content,
		Provider: p.cfg.ID,
		Model:    p.cfg.Model,
		Usage: Usage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      chatResp.PromptEvalCount + chatResp.EvalCount,
		},
	}
	for _, tc := range chatResp.Message.ToolCalls {
		// Ollama does not assign call ids.
		out.ToolCalls = append(out.ToolCalls, ToolRequest{
			ID:        "call_" + uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if out.Text == "" && len(out.ToolCalls) == 0 {
		return nil, malformed(p.cfg.ID, "empty response")
	}

	p.logger.Debug("ollama response", logging.Fields{
		"provider":   p.cfg.ID,
		"model":      p.cfg.Model,
		"tool_calls": len(out.ToolCalls),
		"tokens":     out.Usage.TotalTokens,
	})
	return out, nil
}

func toOllamaMessages(conversation []Turn) []ollamaMessage {
	msgs := make([]ollamaMessage, 0, len(conversation))
	for _, t := range conversation {
		m := ollamaMessage{Role: t.Role, Content: t.Content}
		for _, tc := range t.ToolCalls {
			var call ollamaToolCall
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Arguments
			m.ToolCalls = append(m.ToolCalls, call)
		}
		if t.Role == RoleTool {
			m.ToolName = t.ToolName
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// OllamaVersion queries /api/version; used to check the local engine is up.
func OllamaVersion(ctx context.Context, endpoint string, client *http.Client) (string, error) {
	if endpoint == "" {
		endpoint = constants.DefaultOllamaHost
	}
	if client == nil {
		client = &http.Client{Timeout: constants.DefaultHealthTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(endpoint, "/")+"/api/version", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", transportError(ctx, KindOllama, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(KindOllama, resp.StatusCode, fmt.Sprintf("ollama: status code %d", resp.StatusCode))
	}
	var v struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", malformed(KindOllama, "failed to parse version: %v", err)
	}
	return v.Version, nil
}
