package api

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/atlasserver/atlasai/internal/logging"
)

// OpenAIProvider calls the OpenAI chat completions API through go-openai.
// Endpoint may point at any OpenAI-compatible base URL.
type OpenAIProvider struct {
	cfg    ProviderConfig
	creds  CredentialResolver
	logger *logging.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a hosted OpenAI adapter.
func NewOpenAIProvider(cfg ProviderConfig, opts Options) *OpenAIProvider {
	return &OpenAIProvider{cfg: cfg, creds: opts.Credentials, logger: opts.Logger}
}

// ID returns the provider id
func (p *OpenAIProvider) ID() string {
	return p.cfg.ID
}

func (p *OpenAIProvider) client(apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if p.cfg.Endpoint != "" {
		config.BaseURL = p.cfg.Endpoint
	}
	config.HTTPClient = logging.NewHTTPClient(0, p.logger)
	return openai.NewClientWithConfig(config)
}

// Invoke sends one chat completion request.
func (p *OpenAIProvider) Invoke(ctx context.Context, conversation []Turn, tools []ToolSpec) (*RawOutput, error) {
	if err := requireUserTurn(p.cfg.ID, conversation); err != nil {
		return nil, err
	}
	apiKey, err := resolveSecret(p.cfg, p.creds)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, &ProviderError{Kind: ErrAuthFailure, Provider: p.cfg.ID, Err: errors.New("openai requires an API key")}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:    p.cfg.Model,
		Messages: toOpenAIMessages(conversation),
	}
	if p.cfg.Temperature > 0 {
		req.Temperature = float32(p.cfg.Temperature)
	}
	if p.cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = p.cfg.MaxTokens
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := p.client(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, malformed(p.cfg.ID, "no choices in response")
	}

	msg := resp.Choices[0].Message
	out := &RawOutput{
		Text:     msg.Content,
		Provider: p.cfg.ID,
		Model:    p.cfg.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			return nil, malformed(p.cfg.ID, "invalid tool call args for %s: %v", tc.Function.Name, err)
		}
		out.ToolCalls = append(out.ToolCalls, ToolRequest{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	p.logger.Debug("openai response", logging.Fields{
		"provider":   p.cfg.ID,
		"model":      p.cfg.Model,
		"tool_calls": len(out.ToolCalls),
		"tokens":     out.Usage.TotalTokens,
	})
	return out, nil
}

func (p *OpenAIProvider) classify(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(p.cfg.ID, apiErr.HTTPStatusCode, fmt.Sprintf("OpenAI API error: %s", apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusError(p.cfg.ID, reqErr.HTTPStatusCode, fmt.Sprintf("OpenAI request error: %v", reqErr.Err))
	}
	return transportError(ctx, p.cfg.ID, err)
}

func toOpenAIMessages(conversation []Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(conversation))
	for _, t := range conversation {
		m := openai.ChatCompletionMessage{
			Role:       t.Role,
			Content:    t.Content,
			ToolCallID: t.ToolCallID,
		}
		if t.Role == RoleTool {
			m.Name = t.ToolName
		}
		for _, tc := range t.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: encodeArguments(tc.Arguments),
				},
			})
		}
		msgs = append(msgs, m)
	}
	return msgs
}
