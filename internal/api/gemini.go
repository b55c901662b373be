package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/atlasserver/atlasai/internal/logging"
)

const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// GeminiProvider calls Google Gemini through the genai SDK.
type GeminiProvider struct {
	cfg    ProviderConfig
	creds  CredentialResolver
	logger *logging.Logger
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a hosted Gemini adapter.
func NewGeminiProvider(cfg ProviderConfig, opts Options) *GeminiProvider {
	return &GeminiProvider{cfg: cfg, creds: opts.Credentials, logger: opts.Logger}
}

// ID returns the provider id
func (p *GeminiProvider) ID() string {
	return p.cfg.ID
}

// Invoke sends one GenerateContent request.
func (p *GeminiProvider) Invoke(ctx context.Context, conversation []Turn, tools []ToolSpec) (*RawOutput, error) {
	if err := requireUserTurn(p.cfg.ID, conversation); err != nil {
		return nil, err
	}
	apiKey, err := resolveSecret(p.cfg, p.creds)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, &ProviderError{Kind: ErrAuthFailure, Provider: p.cfg.ID, Err: errors.New("gemini requires an API key")}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  logging.NewHTTPClient(0, p.logger),
		HTTPOptions: genai.HTTPOptions{BaseURL: p.cfg.Endpoint},
	})
	if err != nil {
		return nil, &ProviderError{Kind: ErrUnavailable, Provider: p.cfg.ID, Err: fmt.Errorf("failed to create client: %w", err)}
	}

	system, rest := splitSystem(conversation)
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if p.cfg.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(p.cfg.Temperature))
	}
	if p.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.cfg.MaxTokens)
	}
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	res, err := client.Models.GenerateContent(ctx, p.cfg.Model, toGenAIContents(rest), cfg)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return nil, malformed(p.cfg.ID, "no candidates in response")
	}

	out := &RawOutput{Provider: p.cfg.ID, Model: p.cfg.Model}
	var text []string
	for _, part := range res.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			text = append(text, part.Text)
		}
	}
	out.Text = strings.Join(text, "\n")
	for _, fc := range res.FunctionCalls() {
		id := fc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		out.ToolCalls = append(out.ToolCalls, ToolRequest{ID: id, Name: fc.Name, Arguments: fc.Args})
	}
	if res.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(res.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(res.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(res.UsageMetadata.TotalTokenCount),
		}
	}
	if out.Text == "" && len(out.ToolCalls) == 0 {
		return nil, malformed(p.cfg.ID, "empty response")
	}

	p.logger.Debug("gemini response", logging.Fields{
		"provider":   p.cfg.ID,
		"model":      p.cfg.Model,
		"tool_calls": len(out.ToolCalls),
		"tokens":     out.Usage.TotalTokens,
	})
	return out, nil
}

func (p *GeminiProvider) classify(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(p.cfg.ID, apiErr.Code, "Gemini API error: "+apiErr.Message)
	}
	return transportError(ctx, p.cfg.ID, err)
}

// toGenAIContents maps turns onto Gemini contents. Tool results go back as
// user-role FunctionResponse parts following the model's FunctionCall turn.
func toGenAIContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleAssistant:
			c := &genai.Content{Role: geminiRoleModel}
			if t.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: t.Content})
			}
			for _, tc := range t.ToolCalls {
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Arguments}})
			}
			contents = append(contents, c)
		case RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       t.ToolCallID,
				Name:     t.ToolName,
				Response: map[string]any{"result": t.Content},
			}}
			// Consecutive tool results share one user content.
			if n := len(contents); n > 0 && contents[n-1].Role == geminiRoleUser && contents[n-1].Parts[0].FunctionResponse != nil {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: geminiRoleUser, Parts: []*genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{Role: geminiRoleUser, Parts: []*genai.Part{{Text: t.Content}}})
		}
	}
	return contents
}
