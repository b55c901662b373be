// Package api provides the LLM provider adapters and web search clients.
//
// # Architecture
//
// ## Providers
//
// Every backend implements Provider and is built from a ProviderConfig by
// NewProvider:
//
//   - provider.go: Provider interface, Turn/RawOutput types, factory
//   - errors.go: ProviderError and its kinds (auth, rate limit, unavailable,
//     malformed, timeout)
//   - ollama.go: local Ollama engine over its native /api/chat endpoint
//   - openai.go: OpenAI chat completions via go-openai
//   - gemini.go: Google Gemini via the genai SDK
//   - azure.go: Azure OpenAI chat completions over net/http
//
// Adapters never retry. Retry, backoff, and fallback belong to the agent.
//
// ## Web Search Clients
//
//   - search.go: SearchClient interface, unified response, factory
//   - search_base.go: key rotation and retry shared by keyed backends
//   - keys.go: KeyRotator over comma-separated API key lists
//   - brave.go, tavily.go, duckduckgo.go: backend implementations
//
// # Usage
//
//	p, err := api.NewProvider(api.ProviderConfig{Kind: api.KindOllama}, api.Options{})
//	if err != nil {
//	    // handle error
//	}
//	out, err := p.Invoke(ctx, turns, nil)
//
//	search, err := api.NewSearchClient(api.SearchConfig{Provider: "brave",
//	    BraveKeys: api.NewKeyRotatorFromEnv("BRAVE_API_KEYS")}, logger)
//	results, err := search.Search(ctx, "nginx reload without downtime")
package api
