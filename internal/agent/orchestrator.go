// Package agent runs the request pipeline: it plans with one or more LLM
// providers, serves their tool calls, and turns the final answers into a
// ranked recommendation.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/logging"
	"github.com/atlasserver/atlasai/internal/tools"
	"github.com/atlasserver/atlasai/internal/validate"
)

// State is a step of the per-branch state machine
type State int

const (
	StateInit State = iota
	StatePlanning
	StateToolWait
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePlanning:
		return "planning"
	case StateToolWait:
		return "tool_wait"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ProviderFactory builds a provider from its config
type ProviderFactory func(cfg api.ProviderConfig) (api.Provider, error)

// Options holds the orchestrator's collaborators
type Options struct {
	// Providers builds adapters; defaults to api.NewProvider with Credentials.
	Providers   ProviderFactory
	Credentials api.CredentialResolver
	// Search backs the web_search tool; nil disables it.
	Search api.SearchClient
	Logger *logging.Logger
	// Sleep replaces the retry wait; used by tests.
	Sleep SleepFunc
}

// Orchestrator processes requests. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	providers ProviderFactory
	search    api.SearchClient
	logger    *logging.Logger
	sleep     SleepFunc
}

// New creates an Orchestrator
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Providers == nil {
		creds, logger := opts.Credentials, opts.Logger
		opts.Providers = func(cfg api.ProviderConfig) (api.Provider, error) {
			return api.NewProvider(cfg, api.Options{Credentials: creds, Logger: logger})
		}
	}
	return &Orchestrator{
		providers: opts.Providers,
		search:    opts.Search,
		logger:    opts.Logger,
		sleep:     opts.Sleep,
	}
}

// branchResult is the outcome of one provider branch
type branchResult struct {
	providerID string
	candidate  validate.Candidate
	session    *Session
	warnings   []string
	err        error
}

// Process runs req against the providers in cfg and returns the ranked
// recommendation together with the session that produced the chosen answer.
func (o *Orchestrator) Process(ctx context.Context, req Request, cfg Config) (*validate.Recommendation, *Session, error) {
	if ctx.Err() != nil {
		return nil, nil, fail(StageInit, ErrCancelled)
	}
	if err := req.Validate(); err != nil {
		return nil, nil, fail(StageInit, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fail(StageInit, err)
	}

	var search api.SearchClient
	if cfg.WebSearch {
		search = o.search
	}
	gateway, err := tools.Setup(tools.Options{Timeout: cfg.ToolTimeout, Logger: o.logger}, search, req.ProjectDir())
	if err != nil {
		return nil, nil, fail(StageInit, &ValidationError{Field: "project_dir", Reason: err.Error()})
	}

	base := NewSession()
	base.Append(api.Turn{Role: api.RoleSystem, Content: systemPrompt(req, gateway.Specs())})
	base.Append(api.Turn{Role: api.RoleUser, Content: userPrompt(req)})

	log := o.logger.WithFields(logging.Fields{"session": base.ID, "kind": string(req.Kind())})
	log.Debug("state transition", logging.Fields{"from": StateInit.String(), "to": StatePlanning.String()})

	if cfg.MultiProvider && len(cfg.Providers) > 1 {
		return o.fanOut(ctx, req, cfg, gateway, base, log)
	}
	return o.fallback(ctx, req, cfg, gateway, base, log)
}

// fallback tries providers in preference order until one succeeds.
func (o *Orchestrator) fallback(ctx context.Context, req Request, cfg Config, gw *tools.Gateway, base *Session, log *logging.Logger) (*validate.Recommendation, *Session, error) {
	var warnings []string
	var errs []error

	for _, pcfg := range cfg.Providers {
		res := o.runBranch(ctx, req, cfg, pcfg.Normalize(), gw, base.Clone(), log)
		if errors.Is(res.err, ErrCancelled) {
			return nil, nil, fail(StagePlanning, ErrCancelled)
		}
		warnings = append(warnings, res.warnings...)
		if res.err != nil {
			errs = append(errs, res.err)
			warnings = append(warnings, failureWarning(res.providerID, res.err))
			log.Warn("provider failed, falling back", logging.Fields{"provider": res.providerID, "error": res.err.Error()})
			continue
		}

		rec, err := validate.Rank([]validate.Candidate{res.candidate}, cfg.Preference())
		if err != nil {
			return nil, nil, fail(StageFinalizing, err)
		}
		return withWarnings(rec, warnings), res.session, nil
	}

	return nil, nil, fail(StageProviders, errs...)
}

// fanOut runs one branch per provider concurrently and ranks every answer.
func (o *Orchestrator) fanOut(ctx context.Context, req Request, cfg Config, gw *tools.Gateway, base *Session, log *logging.Logger) (*validate.Recommendation, *Session, error) {
	results := make([]branchResult, len(cfg.Providers))

	var wg sync.WaitGroup
	for i, pcfg := range cfg.Providers {
		wg.Add(1)
		go func(i int, pcfg api.ProviderConfig, sess *Session) {
			defer wg.Done()
			results[i] = o.runBranch(ctx, req, cfg, pcfg, gw, sess, log)
		}(i, pcfg.Normalize(), base.Clone())
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, nil, fail(StagePlanning, ErrCancelled)
	}

	var warnings []string
	var errs []error
	var candidates []validate.Candidate
	sessions := make(map[string]*Session)
	for _, res := range results {
		warnings = append(warnings, res.warnings...)
		if res.err != nil {
			errs = append(errs, res.err)
			warnings = append(warnings, failureWarning(res.providerID, res.err))
			continue
		}
		candidates = append(candidates, res.candidate)
		sessions[res.providerID] = res.session
	}
	if len(candidates) == 0 {
		return nil, nil, fail(StageProviders, errs...)
	}

	rec, err := validate.Rank(candidates, cfg.Preference())
	if err != nil {
		return nil, nil, fail(StageFinalizing, err)
	}
	return withWarnings(rec, warnings), sessions[rec.Chosen.SourceProvider], nil
}

// runBranch drives the state machine for one provider on its own session.
func (o *Orchestrator) runBranch(ctx context.Context, req Request, cfg Config, pcfg api.ProviderConfig, gw *tools.Gateway, sess *Session, parent *logging.Logger) branchResult {
	res := branchResult{providerID: pcfg.ID, session: sess}
	sess.ProviderID = pcfg.ID
	log := parent.WithFields(logging.Fields{"provider": pcfg.ID})

	provider, err := o.providers(pcfg)
	if err != nil {
		res.err = err
		return res
	}

	retrier := NewRetrier(pcfg.MaxRetries, o.sleep, func(attempt int, wait time.Duration, err error) {
		log.Warn("retrying provider call", logging.Fields{"attempt": attempt, "wait_ms": wait.Milliseconds(), "error": err.Error()})
	})

	maxSteps := cfg.maxSteps()
	state := StatePlanning
	var out *api.RawOutput

	transition := func(next State) {
		log.Debug("state transition", logging.Fields{"from": state.String(), "to": next.String(), "step": sess.Steps})
		state = next
	}

	for {
		if ctx.Err() != nil {
			res.err = ErrCancelled
			return res
		}

		switch state {
		case StatePlanning:
			sess.Steps++
			specs := gw.Specs()
			if sess.Steps >= maxSteps {
				specs = nil
			}
			out, err = WithRetry(ctx, retrier, func() (*api.RawOutput, error) {
				return provider.Invoke(ctx, sess.Turns, specs)
			})
			if err != nil {
				if ctx.Err() != nil {
					res.err = ErrCancelled
					return res
				}
				res.err = err
				transition(StateFailed)
				return res
			}
			sess.Append(api.Turn{Role: api.RoleAssistant, Content: out.Text, ToolCalls: out.ToolCalls})

			switch {
			case !out.HasToolCalls():
				transition(StateFinalizing)
			case sess.Steps >= maxSteps:
				res.warnings = append(res.warnings, fmt.Sprintf("%s: reasoning truncated after %d steps", pcfg.ID, maxSteps))
				transition(StateFinalizing)
			default:
				transition(StateToolWait)
			}

		case StateToolWait:
			for _, call := range out.ToolCalls {
				record, err := o.runTool(ctx, gw, call, sess.Steps)
				if err != nil {
					res.err = ErrCancelled
					return res
				}
				if record.Failed() {
					res.warnings = append(res.warnings, fmt.Sprintf("tool %s failed: %v", record.ToolID, record.Err.Kind))
				}
				sess.Record(record)
				sess.Append(api.Turn{Role: api.RoleTool, Content: record.Result, ToolCallID: call.ID, ToolName: call.Name})
			}
			transition(StatePlanning)

		case StateFinalizing:
			cand, err := validate.Validate(req.Kind(), out.Text, cfg.Safety)
			if err != nil {
				res.err = fmt.Errorf("provider %s: %w", pcfg.ID, err)
				transition(StateFailed)
				return res
			}
			cand.SourceProvider = pcfg.ID
			res.candidate = cand
			transition(StateDone)
			return res
		}
	}
}

// runTool invokes one tool call. Only cancellation is returned as an
// error; tool failures are annotated on the record.
func (o *Orchestrator) runTool(ctx context.Context, gw *tools.Gateway, call api.ToolRequest, step int) (ToolCall, error) {
	record := ToolCall{
		ID:        call.ID,
		ToolID:    call.Name,
		Arguments: cloneArgs(call.Arguments),
		IssuedBy:  step,
	}

	start := time.Now()
	result, err := gw.Invoke(ctx, call.Name, call.Arguments)
	record.Latency = time.Since(start)

	if err != nil {
		var te *tools.ToolError
		if !errors.As(err, &te) {
			return record, ErrCancelled
		}
		record.Err = te
		record.Result = fmt.Sprintf("Error: %v. Continue without this tool result.", te)
		return record, nil
	}
	record.Result = result.Text
	return record, nil
}

func failureWarning(providerID string, err error) string {
	var pe *api.ProviderError
	if errors.As(err, &pe) {
		return fmt.Sprintf("provider %s failed: %s", providerID, pe.Kind)
	}
	var ve *validate.ValidationError
	if errors.As(err, &ve) {
		return fmt.Sprintf("provider %s returned an unusable answer: %s", providerID, ve.Reason)
	}
	return fmt.Sprintf("provider %s failed: %v", providerID, err)
}

// withWarnings puts branch warnings ahead of the ranker's own
func withWarnings(rec *validate.Recommendation, warnings []string) *validate.Recommendation {
	ranked := rec.Warnings
	rec.Warnings = []string{}
	for _, w := range warnings {
		rec.AddWarning(w)
	}
	for _, w := range ranked {
		rec.AddWarning(w)
	}
	return rec
}
