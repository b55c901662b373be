package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled is returned when the caller cancels an invocation.
var ErrCancelled = errors.New("aborted")

// ValidationError reports a request or configuration the orchestrator refuses
// to run.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// Stage names where an invocation stopped
type Stage string

const (
	StageInit       Stage = "init"
	StagePlanning   Stage = "planning"
	StageToolWait   Stage = "tool_wait"
	StageFinalizing Stage = "finalizing"
	StageProviders  Stage = "providers"
)

// OrchestratorError is the terminal failure of Process. It unwraps to every
// cause so errors.Is and errors.As reach ValidationError, ProviderError,
// and ErrCancelled.
type OrchestratorError struct {
	Stage Stage
	Errs  []error
}

func (e *OrchestratorError) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("%s: %v", e.Stage, e.Errs[0])
	}
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%s: %d errors: %s", e.Stage, len(e.Errs), strings.Join(msgs, "; "))
}

func (e *OrchestratorError) Unwrap() []error {
	return e.Errs
}

func fail(stage Stage, errs ...error) *OrchestratorError {
	return &OrchestratorError{Stage: stage, Errs: errs}
}
