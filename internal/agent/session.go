package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/tools"
)

// ToolCall records one tool invocation made during a session
type ToolCall struct {
	ID        string           `json:"id"`
	ToolID    string           `json:"tool_id"`
	Arguments map[string]any   `json:"arguments"`
	IssuedBy  int              `json:"issued_by"`
	Result    string           `json:"result,omitempty"`
	Err       *tools.ToolError `json:"-"`
	Latency   time.Duration    `json:"latency"`
}

// Failed reports whether the call failed
func (c ToolCall) Failed() bool {
	return c.Err != nil
}

// Session is the conversation state of one provider branch. It is owned by
// a single goroutine; branches work on clones.
type Session struct {
	ID         string     `json:"id"`
	ProviderID string     `json:"provider_id,omitempty"`
	Turns      []api.Turn `json:"turns"`
	ToolCalls  []ToolCall `json:"tool_calls"`
	StartedAt  time.Time  `json:"started_at"`
	Steps      int        `json:"steps"`
}

// NewSession creates an empty session with a fresh id
func NewSession() *Session {
	return &Session{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
	}
}

// Append adds a turn; turns are never removed
func (s *Session) Append(turn api.Turn) {
	s.Turns = append(s.Turns, turn)
}

// Record adds a tool call record
func (s *Session) Record(call ToolCall) {
	s.ToolCalls = append(s.ToolCalls, call)
}

// ToolTurns counts tool-role turns
func (s *Session) ToolTurns() int {
	n := 0
	for _, t := range s.Turns {
		if t.Role == api.RoleTool {
			n++
		}
	}
	return n
}

// Clone deep-copies the session so a branch can extend it independently.
// The id is kept: every branch belongs to the same invocation.
func (s *Session) Clone() *Session {
	c := &Session{
		ID:         s.ID,
		ProviderID: s.ProviderID,
		StartedAt:  s.StartedAt,
		Steps:      s.Steps,
		Turns:      make([]api.Turn, len(s.Turns)),
		ToolCalls:  make([]ToolCall, len(s.ToolCalls)),
	}
	for i, t := range s.Turns {
		c.Turns[i] = cloneTurn(t)
	}
	for i, call := range s.ToolCalls {
		call.Arguments = cloneArgs(call.Arguments)
		c.ToolCalls[i] = call
	}
	return c
}

func cloneTurn(t api.Turn) api.Turn {
	if len(t.ToolCalls) == 0 {
		return t
	}
	calls := make([]api.ToolRequest, len(t.ToolCalls))
	for i, tc := range t.ToolCalls {
		tc.Arguments = cloneArgs(tc.Arguments)
		calls[i] = tc
	}
	t.ToolCalls = calls
	return t
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
