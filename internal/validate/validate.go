// Package validate turns raw model output into typed candidates and ranks
// them into a recommendation. Everything here is pure: no I/O, no clocks.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/settings"
)

// Kind is the request kind a candidate answers
type Kind string

const (
	KindSuggest  Kind = "suggest"
	KindOptimize Kind = "optimize"
	KindDebug    Kind = "debug"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindSuggest || k == KindOptimize || k == KindDebug
}

// RequiresCommand reports whether answers of this kind must carry a command
func (k Kind) RequiresCommand() bool {
	return k != KindDebug
}

// Candidate is one provider's proposed answer
type Candidate struct {
	CommandText     string            `json:"command"`
	Explanation     string            `json:"explanation"`
	RiskLevel       Risk              `json:"risk_level"`
	Confidence      float64           `json:"confidence"`
	SourceProvider  string            `json:"source_provider"`
	ProjectType     string            `json:"type,omitempty"`
	Port            int               `json:"port,omitempty"`
	EnvironmentVars map[string]string `json:"environment_vars,omitempty"`
	RiskReasons     []string          `json:"risk_reasons,omitempty"`
}

// ValidationError reports model output that cannot become a Candidate
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid model output: " + e.Reason
	}
	return fmt.Sprintf("invalid model output: %s: %s", e.Field, e.Reason)
}

var (
	thinkBlock     = regexp.MustCompile(`(?is)<think>.*?</think>`)
	jsonFence      = regexp.MustCompile("(?is)```json[ \\t]*\\n?(.*?)```")
	anyFence       = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)[ \\t]*\\n?(.*?)```")
	inlineSpan     = regexp.MustCompile("`([^`\\n]+)`")
	shellLanguages = map[string]bool{"": true, "sh": true, "bash": true, "shell": true, "zsh": true, "console": true, "powershell": true, "ps1": true, "cmd": true}
)

// StripThinking removes <think>...</think> reasoning blocks. An unclosed
// leading block (a closing tag without an opening one) is cut as well.
func StripThinking(raw string) string {
	out := thinkBlock.ReplaceAllString(raw, "")
	if idx := strings.LastIndex(strings.ToLower(out), "</think>"); idx >= 0 {
		out = out[idx+len("</think>"):]
	}
	return strings.TrimSpace(out)
}

// Validate extracts a Candidate from raw model output. The declared risk is
// raised to whatever the classifier finds in the command, fenced blocks, and
// inline code spans. The explanation and surrounding prose are scanned for
// destructive patterns too. Risk is never lowered.
func Validate(kind Kind, raw string, rules settings.Safety) (Candidate, error) {
	if !kind.Valid() {
		return Candidate{}, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}

	text := StripThinking(raw)
	if text == "" {
		return Candidate{}, &ValidationError{Reason: "empty response"}
	}

	cand, err := extract(kind, text)
	if err != nil {
		return Candidate{}, err
	}

	if kind.RequiresCommand() && strings.TrimSpace(cand.CommandText) == "" {
		return Candidate{}, &ValidationError{Field: "command", Reason: fmt.Sprintf("empty command for %s", kind)}
	}

	prose := anyFence.ReplaceAllString(text, "")
	code := append([]string{cand.CommandText}, fencedBlocks(text)...)
	code = append(code, inlineCode(prose)...)

	classifier := NewClassifier(rules)
	class := classifier.Classify(code...).Merge(classifier.ClassifyProse(cand.Explanation, prose))
	cand.RiskLevel = MaxRisk(cand.RiskLevel, class.Level)
	cand.RiskReasons = class.Reasons

	return cand, nil
}

func extract(kind Kind, text string) (Candidate, error) {
	if obj, ok := findJSON(text); ok {
		return fromObject(obj)
	}

	cand := Candidate{
		RiskLevel:  RiskCaution,
		Confidence: constants.DefaultConfidence,
	}
	if cmd := extractCodeBlock(text); cmd != "" {
		cand.CommandText = cmd
		cand.Explanation = strings.TrimSpace(anyFence.ReplaceAllString(text, ""))
		return cand, nil
	}
	if cmd := extractCommandLine(text); cmd != "" {
		cand.CommandText = cmd
		cand.Explanation = strings.TrimSpace(removeCommandLine(text))
		return cand, nil
	}
	if kind == KindDebug {
		cand.Explanation = text
		return cand, nil
	}
	return Candidate{}, &ValidationError{Reason: "no JSON answer, code block, or command line found"}
}

// findJSON looks for a ```json fence first, then for the first bare
// object that decodes.
func findJSON(text string) (map[string]any, bool) {
	for _, m := range jsonFence.FindAllStringSubmatch(text, -1) {
		if obj, ok := decodeObject(m[1]); ok {
			return obj, true
		}
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if obj, ok := decodeObject(text[i:]); ok {
			return obj, true
		}
	}
	return nil, false
}

// decodeObject decodes the first JSON object in s, ignoring trailing text
func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func fromObject(obj map[string]any) (Candidate, error) {
	cand := Candidate{
		RiskLevel:  RiskCaution,
		Confidence: constants.DefaultConfidence,
	}

	switch v := obj["command"].(type) {
	case string:
		cand.CommandText = strings.TrimSpace(v)
	case []any:
		var parts []string
		for _, p := range v {
			if s, ok := p.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		cand.CommandText = strings.Join(parts, " && ")
	case nil:
	default:
		return Candidate{}, &ValidationError{Field: "command", Reason: "must be a string"}
	}

	cand.Explanation = stringField(obj, "explanation")
	if cand.Explanation == "" {
		cand.Explanation = stringField(obj, "reasoning")
	}

	if v, ok := obj["risk_level"]; ok && v != nil {
		s, _ := v.(string)
		risk := Risk(strings.ToLower(strings.TrimSpace(s)))
		if !risk.Valid() {
			return Candidate{}, &ValidationError{Field: "risk_level", Reason: fmt.Sprintf("%v is not one of safe, caution, destructive", v)}
		}
		cand.RiskLevel = risk
	}

	if v, ok := obj["confidence"]; ok && v != nil {
		c, err := toFloat(v)
		if err != nil || math.IsNaN(c) {
			return Candidate{}, &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%v is not a number", v)}
		}
		if c < 0 || c > 1 {
			return Candidate{}, &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%v is outside [0,1]", v)}
		}
		cand.Confidence = c
	}

	cand.ProjectType = stringField(obj, "type")
	if v, ok := obj["port"]; ok && v != nil {
		if p, err := toFloat(v); err == nil && p > 0 && p < 65536 {
			cand.Port = int(p)
		}
	}
	cand.EnvironmentVars = envVars(obj["environment_vars"])

	return cand, nil
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

// envVars accepts {"K": "V"} or ["K=V"]
func envVars(v any) map[string]string {
	out := map[string]string{}
	switch vars := v.(type) {
	case map[string]any:
		for k, val := range vars {
			if val == nil {
				out[k] = ""
				continue
			}
			out[k] = fmt.Sprint(val)
		}
	case []any:
		for _, item := range vars {
			s, ok := item.(string)
			if !ok {
				continue
			}
			k, val, _ := strings.Cut(s, "=")
			if k = strings.TrimSpace(k); k != "" {
				out[k] = strings.TrimSpace(val)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// fencedBlocks returns the bodies of all fenced code blocks in order
func fencedBlocks(text string) []string {
	var blocks []string
	for _, m := range anyFence.FindAllStringSubmatch(text, -1) {
		blocks = append(blocks, m[2])
	}
	return blocks
}

// inlineCode returns the contents of single-backtick spans
func inlineCode(text string) []string {
	var spans []string
	for _, m := range inlineSpan.FindAllStringSubmatch(text, -1) {
		spans = append(spans, m[1])
	}
	return spans
}

// extractCodeBlock returns the first shell-like fenced block
func extractCodeBlock(text string) string {
	for _, m := range anyFence.FindAllStringSubmatch(text, -1) {
		if !shellLanguages[strings.ToLower(m[1])] {
			continue
		}
		var lines []string
		for _, line := range strings.Split(strings.TrimSpace(m[2]), "\n") {
			line = strings.TrimPrefix(strings.TrimSpace(line), "$ ")
			if line != "" && !strings.HasPrefix(line, "#") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}
	return ""
}

func extractCommandLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "command:") {
			return strings.Trim(strings.TrimSpace(line[len("command:"):]), "`")
		}
	}
	return ""
}

func removeCommandLine(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "command:") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// SortedEnv returns environment variable names in sorted order
func (c Candidate) SortedEnv() []string {
	keys := make([]string, 0, len(c.EnvironmentVars))
	for k := range c.EnvironmentVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
