package agent

import (
	"sort"
	"strings"
	"time"

	"github.com/atlasserver/atlasai/internal/validate"
)

// Kind is what the caller wants done with the input
type Kind = validate.Kind

const (
	KindSuggest  = validate.KindSuggest
	KindOptimize = validate.KindOptimize
	KindDebug    = validate.KindDebug
)

// ParseKind parses a kind name
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	return k, k.Valid()
}

// Language selects the language of explanations
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
)

// Valid reports whether l is supported
func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageSpanish
}

// Request is one user request. It is immutable once built: accessors
// return copies.
type Request struct {
	kind       Kind
	rawInput   string
	hints      map[string]string
	language   Language
	projectDir string
	createdAt  time.Time
}

// RequestOption customizes NewRequest
type RequestOption func(*Request)

// WithHints attaches environment hints such as os, shell, or target platform.
func WithHints(hints map[string]string) RequestOption {
	return func(r *Request) {
		for k, v := range hints {
			r.hints[k] = v
		}
	}
}

// WithHint attaches a single hint
func WithHint(key, value string) RequestOption {
	return func(r *Request) {
		r.hints[key] = value
	}
}

// WithLanguage sets the explanation language
func WithLanguage(lang Language) RequestOption {
	return func(r *Request) {
		r.language = lang
	}
}

// WithProjectDir scopes the read-only project tools to dir
func WithProjectDir(dir string) RequestOption {
	return func(r *Request) {
		r.projectDir = dir
	}
}

// NewRequest builds a Request. It does not validate; Process does.
func NewRequest(kind Kind, rawInput string, opts ...RequestOption) Request {
	r := Request{
		kind:      kind,
		rawInput:  rawInput,
		hints:     make(map[string]string),
		language:  LanguageEnglish,
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func (r Request) Kind() Kind { return r.kind }
func (r Request) RawInput() string { return r.rawInput }
func (r Request) Language() Language { return r.language }
func (r Request) ProjectDir() string { return r.projectDir }
func (r Request) CreatedAt() time.Time { return r.createdAt }

// Hints returns a copy of the environment hints
func (r Request) Hints() map[string]string {
	out := make(map[string]string, len(r.hints))
	for k, v := range r.hints {
		out[k] = v
	}
	return out
}

// hintKeys returns hint names in sorted order
func (r Request) hintKeys() []string {
	keys := make([]string, 0, len(r.hints))
	for k := range r.hints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks the request before any provider is contacted.
func (r Request) Validate() error {
	if strings.TrimSpace(r.rawInput) == "" {
		return &ValidationError{Field: "raw_input", Reason: "input is empty"}
	}
	if !r.kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "must be suggest, optimize, or debug"}
	}
	if !r.language.Valid() {
		return &ValidationError{Field: "language", Reason: "must be en or es"}
	}
	return nil
}
