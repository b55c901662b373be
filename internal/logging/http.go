package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// maxTracedBody caps how much of a request or response body is logged.
const maxTracedBody = 8 * 1024

const redacted = "[REDACTED]"

// NewHTTPClient returns an http.Client with the given timeout. When the
// logger has debug enabled, every exchange is traced with credentials
// redacted from headers, query strings, and JSON bodies.
func NewHTTPClient(timeout time.Duration, logger *Logger) *http.Client {
	client := &http.Client{Timeout: timeout}
	if logger != nil && logger.Enabled(LevelDebug) {
		client.Transport = &tracingTransport{next: http.DefaultTransport, logger: logger}
	}
	return client
}

// tracingTransport logs one line per outbound call and one per reply.
// Lines of the same exchange share an "http_seq" number.
type tracingTransport struct {
	next   http.RoundTripper
	logger *Logger
	seq    atomic.Int64
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	log := t.logger.WithFields(Fields{"http_seq": t.seq.Add(1)})
	start := time.Now()

	fields := Fields{
		"method":  req.Method,
		"url":     redactURL(req.URL),
		"headers": redactHeaders(req.Header),
	}
	if req.Body != nil && req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			data, _ := io.ReadAll(io.LimitReader(body, maxTracedBody+1))
			_ = body.Close()
			fields["body"] = traceBody(data)
		}
	}
	log.Debug("http request", fields)

	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("http request failed", err, Fields{"duration_ms": elapsed})
		return nil, err
	}

	// Replace the body with a buffered copy so the caller still reads it all.
	data, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))

	fields = Fields{
		"status":      resp.StatusCode,
		"duration_ms": elapsed,
		"body":        traceBody(data),
	}
	if readErr != nil {
		fields["read_error"] = readErr.Error()
	}
	log.Debug("http response", fields)
	return resp, nil
}

// traceBody returns parsed, redacted JSON when the body is small valid JSON,
// and truncated text otherwise.
func traceBody(body []byte) any {
	if len(body) == 0 {
		return ""
	}
	if len(body) <= maxTracedBody {
		var parsed any
		if json.Unmarshal(body, &parsed) == nil {
			return redactJSON(parsed)
		}
		return string(body)
	}
	return string(body[:maxTracedBody]) + "...[truncated]"
}

var sensitiveHeaders = map[string]bool{
	"authorization":        true,
	"api-key":              true,
	"x-api-key":            true,
	"x-goog-api-key":       true,
	"x-auth-token":         true,
	"x-subscription-token": true,
	"cookie":               true,
	"set-cookie":           true,
}

func redactHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for k, v := range h {
		switch {
		case sensitiveHeaders[strings.ToLower(k)]:
			headers[k] = redacted
		case len(v) > 0:
			headers[k] = v[0]
		}
	}
	return headers
}

// redactURL masks query parameters that carry credentials (Gemini's ?key=).
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	changed := false
	for k := range q {
		if isSensitiveKey(k) || strings.EqualFold(k, "key") {
			q.Set(k, redacted)
			changed = true
		}
	}
	if !changed {
		return u.String()
	}
	clone := *u
	clone.RawQuery = q.Encode()
	return clone.String()
}

var sensitiveKeys = []string{"api_key", "apikey", "api-key", "password", "secret", "token", "auth"}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// redactJSON masks values under sensitive keys at any depth. Token counts
// in usage blocks are numbers and stay visible.
func redactJSON(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if _, isNum := val.(float64); isSensitiveKey(k) && !isNum {
				out[k] = redacted
				continue
			}
			out[k] = redactJSON(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactJSON(item)
		}
		return out
	default:
		return data
	}
}
