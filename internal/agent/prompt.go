package agent

import (
	"fmt"
	"strings"

	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/tools"
)

const answerContract = `When you are done, answer with a single JSON object inside a ` + "```json" + ` block:
{
  "command": "exact shell command to run (empty only when no command applies)",
  "explanation": "why this command, what it does, and what to check afterwards",
  "risk_level": "safe | caution | destructive",
  "confidence": 0.0,
  "type": "project type when relevant (Flask, FastAPI, Django, Express, Go, ...)",
  "port": 0,
  "environment_vars": {"NAME": "value"}
}
Use risk_level "safe" only for read-only or trivially reversible commands, "caution" for
commands that change state, and "destructive" for anything that can lose data.
confidence is a number between 0 and 1. Never hide risky steps outside the command field.`

var taskByKind = map[Kind]string{
	KindSuggest:  "Suggest the single best shell or deployment command for the user's goal on AtlasServer.",
	KindOptimize: "Optimize the user's command or script: make it faster, safer, or more idiomatic while keeping its intent. Return the improved command.",
	KindDebug:    "Diagnose the failing command or log the user pasted. Explain the root cause and, when a command fixes it, return that command.",
}

var languageNote = map[Language]string{
	LanguageEnglish: "",
	LanguageSpanish: "IMPORTANT: write the explanation field in Spanish, while keeping the JSON structure and field names in English.",
}

// systemPrompt encodes kind, hints, language, tools, and the answer contract.
func systemPrompt(req Request, specs []api.ToolSpec) string {
	var sb strings.Builder
	sb.WriteString("You are atlasai, an assistant that helps developers run and deploy software with AtlasServer.\n")
	sb.WriteString(taskByKind[req.Kind()])
	sb.WriteString("\n")

	if keys := req.hintKeys(); len(keys) > 0 {
		sb.WriteString("\nEnvironment:\n")
		hints := req.Hints()
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, hints[k])
		}
	}

	if len(specs) > 0 {
		sb.WriteString("\nYou may call these tools before answering:\n")
		for _, s := range specs {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
		}
		if hasTool(specs, tools.ListDirectoryName) {
			sb.WriteString("Start by listing the project root, then read key files such as main.py, requirements.txt, package.json, go.mod, or Dockerfile.\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(answerContract)
	if note := languageNote[req.Language()]; note != "" {
		sb.WriteString("\n\n")
		sb.WriteString(note)
	}
	return sb.String()
}

// userPrompt frames the raw input for the request kind
func userPrompt(req Request) string {
	input := strings.TrimSpace(req.RawInput())
	switch req.Kind() {
	case KindOptimize:
		return "Optimize this:\n```\n" + input + "\n```"
	case KindDebug:
		return "Help me fix this:\n```\n" + input + "\n```"
	default:
		return input
	}
}

func hasTool(specs []api.ToolSpec, name string) bool {
	for _, s := range specs {
		if s.Name == name {
			return true
		}
	}
	return false
}
