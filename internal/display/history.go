package display

import (
	"fmt"
	"strings"

	"github.com/atlasserver/atlasai/internal/agent"
	"github.com/atlasserver/atlasai/internal/history"
	"github.com/atlasserver/atlasai/internal/settings"
)

const shortIDLen = 8

// ShowHistory prints one line per entry
func ShowHistory(entries []history.Entry) {
	if len(entries) == 0 {
		ShowInfo("No history yet.")
		return
	}
	for _, e := range entries {
		id := e.ID
		if len(id) > shortIDLen {
			id = id[:shortIDLen]
		}
		cmd := e.Command
		if cmd == "" {
			cmd = dimStyle.Render("(no command)")
		}
		fmt.Fprintf(Stdout, "%s  %s  %-8s  %s\n",
			dimStyle.Render(id),
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			e.Kind,
			cmd,
		)
	}
}

// ShowEntry prints a stored entry with its transcript
func ShowEntry(e *history.Entry, sess *agent.Session) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", e.Kind)
	fmt.Fprintf(&sb, "**When:** %s  \n**Provider:** %s  \n**Risk:** %s  \n\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Provider, e.RiskLevel)
	sb.WriteString("## Input\n\n```\n" + e.Input + "\n```\n\n")
	if e.Command != "" {
		sb.WriteString("## Command\n\n```bash\n" + e.Command + "\n```\n\n")
	}
	if e.Explanation != "" {
		sb.WriteString("## Explanation\n\n" + e.Explanation + "\n\n")
	}
	if sess != nil && len(sess.Turns) > 0 {
		sb.WriteString("## Transcript\n\n")
		for _, t := range sess.Turns {
			writeTurn(&sb, t.Role, t.Content, t.ToolName)
		}
	}
	ShowContentRendered(sb.String())
	for _, w := range e.Warnings {
		ShowWarning(w)
	}
}

func writeTurn(sb *strings.Builder, role, content, toolName string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	label := role
	if toolName != "" {
		label = role + " (" + toolName + ")"
	}
	fmt.Fprintf(sb, "**%s**\n\n", label)
	for _, line := range strings.Split(content, "\n") {
		sb.WriteString("> " + line + "\n")
	}
	sb.WriteString("\n")
}

// ShowSafetyRules lists the merged safety rules
func ShowSafetyRules(s settings.Safety) {
	if s.Empty() {
		ShowInfo("No custom safety rules.")
		return
	}
	printRules := func(title string, rules []settings.Rule) {
		if len(rules) == 0 {
			return
		}
		fmt.Fprintln(Stdout, title)
		for _, r := range rules {
			if r.Reason != "" {
				fmt.Fprintf(Stdout, "  %s  %s\n", r.Pattern, dimStyle.Render(r.Reason))
			} else {
				fmt.Fprintf(Stdout, "  %s\n", r.Pattern)
			}
		}
	}
	printRules(RiskBadge("destructive"), s.Destructive)
	printRules(RiskBadge("caution"), s.Caution)
}
