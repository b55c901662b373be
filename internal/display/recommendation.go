package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/atlasserver/atlasai/internal/validate"
)

// Mode selects how a recommendation is printed
type Mode int

const (
	ModeMarkdown Mode = iota
	ModePlain
	ModeJSON
)

var riskStyles = map[validate.Risk]lipgloss.Style{
	validate.RiskSafe:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10")).Padding(0, 1),
	validate.RiskCaution:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")).Padding(0, 1),
	validate.RiskDestructive: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9")).Padding(0, 1),
}

// RiskBadge renders the risk level as a colored label
func RiskBadge(risk validate.Risk) string {
	label := strings.ToUpper(string(risk))
	if style, ok := riskStyles[risk]; ok {
		return style.Render(label)
	}
	return label
}

// RecommendationMarkdown formats rec as Markdown
func RecommendationMarkdown(rec *validate.Recommendation) string {
	var sb strings.Builder
	c := rec.Chosen

	if c.CommandText != "" {
		sb.WriteString("## Command\n\n```bash\n")
		sb.WriteString(c.CommandText)
		sb.WriteString("\n```\n\n")
	}
	if c.Explanation != "" {
		sb.WriteString("## Explanation\n\n")
		sb.WriteString(c.Explanation)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "**Risk:** %s (%s)  \n", c.RiskLevel, validate.RiskDescription(c.RiskLevel))
	fmt.Fprintf(&sb, "**Confidence:** %.0f%%  \n", c.Confidence*100)
	if c.SourceProvider != "" {
		fmt.Fprintf(&sb, "**Provider:** %s  \n", c.SourceProvider)
	}
	if c.ProjectType != "" {
		fmt.Fprintf(&sb, "**Project type:** %s  \n", c.ProjectType)
	}
	if c.Port > 0 {
		fmt.Fprintf(&sb, "**Port:** %d  \n", c.Port)
	}
	if len(c.EnvironmentVars) > 0 {
		sb.WriteString("\n**Environment:**\n\n")
		for _, k := range c.SortedEnv() {
			fmt.Fprintf(&sb, "- `%s=%s`\n", k, c.EnvironmentVars[k])
		}
	}
	if len(c.RiskReasons) > 0 {
		sb.WriteString("\n**Flagged patterns:**\n\n")
		for _, r := range c.RiskReasons {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}

	if len(rec.Alternatives) > 0 {
		sb.WriteString("\n## Alternatives\n\n")
		for i, alt := range rec.Alternatives {
			fmt.Fprintf(&sb, "%d. `%s` (%s, %.0f%%, %s)\n", i+1, alt.CommandText, alt.RiskLevel, alt.Confidence*100, alt.SourceProvider)
		}
	}
	return sb.String()
}

// RecommendationPlain formats rec without any markup
func RecommendationPlain(rec *validate.Recommendation) string {
	var sb strings.Builder
	c := rec.Chosen
	if c.CommandText != "" {
		fmt.Fprintf(&sb, "Command:     %s\n", c.CommandText)
	}
	if c.Explanation != "" {
		fmt.Fprintf(&sb, "Explanation: %s\n", c.Explanation)
	}
	fmt.Fprintf(&sb, "Risk:        %s\n", c.RiskLevel)
	fmt.Fprintf(&sb, "Confidence:  %.2f\n", c.Confidence)
	if c.SourceProvider != "" {
		fmt.Fprintf(&sb, "Provider:    %s\n", c.SourceProvider)
	}
	for _, k := range c.SortedEnv() {
		fmt.Fprintf(&sb, "Env:         %s=%s\n", k, c.EnvironmentVars[k])
	}
	for i, alt := range rec.Alternatives {
		fmt.Fprintf(&sb, "Alternative %d: %s (%s, %.2f, %s)\n", i+1, alt.CommandText, alt.RiskLevel, alt.Confidence, alt.SourceProvider)
	}
	for _, w := range rec.Warnings {
		fmt.Fprintf(&sb, "Warning: %s\n", w)
	}
	return sb.String()
}

// WriteJSON writes v as indented JSON
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderRecommendation prints rec in the given mode. Warnings go to stderr
// in Markdown mode so stdout stays pipeable.
func RenderRecommendation(rec *validate.Recommendation, mode Mode) error {
	switch mode {
	case ModeJSON:
		return WriteJSON(Stdout, rec)
	case ModePlain:
		_, err := fmt.Fprint(Stdout, RecommendationPlain(rec))
		return err
	}

	fmt.Fprintln(Stdout, RiskBadge(rec.Chosen.RiskLevel))
	ShowContentRendered(RecommendationMarkdown(rec))
	for _, w := range rec.Warnings {
		ShowWarning(w)
	}
	return nil
}
