package validate

import (
	"regexp"
	"strings"

	"github.com/atlasserver/atlasai/internal/settings"
)

// Risk is the declared or classified risk of a command
type Risk string

const (
	// RiskSafe commands are read-only or trivially reversible
	RiskSafe Risk = "safe"
	// RiskCaution commands modify state and should be reviewed
	RiskCaution Risk = "caution"
	// RiskDestructive commands can destroy data or systems
	RiskDestructive Risk = "destructive"
)

// Rank orders risks: safe < caution < destructive. Unknown values sort last.
func (r Risk) Rank() int {
	switch r {
	case RiskSafe:
		return 0
	case RiskCaution:
		return 1
	case RiskDestructive:
		return 2
	default:
		return 3
	}
}

// Valid reports whether r is one of the declared risk levels
func (r Risk) Valid() bool {
	return r == RiskSafe || r == RiskCaution || r == RiskDestructive
}

// MaxRisk returns the more severe of a and b
func MaxRisk(a, b Risk) Risk {
	if b.Rank() > a.Rank() && b.Valid() {
		return b
	}
	return a
}

type riskPattern struct {
	re     *regexp.Regexp
	reason string
}

// Building blocks for the rm and find patterns. Flags may be short, long,
// or split (-r -f, --recursive --force), and a target may be quoted or
// backticked, as in sh -c 'rm -rf /' or rm -rf "/".
const (
	anyFlags   = `(?:-{1,2}[\w-]+\s+)*`
	recursive  = `(?:-[a-zA-Z]*[rR][a-zA-Z]*|--recursive)\s+`
	quote      = "[\"'`]?"
	argEnd     = quote + `(?:[\s;&|)]|$)`
	systemDirs = `(?:bin|boot|dev|etc|home|lib|lib64|opt|root|sbin|srv|usr|var)`
)

// Destructive patterns force RiskDestructive regardless of what the model declared.
var destructivePatterns = []riskPattern{
	{regexp.MustCompile(`\brm\s+` + anyFlags + quote + `/\*?` + argEnd), "deletes the root filesystem"},
	{regexp.MustCompile(`\brm\s+` + anyFlags + recursive + anyFlags + quote + `(?:~|\$HOME|\$\{HOME\}|\*|\.\*|/\*)/?` + argEnd), "recursive delete of home or everything"},
	{regexp.MustCompile(`\brm\s+` + anyFlags + recursive + anyFlags + quote + `/` + systemDirs + `/?` + argEnd), "recursive delete of a system directory"},
	{regexp.MustCompile(`\bfind\s+` + quote + `(?:/|/` + systemDirs + `/?|~/?|\$HOME/?)` + quote + `\s.*(?:-delete\b|-exec\s+rm\b)`), "deletes files across the root filesystem"},
	{regexp.MustCompile(`\bdd\s+.*\bof=/dev/`), "raw write to a block device"},
	{regexp.MustCompile(`\bmkfs(\.\w+)?\b`), "formats a filesystem"},
	{regexp.MustCompile(`>\s*/dev/(sd[a-z]|nvme\d|hd[a-z]|xvd[a-z])`), "writes to a block device"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), "fork bomb"},
	{regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(sudo\s+)?(sh|bash|zsh)\b`), "pipes a remote script into a shell"},
	{regexp.MustCompile(`\bchmod\s+(-[a-zA-Z]*R[a-zA-Z]*\s+|--recursive\s+)[0-7]*777\s+` + quote + `/` + argEnd), "recursive chmod 777 on root"},
	{regexp.MustCompile(`\bchown\s+(-[a-zA-Z]*R[a-zA-Z]*|--recursive)\s+\S+\s+` + quote + `/` + argEnd), "recursive chown on root"},
	{regexp.MustCompile(`(?i)\bdrop\s+(database|schema)\b`), "drops a database"},
	{regexp.MustCompile(`\bkubectl\s+delete\s+(ns|namespace|namespaces)\b`), "deletes a Kubernetes namespace"},
	{regexp.MustCompile(`\bkubectl\s+delete\s+.*--all\b`), "deletes all Kubernetes resources of a kind"},
	{regexp.MustCompile(`\bdocker\s+system\s+prune\b.*(-a\b|--all\b).*--volumes\b|\bdocker\s+system\s+prune\b.*--volumes\b.*(-a\b|--all\b)`), "prunes all Docker data including volumes"},
	{regexp.MustCompile(`\bterraform\s+destroy\b`), "destroys Terraform-managed infrastructure"},
	{regexp.MustCompile(`\bgit\s+clean\s+-[a-zA-Z]*f[a-zA-Z]*d|\bgit\s+clean\s+-[a-zA-Z]*d[a-zA-Z]*f`), "deletes untracked files"},
	{regexp.MustCompile(`\bshred\b`), "irrecoverably overwrites files"},
	{regexp.MustCompile(`\bwipefs\b`), "wipes filesystem signatures"},
}

// Caution patterns raise a safe command to RiskCaution.
var cautionPatterns = []riskPattern{
	{regexp.MustCompile(`\bsudo\b`), "runs with elevated privileges"},
	{regexp.MustCompile(`\brm\s+` + anyFlags + `(?:-[a-zA-Z]*[rRf]|--recursive|--force)`), "forced or recursive delete"},
	{regexp.MustCompile(`\bchmod\s+.*777\b`), "overly permissive chmod"},
	{regexp.MustCompile(`\bchown\s+-[a-zA-Z]*R`), "recursive ownership change"},
	{regexp.MustCompile(`\bgit\s+push\s+.*(--force\b|-f\b)`), "force push"},
	{regexp.MustCompile(`\bgit\s+reset\s+--hard\b`), "discards local changes"},
	{regexp.MustCompile(`\bkill\s+-9\b|\bkillall\b|\bpkill\b`), "kills processes"},
	{regexp.MustCompile(`\bsystemctl\s+(stop|restart|disable|mask)\b`), "changes service state"},
	{regexp.MustCompile(`\b(shutdown|reboot|poweroff|halt)\b`), "stops the machine"},
	{regexp.MustCompile(`\bdocker\s+(rm|rmi|stop|kill)\b|\bdocker\s+(system|volume|image|container)\s+prune\b`), "removes Docker resources"},
	{regexp.MustCompile(`\bkubectl\s+(delete|drain|cordon|scale)\b`), "changes cluster state"},
	{regexp.MustCompile(`>\s*/etc/`), "overwrites system configuration"},
	{regexp.MustCompile(`\b(iptables|ufw)\b`), "changes firewall rules"},
	{regexp.MustCompile(`\|\s*base64\s+(-d|--decode)\b`), "decodes data in a pipeline"},
	{regexp.MustCompile(`\beval\b`), "evaluates arbitrary code"},
	{regexp.MustCompile(`(?i)\b(truncate|delete\s+from)\s+\w+`), "deletes table rows"},
}

// Classification is the outcome of scanning text for risky patterns
type Classification struct {
	Level   Risk
	Reasons []string
}

func (c *Classification) raise(level Risk, reason string) {
	c.Level = MaxRisk(c.Level, level)
	for _, r := range c.Reasons {
		if r == reason {
			return
		}
	}
	c.Reasons = append(c.Reasons, reason)
}

// Classifier matches commands against the built-in patterns plus extra
// user and project rules.
type Classifier struct {
	rules   settings.Safety
	matcher *settings.PatternMatcher
}

// NewClassifier creates a classifier with extra rules layered on top
func NewClassifier(rules settings.Safety) *Classifier {
	return &Classifier{rules: rules, matcher: settings.NewPatternMatcher()}
}

// Classify scans every text (a command and any code in the answer) and
// returns the most severe level found. Empty input classifies as safe.
func (c *Classifier) Classify(texts ...string) Classification {
	return c.classify(true, texts)
}

// ClassifyProse scans explanatory text for destructive patterns only.
// Prose that mentions sudo or a restart stays safe, but a destructive step
// described there still forces RiskDestructive.
func (c *Classifier) ClassifyProse(texts ...string) Classification {
	return c.classify(false, texts)
}

func (c *Classifier) classify(withCaution bool, texts []string) Classification {
	result := Classification{Level: RiskSafe}
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		for _, p := range destructivePatterns {
			if p.re.MatchString(text) {
				result.raise(RiskDestructive, p.reason)
			}
		}
		if withCaution {
			for _, p := range cautionPatterns {
				if p.re.MatchString(text) {
					result.raise(RiskCaution, p.reason)
				}
			}
		}
		for _, line := range strings.Split(text, "\n") {
			level, rule := c.matcher.Check(line, c.rules)
			switch {
			case level == settings.Destructive:
				result.raise(RiskDestructive, ruleReason(rule))
			case level == settings.Caution && withCaution:
				result.raise(RiskCaution, ruleReason(rule))
			}
		}
	}
	return result
}

// Merge combines two classifications, keeping the higher level and every reason
func (c Classification) Merge(other Classification) Classification {
	out := Classification{Level: c.Level, Reasons: append([]string(nil), c.Reasons...)}
	for _, r := range other.Reasons {
		out.raise(other.Level, r)
	}
	out.Level = MaxRisk(out.Level, other.Level)
	return out
}

func ruleReason(rule settings.Rule) string {
	if rule.Reason != "" {
		return rule.Reason
	}
	return "matches rule " + rule.Pattern
}

// ClassifyCommand classifies a single command with only the built-in patterns
func ClassifyCommand(cmd string) Risk {
	return NewClassifier(settings.Safety{}).Classify(cmd).Level
}

// RiskDescription returns a human-readable description of the risk level
func RiskDescription(level Risk) string {
	switch level {
	case RiskSafe:
		return "Safe to run"
	case RiskCaution:
		return "May modify system state, review before running"
	case RiskDestructive:
		return "Potentially destructive, can cause data loss"
	default:
		return "Unknown risk level"
	}
}
