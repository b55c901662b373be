package settings

import (
	"regexp"
	"strings"
)

// Level is the outcome of matching a command against safety rules
type Level int

const (
	// NoMatch indicates no matching rule was found
	NoMatch Level = iota
	// Caution indicates the command matches a caution rule
	Caution
	// Destructive indicates the command matches a destructive rule
	Destructive
)

func (l Level) String() string {
	switch l {
	case Caution:
		return "caution"
	case Destructive:
		return "destructive"
	default:
		return "none"
	}
}

// segmentSplit separates chained shell commands
var segmentSplit = regexp.MustCompile(`\s*(?:&&|\|\||;|\||\n)\s*`)

// PatternMatcher handles glob/wildcard pattern matching for safety rules
type PatternMatcher struct{}

// NewPatternMatcher creates a new pattern matcher
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Segments splits a command line on &&, ||, ;, | and newlines.
func Segments(command string) []string {
	var out []string
	for _, s := range segmentSplit.Split(strings.TrimSpace(command), -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Match checks if a command matches a pattern.
// Patterns support:
//   - Exact match: "ls -la"
//   - Colon form: "git:*" matches "git status", "git:push" matches "git push origin"
//   - Glob wildcard: "kubectl delete *"
//   - Prefix match: "terraform destroy" matches "terraform destroy -auto-approve"
//   - Regex: "re:docker\s+system\s+prune"
//
// A chained command matches when any of its segments does.
func (pm *PatternMatcher) Match(command, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}

	if expr, ok := strings.CutPrefix(pattern, "re:"); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return false
		}
		return re.MatchString(command)
	}

	for _, segment := range Segments(command) {
		if pm.matchSegment(segment, pattern) {
			return true
		}
	}
	return false
}

func (pm *PatternMatcher) matchSegment(command, pattern string) bool {
	if pattern == command {
		return true
	}

	// Handle colon-style patterns: "git:*" means "git " + anything
	if strings.Contains(pattern, ":") {
		return pm.matchColonPattern(command, pattern)
	}

	if strings.Contains(pattern, "*") {
		return pm.matchGlobPattern(command, pattern)
	}

	return strings.HasPrefix(command, pattern+" ")
}

// matchColonPattern matches patterns like "git:*", "npm:run"
// "git:*" matches any command starting with "git " (note the space)
// "git:status" matches "git status" with any trailing arguments
func (pm *PatternMatcher) matchColonPattern(command, pattern string) bool {
	prefix, suffix, ok := strings.Cut(pattern, ":")
	if !ok {
		return false
	}

	if !strings.HasPrefix(command, prefix+" ") && command != prefix {
		return false
	}

	rest := strings.TrimPrefix(command, prefix)
	rest = strings.TrimPrefix(rest, " ")

	if suffix == "*" {
		return true
	}

	if strings.Contains(suffix, "*") {
		return pm.matchGlobPattern(rest, suffix)
	}

	cmdParts := strings.Fields(rest)
	if len(cmdParts) > 0 && cmdParts[0] == suffix {
		return true
	}

	return rest == suffix
}

// matchGlobPattern converts a * glob into an anchored regex
func (pm *PatternMatcher) matchGlobPattern(command, pattern string) bool {
	regexPattern := regexp.QuoteMeta(pattern)
	regexPattern = strings.ReplaceAll(regexPattern, `\*`, `.*`)
	regexPattern = "^" + regexPattern + "$"

	re, err := regexp.Compile(regexPattern)
	if err != nil {
		return false
	}

	return re.MatchString(command)
}

// MatchRules returns the first rule matching command
func (pm *PatternMatcher) MatchRules(command string, rules []Rule) (Rule, bool) {
	for _, rule := range rules {
		if pm.Match(command, rule.Pattern) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Check classifies command against the rules. Destructive rules are
// checked first and take precedence.
func (pm *PatternMatcher) Check(command string, safety Safety) (Level, Rule) {
	if rule, ok := pm.MatchRules(command, safety.Destructive); ok {
		return Destructive, rule
	}
	if rule, ok := pm.MatchRules(command, safety.Caution); ok {
		return Caution, rule
	}
	return NoMatch, Rule{}
}

// ParseLevel parses "destructive" or "caution"
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "destructive":
		return Destructive, true
	case "caution":
		return Caution, true
	}
	return NoMatch, false
}
