package settings

import (
	"reflect"
	"testing"
)

func TestPatternMatcher_Match(t *testing.T) {
	pm := NewPatternMatcher()

	tests := []struct {
		name     string
		command  string
		pattern  string
		expected bool
	}{
		// Exact match
		{"exact match", "ls -la", "ls -la", true},
		{"exact match single word", "ls", "ls", true},

		// Colon-style patterns
		{"git:* matches git status", "git status", "git:*", true},
		{"git:* matches git commit", "git commit -m 'test'", "git:*", true},
		{"git:* doesn't match gitignore", "gitignore", "git:*", false},
		{"git:* matches just git", "git", "git:*", true},
		{"kubectl:delete matches kubectl delete ns", "kubectl delete ns prod", "kubectl:delete", true},
		{"kubectl:delete doesn't match kubectl get", "kubectl get pods", "kubectl:delete", false},

		// Glob patterns with *
		{"glob prefix", "npm run test", "npm run *", true},
		{"glob prefix no match", "npm install", "npm run *", false},
		{"glob middle", "file-test-123", "file-*-123", true},

		// Prefix match (implicit)
		{"prefix match", "terraform destroy -auto-approve", "terraform destroy", true},
		{"prefix no match different command", "lsof", "ls", false},

		// Regex
		{"regex", "docker  system prune -af", `re:docker\s+system\s+prune`, true},
		{"invalid regex", "anything", "re:(", false},

		// Chained commands
		{"chained second segment", "cd /srv && make nuke", "make nuke", true},
		{"piped segment", "cat x | sudo tee /etc/hosts", "sudo:*", true},
		{"no segment matches", "cd /srv && ls", "make nuke", false},

		{"empty pattern", "ls", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := pm.Match(tt.command, tt.pattern)
			if result != tt.expected {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.command, tt.pattern, result, tt.expected)
			}
		})
	}
}

func TestPatternMatcher_Check(t *testing.T) {
	pm := NewPatternMatcher()

	tests := []struct {
		name     string
		command  string
		safety   Safety
		expected Level
	}{
		{
			name:    "destructive takes precedence",
			command: "kubectl delete ns prod",
			safety: Safety{
				Caution:     []Rule{{Pattern: "kubectl:*"}},
				Destructive: []Rule{{Pattern: "kubectl:delete"}},
			},
			expected: Destructive,
		},
		{
			name:    "caution when no destructive match",
			command: "kubectl apply -f app.yaml",
			safety: Safety{
				Caution:     []Rule{{Pattern: "kubectl:*"}},
				Destructive: []Rule{{Pattern: "kubectl:delete"}},
			},
			expected: Caution,
		},
		{
			name:     "no match",
			command:  "docker ps",
			safety:   Safety{Destructive: []Rule{{Pattern: "rm:*"}}},
			expected: NoMatch,
		},
		{
			name:     "empty rules",
			command:  "ls",
			safety:   Safety{},
			expected: NoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _ := pm.Check(tt.command, tt.safety)
			if result != tt.expected {
				t.Errorf("Check(%q) = %v, want %v", tt.command, result, tt.expected)
			}
		})
	}
}

func TestSegments(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"ls", []string{"ls"}},
		{"a && b || c; d | e", []string{"a", "b", "c", "d", "e"}},
		{"  ", nil},
		{"a\nb", []string{"a", "b"}},
	}
	for _, tt := range tests {
		if got := Segments(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Segments(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
		ok    bool
	}{
		{"destructive", Destructive, true},
		{" Caution ", Caution, true},
		{"safe", NoMatch, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}
