package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/atlasserver/atlasai/internal/constants"
)

const (
	// SettingsFile is the name of the settings file
	SettingsFile = "settings.json"

	// ProjectSettingsDir is the directory name for project-level settings
	ProjectSettingsDir = ".atlasai"
)

// Rule is a single safety pattern. See PatternMatcher.Match for the syntax.
type Rule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Safety holds the extra patterns layered on top of the built-in classifier.
// Destructive rules always win over caution rules.
type Safety struct {
	Destructive []Rule `json:"destructive" yaml:"destructive"`
	Caution     []Rule `json:"caution" yaml:"caution"`
}

// Empty reports whether no extra rules are set
func (s Safety) Empty() bool {
	return len(s.Destructive) == 0 && len(s.Caution) == 0
}

// Settings represents the persisted settings
type Settings struct {
	Safety Safety `json:"safety"`
}

// Manager loads global and project settings and merges them with rules
// mirrored from the YAML config.
type Manager struct {
	mu          sync.RWMutex
	global      *Settings // $XDG_DATA_HOME/atlasai/settings.json
	project     *Settings // <project>/.atlasai/settings.json
	extra       Safety    // from config.yaml, never persisted
	merged      *Settings
	globalPath  string
	projectPath string
}

// NewManager creates a new settings manager
func NewManager() *Manager {
	return &Manager{
		global: DefaultSettings(),
		merged: DefaultSettings(),
	}
}

// DefaultSettings returns settings with no extra rules
func DefaultSettings() *Settings {
	return &Settings{
		Safety: Safety{
			Destructive: []Rule{},
			Caution:     []Rule{},
		},
	}
}

// Load loads global settings and the settings of projectDir (the working
// directory when empty), then merges them.
func (m *Manager) Load(projectDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	globalPath, err := globalSettingsPath()
	if err != nil {
		return err
	}
	m.globalPath = globalPath

	global, err := loadFromFile(globalPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if global != nil {
		m.global = global
	} else {
		m.global = DefaultSettings()
	}

	var cwdErr error
	if projectDir == "" {
		projectDir, cwdErr = os.Getwd()
	}
	if cwdErr == nil {
		m.projectPath = filepath.Join(projectDir, ProjectSettingsDir, SettingsFile)
		project, err := loadFromFile(m.projectPath)
		if err != nil {
			// a broken project file must not block the global rules
			m.project = nil
		} else {
			m.project = project
		}
	}

	m.merged = m.mergeSettings()
	return nil
}

// globalSettingsPath uses XDG_DATA_HOME or ~/.local/share
func globalSettingsPath() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	return filepath.Join(dataHome, constants.AppName, SettingsFile), nil
}

func loadFromFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// mergeSettings concatenates global, project, and config rules in that order
func (m *Manager) mergeSettings() *Settings {
	merged := DefaultSettings()

	for _, s := range []*Settings{m.global, m.project, {Safety: m.extra}} {
		if s == nil {
			continue
		}
		merged.Safety.Destructive = append(merged.Safety.Destructive, s.Safety.Destructive...)
		merged.Safety.Caution = append(merged.Safety.Caution, s.Safety.Caution...)
	}

	return merged
}

// Save saves settings to the global settings file
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.globalPath == "" {
		path, err := globalSettingsPath()
		if err != nil {
			return err
		}
		m.globalPath = path
	}

	return saveToFile(m.globalPath, m.global)
}

func saveToFile(path string, settings *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Merged returns the effective safety rules
func (m *Manager) Merged() Safety {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.merged.Safety
}

// AddGlobalRule adds a rule at the given level to the global settings
func (m *Manager) AddGlobalRule(level Level, rule Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.global == nil {
		m.global = DefaultSettings()
	}
	switch level {
	case Destructive:
		m.global.Safety.Destructive = append(m.global.Safety.Destructive, rule)
	case Caution:
		m.global.Safety.Caution = append(m.global.Safety.Caution, rule)
	}
	m.merged = m.mergeSettings()
}

// Mirror layers rules from the YAML config on top of the file settings.
// They live only as long as the Manager.
func (m *Manager) Mirror(extra Safety) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.extra = extra
	m.merged = m.mergeSettings()
}

// GlobalPath returns the path to the global settings file
func (m *Manager) GlobalPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globalPath
}

// ProjectPath returns the path to the project settings file
func (m *Manager) ProjectPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.projectPath
}
