// Package credentials resolves the opaque auth_ref handles that provider
// configs carry, and manages the local credential file behind `atlasai auth`.
//
// Supported handles:
//
//	env:NAME    read the secret from environment variable NAME
//	store:NAME  read the secret saved under NAME in the credentials file
//	""          no authentication (local engines)
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/atlasserver/atlasai/internal/constants"
)

// FileName is the credentials file name inside the config directory.
const FileName = "credentials.json"

// Errors
var (
	ErrNotFound    = errors.New("credential not found")
	ErrInvalidRef  = errors.New("invalid auth_ref, use env:NAME or store:NAME")
	ErrEmptySecret = errors.New("secret is empty")
	ErrInvalidName = errors.New("credential name must be non-empty and contain no whitespace")
)

type fileFormat struct {
	Credentials map[string]string `json:"credentials"`
}

// Store reads and writes the credentials file. Env lookups go through
// Getenv so tests can stub the environment.
type Store struct {
	mu     sync.Mutex
	path   string
	Getenv func(string) string
}

// DefaultPath returns ~/.config/atlasai/credentials.json, preferring the
// platform user config directory.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, constants.AppName, FileName), nil
}

// NewStore opens the store at path; an empty path means DefaultPath.
func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{path: path, Getenv: os.Getenv}, nil
}

// Path returns the credentials file path
func (s *Store) Path() string {
	return s.path
}

// Resolve implements api.CredentialResolver.
func (s *Store) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	scheme, name, ok := strings.Cut(ref, ":")
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}

	switch scheme {
	case "env":
		v := strings.TrimSpace(s.Getenv(name))
		if v == "" {
			return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, name)
		}
		return v, nil
	case "store":
		secret, err := s.Get(name)
		if err != nil {
			return "", err
		}
		return secret, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
}

// Get returns the stored secret for name.
func (s *Store) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return "", err
	}
	secret, ok := creds[name]
	if !ok || secret == "" {
		return "", fmt.Errorf("%w: %q (run 'atlasai auth login %s')", ErrNotFound, name, name)
	}
	return secret, nil
}

// Set saves secret under name with owner-only permissions.
func (s *Store) Set(name, secret string) error {
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return ErrInvalidName
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrEmptySecret
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return err
	}
	creds[name] = secret
	return s.save(creds)
}

// Delete removes name; deleting a missing name is not an error.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := creds[name]; !ok {
		return nil
	}
	delete(creds, name)
	if len(creds) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete credentials: %w", err)
		}
		return nil
	}
	return s.save(creds)
}

// Names lists stored credential names in sorted order.
func (s *Store) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(creds))
	for name := range creds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", s.path, err)
	}
	if f.Credentials == nil {
		f.Credentials = map[string]string{}
	}
	return f.Credentials, nil
}

func (s *Store) save(creds map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(fileFormat{Credentials: creds}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Mask returns a display-safe form of a secret.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", 4) + secret[len(secret)-4:]
}
