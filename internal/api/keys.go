package api

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrNoAvailableKeys is returned when every key in a rotator has been tried.
var ErrNoAvailableKeys = errors.New("all API keys exhausted")

// RotatableErrorCodes are status codes that should trigger key rotation
var RotatableErrorCodes = []int{401, 403, 429}

// KeyRotator manages a pool of API keys with rotation support. It is safe
// for concurrent use since provider branches share one search client.
type KeyRotator struct {
	mu         sync.Mutex
	keys       []string
	currentIdx int
}

// NewKeyRotator creates a rotator over the given keys, dropping blanks.
func NewKeyRotator(keys []string) *KeyRotator {
	var clean []string
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key != "" {
			clean = append(clean, key)
		}
	}
	return &KeyRotator{keys: clean}
}

// NewKeyRotatorFromEnv creates a KeyRotator from a comma-separated
// environment variable
func NewKeyRotatorFromEnv(envVar string) *KeyRotator {
	return NewKeyRotator(SplitKeys(os.Getenv(envVar)))
}

// SplitKeys splits a comma-separated key list.
func SplitKeys(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var result []string
	for _, key := range strings.Split(s, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			result = append(result, key)
		}
	}
	return result
}

// GetCurrentKey returns the current active API key
func (kr *KeyRotator) GetCurrentKey() string {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	if len(kr.keys) == 0 {
		return ""
	}
	return kr.keys[kr.currentIdx]
}

// GetKeyCount returns the total number of keys
func (kr *KeyRotator) GetKeyCount() int {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	return len(kr.keys)
}

// GetCurrentIndex returns the current key index (0-based)
func (kr *KeyRotator) GetCurrentIndex() int {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	return kr.currentIdx
}

// HasKeys returns true if there are any keys configured
func (kr *KeyRotator) HasKeys() bool {
	return kr.GetKeyCount() > 0
}

// Rotate moves to the next available API key
func (kr *KeyRotator) Rotate() (string, error) {
	kr.mu.Lock()
	defer kr.mu.Unlock()
	nextIndex := kr.currentIdx + 1
	if nextIndex >= len(kr.keys) {
		return "", ErrNoAvailableKeys
	}
	kr.currentIdx = nextIndex
	return kr.keys[nextIndex], nil
}

// ShouldRotateKey checks if the error status code indicates we should try another key
func ShouldRotateKey(statusCode int) bool {
	for _, code := range RotatableErrorCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}
