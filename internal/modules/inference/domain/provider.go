package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrProviderDisabled = errors.New("inference provider is disabled")
	ErrProviderNotFound = errors.New("inference provider not found")
	ErrChecksumMismatch = errors.New("inference provider checksum mismatch")
	ErrEmptyPrompt      = errors.New("prompt is empty")
)

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

const (
	BackendPlugin = "plugin"
	BackendGemini = "gemini"
	BackendNone   = "none"
)

// Manifest describes one out-of-process inference provider.
type Manifest struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Binary    string   `json:"binary"`
	SHA256    string   `json:"sha256"`
	Enabled   bool     `json:"enabled"`
	Models    []string `json:"models,omitempty"`
	TimeoutMS int      `json:"timeout_ms,omitempty"`
}

func (m Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("provider version is required")
	}
	if m.Binary == "" {
		return fmt.Errorf("provider binary path is required")
	}
	if !sha256Pattern.MatchString(m.SHA256) {
		return fmt.Errorf("provider sha256 must be lowercase 64-char hex")
	}
	if m.TimeoutMS < 0 {
		return fmt.Errorf("provider timeout_ms must not be negative")
	}
	seen := map[string]struct{}{}
	for _, model := range m.Models {
		if strings.TrimSpace(model) == "" {
			return fmt.Errorf("provider model names must not be blank")
		}
		if _, ok := seen[model]; ok {
			return fmt.Errorf("duplicate model: %s", model)
		}
		seen[model] = struct{}{}
	}
	return nil
}

// DefaultModel is the first declared model, or "" when the provider picks.
func (m Manifest) DefaultModel() string {
	if len(m.Models) == 0 {
		return ""
	}
	return m.Models[0]
}

// CallTimeout is the per-call ceiling, used only when the caller set no deadline.
func (m Manifest) CallTimeout(fallback time.Duration) time.Duration {
	if m.TimeoutMS > 0 {
		return time.Duration(m.TimeoutMS) * time.Millisecond
	}
	return fallback
}

type Metadata struct {
	Name    string
	Version string
	Models  []string
}

type CompletionRequest struct {
	Prompt    string
	Model     string
	MaxTokens int
}

func (r CompletionRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative")
	}
	return nil
}

type Completion struct {
	Text       string
	Model      string
	TokensUsed int
	Cached     bool
}
