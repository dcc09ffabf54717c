// Package equivalence proposes a substitute model on another provider when a
// request has to fall back away from its original provider.
package equivalence

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gluk-w/claworc/llm-router/internal/providers"
)

// Table maps a source model id to the substitute id per target provider.
type Table map[string]map[string]string

// builtin holds known-good pairings between flagship and budget tiers.
var builtin = Table{
	"claude-opus-4-20250514": {
		"openai":         "o3",
		"google":         "gemini-2.5-pro",
		"amazon-bedrock": "anthropic.claude-sonnet-4-20250514-v1:0",
		"xai":            "grok-4",
		"deepseek":       "deepseek-reasoner",
		"mistral":        "magistral-medium-latest",
		"openrouter":     "anthropic/claude-sonnet-4",
		"github-copilot": "claude-sonnet-4",
	},
	"claude-sonnet-4-20250514": {
		"openai":         "gpt-4o",
		"google":         "gemini-2.5-pro",
		"amazon-bedrock": "anthropic.claude-sonnet-4-20250514-v1:0",
		"xai":            "grok-4",
		"deepseek":       "deepseek-chat",
		"mistral":        "mistral-large-latest",
		"groq":           "llama-3.3-70b-versatile",
		"openrouter":     "anthropic/claude-sonnet-4",
		"github-copilot": "claude-sonnet-4",
	},
	"claude-3-5-haiku-20241022": {
		"openai":         "gpt-4o-mini",
		"google":         "gemini-2.0-flash",
		"amazon-bedrock": "anthropic.claude-3-5-haiku-20241022-v1:0",
		"mistral":        "mistral-small-latest",
		"groq":           "llama-3.1-8b-instant",
		"cohere":         "command-r",
	},
	"gpt-4o": {
		"anthropic":      "claude-sonnet-4-20250514",
		"google":         "gemini-2.5-flash",
		"mistral":        "mistral-large-latest",
		"deepseek":       "deepseek-chat",
		"xai":            "grok-2",
		"openrouter":     "openai/gpt-4o",
		"github-copilot": "gpt-4o",
	},
	"gpt-4o-mini": {
		"anthropic": "claude-3-5-haiku-20241022",
		"google":    "gemini-2.0-flash",
		"mistral":   "mistral-small-latest",
		"groq":      "llama-3.1-8b-instant",
	},
	"o3": {
		"anthropic": "claude-opus-4-20250514",
		"google":    "gemini-2.5-pro",
		"deepseek":  "deepseek-reasoner",
		"xai":       "grok-4",
	},
	"gemini-2.5-pro": {
		"anthropic": "claude-sonnet-4-20250514",
		"openai":    "o3",
		"xai":       "grok-4",
	},
	"gemini-2.5-flash": {
		"anthropic": "claude-3-5-haiku-20241022",
		"openai":    "gpt-4o-mini",
	},
	"deepseek-reasoner": {
		"anthropic": "claude-sonnet-4-20250514",
		"openai":    "o3-mini",
		"groq":      "deepseek-r1-distill-llama-70b",
		"together":  "deepseek-ai/DeepSeek-R1",
		"fireworks": "accounts/fireworks/models/deepseek-r1",
	},
}

// Resolver holds the explicit pairing table. The zero value is not usable;
// call New.
type Resolver struct {
	mu    sync.RWMutex
	table Table
}

// New returns a resolver seeded with the built-in pairings.
func New() *Resolver {
	r := &Resolver{table: make(Table, len(builtin))}
	r.merge(builtin)
	return r
}

func (r *Resolver) merge(t Table) {
	for src, targets := range t {
		row, ok := r.table[src]
		if !ok {
			row = make(map[string]string, len(targets))
			r.table[src] = row
		}
		for target, id := range targets {
			row[target] = id
		}
	}
}

// LoadOverrides merges a YAML pairing file over the current table. A missing
// file is not an error.
//
// Example:
//
//	claude-sonnet-4-20250514:
//	  openai: o3
//	  groq: deepseek-r1-distill-llama-70b
func (r *Resolver) LoadOverrides(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("equivalence: open overrides %q: %w", path, err)
	}
	defer f.Close()

	t, err := DecodeTable(f)
	if err != nil {
		return fmt.Errorf("equivalence: parse overrides %q: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.merge(t)
	return nil
}

// DecodeTable parses a pairing table from YAML. An empty document yields an
// empty table.
func DecodeTable(rd io.Reader) (Table, error) {
	var t Table
	if err := yaml.NewDecoder(rd).Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *Resolver) explicit(sourceModelID, targetProvider string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.table[sourceModelID][targetProvider]
	return id, ok
}

// FindEquivalentModel picks the model on targetProvider closest to
// sourceModelID on sourceProvider: an explicit pairing if one exists and is
// in the target catalog, else the first target model with the same reasoning
// flag that accepts text, else the target's first model. It reports false
// when either provider or the source model is unknown, or the target has no
// catalog models.
func (r *Resolver) FindEquivalentModel(sourceProvider, sourceModelID, targetProvider string) (providers.ModelDef, bool) {
	target, ok := providers.Get(targetProvider)
	if !ok {
		return providers.ModelDef{}, false
	}
	source, ok := providers.FindModel(sourceProvider, sourceModelID)
	if !ok {
		return providers.ModelDef{}, false
	}
	if len(target.Models) == 0 {
		return providers.ModelDef{}, false
	}

	if id, ok := r.explicit(sourceModelID, target.Name); ok {
		if m, ok := providers.FindModel(target.Name, id); ok {
			return m, true
		}
	}

	for _, m := range target.Models {
		if m.Reasoning == source.Reasoning && m.Accepts(providers.ModalityText) {
			return m, true
		}
	}
	return target.Models[0], true
}

var defaultResolver = New()

// Default returns the process-wide resolver used by FindEquivalentModel.
func Default() *Resolver { return defaultResolver }

// FindEquivalentModel resolves against the default resolver.
func FindEquivalentModel(sourceProvider, sourceModelID, targetProvider string) (providers.ModelDef, bool) {
	return defaultResolver.FindEquivalentModel(sourceProvider, sourceModelID, targetProvider)
}
