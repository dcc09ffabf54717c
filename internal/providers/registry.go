package providers

import (
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownProvider = errors.New("unknown provider")

type AuthStyle int

const (
	AuthBearer     AuthStyle = iota // Authorization: Bearer <key>
	AuthXAPIKey                     // x-api-key: <key>
	AuthGoogAPIKey                  // x-goog-api-key: <key>
)

// APIFamily is the wire protocol a provider speaks.
type APIFamily string

const (
	FamilyAnthropic APIFamily = "anthropic-messages"
	FamilyOpenAI    APIFamily = "openai-completions"
	FamilyGoogle    APIFamily = "google-generative-ai"
	FamilyBedrock   APIFamily = "bedrock-converse"
	FamilyCohere    APIFamily = "cohere-chat"
	FamilyOllama    APIFamily = "ollama"
)

// AuthMode describes how the default credential for a provider is obtained.
type AuthMode string

const (
	AuthModeAPIKey  AuthMode = "api-key"
	AuthModeAWSSDK  AuthMode = "aws-sdk"
	AuthModeOAuth   AuthMode = "oauth"
	AuthModeToken   AuthMode = "token"
	AuthModeSession AuthMode = "session"
)

type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

type ModelCost struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

type ModelDef struct {
	ID              string     `json:"id"`
	DisplayName     string     `json:"display_name"`
	Reasoning       bool       `json:"reasoning"`
	InputModalities []Modality `json:"input_modalities"`
	Cost            ModelCost  `json:"cost"`
	ContextWindow   int        `json:"context_window"`
	MaxOutputTokens int        `json:"max_output_tokens"`
}

// Accepts reports whether the model takes the given input modality.
func (m ModelDef) Accepts(mod Modality) bool {
	for _, have := range m.InputModalities {
		if have == mod {
			return true
		}
	}
	return false
}

type ProviderConfig struct {
	Name string
	// BaseURL is the versioned API root handed to SDK clients.
	BaseURL string
	// UpstreamURL is the unversioned host used by the passthrough proxy.
	UpstreamURL  string
	APIFamily    APIFamily
	AuthMode     AuthMode
	EnvKey       string
	RequiresAuth bool
	AuthStyle    AuthStyle
	ParserType   string // "anthropic", "openai", "gemini", "cohere"
	Models       []ModelDef
}

// customUpstreams stores user-configured upstream URLs for providers like Ollama/llama.cpp
// that run on user-specified hosts rather than fixed cloud endpoints.
var (
	customMu        sync.RWMutex
	customUpstreams = map[string]string{}
)

// SetCustomUpstream allows overriding the upstream URL for a provider.
func SetCustomUpstream(providerName, url string) {
	customMu.Lock()
	defer customMu.Unlock()
	customUpstreams[strings.ToLower(providerName)] = strings.TrimRight(url, "/")
}

// Get returns the catalog entry for name. Lookup is case-insensitive.
func Get(name string) (ProviderConfig, bool) {
	p, ok := catalog[strings.ToLower(name)]
	if !ok {
		return ProviderConfig{}, false
	}
	customMu.RLock()
	customURL := customUpstreams[p.Name]
	customMu.RUnlock()
	if customURL != "" {
		p.UpstreamURL = customURL
		p.BaseURL = customURL + localAPISuffix[p.Name]
	}
	return p, true
}

func All() map[string]ProviderConfig {
	out := make(map[string]ProviderConfig, len(catalog))
	for name := range catalog {
		out[name], _ = Get(name)
	}
	return out
}

// Names returns every provider name in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FindModel looks up a model definition by provider and id.
func FindModel(provider, modelID string) (ModelDef, bool) {
	p, ok := Get(provider)
	if !ok {
		return ModelDef{}, false
	}
	for _, m := range p.Models {
		if m.ID == modelID {
			return m, true
		}
	}
	return ModelDef{}, false
}

// SetAuthHeader sets the appropriate auth header for the provider.
func (p ProviderConfig) SetAuthHeader(key string) (headerName, headerValue string) {
	switch p.AuthStyle {
	case AuthXAPIKey:
		return "x-api-key", key
	case AuthGoogAPIKey:
		return "x-goog-api-key", key
	default:
		return "Authorization", "Bearer " + key
	}
}

const (
	// AWSCredentialSentinel stands in for a key when the AWS SDK resolves
	// credentials itself.
	AWSCredentialSentinel = "<aws-sdk>"

	SourceNone = "none"
)

// DefaultCredential is the credential a provider gets from the process
// environment, without consulting any auth profile.
type DefaultCredential struct {
	APIKey         string
	Source         string
	IsSubscription bool
	// NoAuth is set for providers that need no credential at all.
	NoAuth bool
}

// ResolveDefaultCredential reads the provider's default credential from the
// environment. It never caches so that changes to the environment are picked
// up immediately.
func ResolveDefaultCredential(name string) (DefaultCredential, bool) {
	p, ok := Get(name)
	if !ok {
		return DefaultCredential{}, false
	}

	if !p.RequiresAuth {
		return DefaultCredential{Source: SourceNone, NoAuth: true}, true
	}

	switch p.AuthMode {
	case AuthModeAWSSDK:
		if envValue("AWS_ACCESS_KEY_ID") == "" || envValue("AWS_SECRET_ACCESS_KEY") == "" {
			return DefaultCredential{}, false
		}
		return DefaultCredential{APIKey: AWSCredentialSentinel, Source: "env: AWS_ACCESS_KEY_ID"}, true
	case AuthModeSession:
		key := envValue(p.EnvKey)
		if key == "" {
			return DefaultCredential{}, false
		}
		return DefaultCredential{APIKey: key, Source: "env: " + p.EnvKey, IsSubscription: true}, true
	default:
		key := envValue(p.EnvKey)
		if key == "" {
			return DefaultCredential{}, false
		}
		return DefaultCredential{APIKey: key, Source: "env: " + p.EnvKey}, true
	}
}

func envValue(key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(key))
}
