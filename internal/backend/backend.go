// Package backend performs completions against catalog providers through
// any-llm-go. Its Runner is the run function handed to failover.Run.
package backend

import (
	"context"
	"errors"
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/gluk-w/claworc/llm-router/internal/failover"
	"github.com/gluk-w/claworc/llm-router/internal/providers"
	"github.com/gluk-w/claworc/llm-router/internal/usage"
)

var ErrUnsupportedProvider = errors.New("provider has no completion backend")

// Kind names the any-llm-go driver used for a catalog provider.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindGemini    Kind = "gemini"
	KindOllama    Kind = "ollama"
	KindDeepSeek  Kind = "deepseek"
	KindMistral   Kind = "mistral"
	KindGroq      Kind = "groq"
	KindLlamaCpp  Kind = "llamacpp"
)

// nativeKinds are providers with a dedicated driver. Every other provider of
// the OpenAI family is reached through the openai driver and its base URL.
var nativeKinds = map[string]Kind{
	"anthropic":           KindAnthropic,
	"claude-subscription": KindAnthropic,
	"google":              KindGemini,
	"ollama":              KindOllama,
	"deepseek":            KindDeepSeek,
	"mistral":             KindMistral,
	"groq":                KindGroq,
	"llamacpp":            KindLlamaCpp,
}

// localKinds always receive the catalog base URL so that a configured
// upstream is honoured.
var localKinds = map[Kind]bool{KindOllama: true, KindLlamaCpp: true}

// KindFor returns the driver for provider and whether it needs the catalog
// base URL.
func KindFor(p providers.ProviderConfig) (Kind, bool, error) {
	if k, ok := nativeKinds[p.Name]; ok {
		return k, localKinds[k], nil
	}
	if p.APIFamily == providers.FamilyOpenAI {
		return KindOpenAI, p.Name != "openai", nil
	}
	return "", false, fmt.Errorf("%w: %s", ErrUnsupportedProvider, p.Name)
}

// Factory builds an any-llm-go driver.
type Factory func(kind Kind, opts ...anyllmlib.Option) (anyllmlib.Provider, error)

// DefaultFactory maps kinds onto the any-llm-go provider packages.
func DefaultFactory(kind Kind, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch kind {
	case KindOpenAI:
		return anyllmoai.New(opts...)
	case KindAnthropic:
		return anthropic.New(opts...)
	case KindGemini:
		return gemini.New(opts...)
	case KindOllama:
		return ollama.New(opts...)
	case KindDeepSeek:
		return deepseek.New(opts...)
	case KindMistral:
		return mistral.New(opts...)
	case KindGroq:
		return groq.New(opts...)
	case KindLlamaCpp:
		return llamacpp.New(opts...)
	default:
		return nil, fmt.Errorf("%w: driver %q", ErrUnsupportedProvider, kind)
	}
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral chat completion.
type Request struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type Response struct {
	Content      string `json:"content"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

type Client struct {
	factory Factory
	tracker *usage.Tracker
}

// New returns a client that records token usage in tracker, which may be
// nil.
func New(tracker *usage.Tracker) *Client {
	return &Client{factory: DefaultFactory, tracker: tracker}
}

// WithFactory replaces the driver factory.
func (c *Client) WithFactory(f Factory) *Client {
	c.factory = f
	return c
}

// Options builds the any-llm-go options for a call to provider with apiKey.
func Options(p providers.ProviderConfig, apiKey string) ([]anyllmlib.Option, Kind, error) {
	kind, needsBaseURL, err := KindFor(p)
	if err != nil {
		return nil, "", err
	}
	var opts []anyllmlib.Option
	if apiKey != "" && apiKey != providers.AWSCredentialSentinel {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	if needsBaseURL && p.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(p.BaseURL))
	}
	return opts, kind, nil
}

func buildParams(model string, req Request) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.System != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}
	return anyllmlib.CompletionParams{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// Complete sends req to provider/model with apiKey.
func (c *Client) Complete(ctx context.Context, provider, model, apiKey string, req Request) (*Response, error) {
	p, ok := providers.Get(provider)
	if !ok {
		return nil, fmt.Errorf("%w %q", providers.ErrUnknownProvider, provider)
	}
	opts, kind, err := Options(p, apiKey)
	if err != nil {
		return nil, err
	}
	driver, err := c.factory(kind, opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", p.Name, err)
	}

	resp, err := driver.Completion(ctx, buildParams(model, req))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.Name)
	}

	out := &Response{
		Content:  resp.Choices[0].Message.ContentString(),
		Provider: p.Name,
		Model:    model,
	}
	if resp.Usage != nil {
		out.InputTokens = int64(resp.Usage.PromptTokens)
		out.OutputTokens = int64(resp.Usage.CompletionTokens)
	}
	if c.tracker != nil {
		c.tracker.Track(p.Name, model, out.InputTokens, out.OutputTokens)
	}
	return out, nil
}

// Runner adapts Complete to the failover run signature.
func (c *Client) Runner(req Request) failover.RunFunc[*Response] {
	return func(ctx context.Context, provider, model, apiKey string) (*Response, error) {
		return c.Complete(ctx, provider, model, apiKey, req)
	}
}
