package providers

var textOnly = []Modality{ModalityText}
var textImage = []Modality{ModalityText, ModalityImage}

// localAPISuffix is appended to a custom upstream to form BaseURL.
var localAPISuffix = map[string]string{
	"ollama":   "",
	"llamacpp": "/v1",
}

var catalog = map[string]ProviderConfig{
	"anthropic": {
		Name:         "anthropic",
		BaseURL:      "https://api.anthropic.com/v1",
		UpstreamURL:  "https://api.anthropic.com",
		APIFamily:    FamilyAnthropic,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "ANTHROPIC_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthXAPIKey,
		ParserType:   "anthropic",
		Models: []ModelDef{
			{ID: "claude-opus-4-20250514", DisplayName: "Claude Opus 4", Reasoning: true, InputModalities: textImage, Cost: ModelCost{15, 75}, ContextWindow: 200_000, MaxOutputTokens: 32_000},
			{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4", Reasoning: true, InputModalities: textImage, Cost: ModelCost{3, 15}, ContextWindow: 200_000, MaxOutputTokens: 64_000},
			{ID: "claude-3-5-haiku-20241022", DisplayName: "Claude Haiku 3.5", Reasoning: false, InputModalities: textImage, Cost: ModelCost{0.8, 4}, ContextWindow: 200_000, MaxOutputTokens: 8_192},
		},
	},
	"claude-subscription": {
		Name:         "claude-subscription",
		BaseURL:      "https://api.anthropic.com/v1",
		UpstreamURL:  "https://api.anthropic.com",
		APIFamily:    FamilyAnthropic,
		AuthMode:     AuthModeSession,
		EnvKey:       "CLAUDE_CODE_OAUTH_TOKEN",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "anthropic",
		Models: []ModelDef{
			{ID: "claude-opus-4-20250514", DisplayName: "Claude Opus 4 (subscription)", Reasoning: true, InputModalities: textImage, ContextWindow: 200_000, MaxOutputTokens: 32_000},
			{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4 (subscription)", Reasoning: true, InputModalities: textImage, ContextWindow: 200_000, MaxOutputTokens: 64_000},
		},
	},
	"openai": {
		Name:         "openai",
		BaseURL:      "https://api.openai.com/v1",
		UpstreamURL:  "https://api.openai.com",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "OPENAI_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "gpt-4o", DisplayName: "GPT-4o", Reasoning: false, InputModalities: textImage, Cost: ModelCost{2.5, 10}, ContextWindow: 128_000, MaxOutputTokens: 16_384},
			{ID: "o3", DisplayName: "o3", Reasoning: true, InputModalities: textImage, Cost: ModelCost{2, 8}, ContextWindow: 200_000, MaxOutputTokens: 100_000},
			{ID: "o3-mini", DisplayName: "o3-mini", Reasoning: true, InputModalities: textOnly, Cost: ModelCost{1.1, 4.4}, ContextWindow: 200_000, MaxOutputTokens: 100_000},
			{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", Reasoning: false, InputModalities: textImage, Cost: ModelCost{0.15, 0.6}, ContextWindow: 128_000, MaxOutputTokens: 16_384},
		},
	},
	"github-copilot": {
		Name:         "github-copilot",
		BaseURL:      "https://api.githubcopilot.com",
		UpstreamURL:  "https://api.githubcopilot.com",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeToken,
		EnvKey:       "COPILOT_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "gpt-4o", DisplayName: "GPT-4o (Copilot)", Reasoning: false, InputModalities: textImage, ContextWindow: 128_000, MaxOutputTokens: 16_384},
			{ID: "claude-sonnet-4", DisplayName: "Claude Sonnet 4 (Copilot)", Reasoning: true, InputModalities: textImage, ContextWindow: 128_000, MaxOutputTokens: 16_000},
		},
	},
	"google": {
		Name:         "google",
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
		UpstreamURL:  "https://generativelanguage.googleapis.com",
		APIFamily:    FamilyGoogle,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "GEMINI_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthGoogAPIKey,
		ParserType:   "gemini",
		Models: []ModelDef{
			{ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro", Reasoning: true, InputModalities: textImage, Cost: ModelCost{1.25, 10}, ContextWindow: 1_048_576, MaxOutputTokens: 65_536},
			{ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash", Reasoning: true, InputModalities: textImage, Cost: ModelCost{0.3, 2.5}, ContextWindow: 1_048_576, MaxOutputTokens: 65_536},
			{ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", Reasoning: false, InputModalities: textImage, Cost: ModelCost{0.1, 0.4}, ContextWindow: 1_048_576, MaxOutputTokens: 8_192},
		},
	},
	"amazon-bedrock": {
		Name:         "amazon-bedrock",
		BaseURL:      "https://bedrock-runtime.us-east-1.amazonaws.com",
		UpstreamURL:  "https://bedrock-runtime.us-east-1.amazonaws.com",
		APIFamily:    FamilyBedrock,
		AuthMode:     AuthModeAWSSDK,
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "anthropic",
		Models: []ModelDef{
			{ID: "anthropic.claude-sonnet-4-20250514-v1:0", DisplayName: "Claude Sonnet 4 (Bedrock)", Reasoning: true, InputModalities: textImage, Cost: ModelCost{3, 15}, ContextWindow: 200_000, MaxOutputTokens: 64_000},
			{ID: "anthropic.claude-3-5-haiku-20241022-v1:0", DisplayName: "Claude Haiku 3.5 (Bedrock)", Reasoning: false, InputModalities: textImage, Cost: ModelCost{0.8, 4}, ContextWindow: 200_000, MaxOutputTokens: 8_192},
		},
	},
	"mistral": {
		Name:         "mistral",
		BaseURL:      "https://api.mistral.ai/v1",
		UpstreamURL:  "https://api.mistral.ai",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "MISTRAL_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "mistral-large-latest", DisplayName: "Mistral Large", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{2, 6}, ContextWindow: 128_000, MaxOutputTokens: 8_192},
			{ID: "magistral-medium-latest", DisplayName: "Magistral Medium", Reasoning: true, InputModalities: textOnly, Cost: ModelCost{2, 5}, ContextWindow: 40_000, MaxOutputTokens: 40_000},
			{ID: "mistral-small-latest", DisplayName: "Mistral Small", Reasoning: false, InputModalities: textImage, Cost: ModelCost{0.1, 0.3}, ContextWindow: 128_000, MaxOutputTokens: 8_192},
		},
	},
	"groq": {
		Name:         "groq",
		BaseURL:      "https://api.groq.com/openai/v1",
		UpstreamURL:  "https://api.groq.com/openai",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "GROQ_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "llama-3.3-70b-versatile", DisplayName: "Llama 3.3 70B", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{0.59, 0.79}, ContextWindow: 131_072, MaxOutputTokens: 32_768},
			{ID: "deepseek-r1-distill-llama-70b", DisplayName: "DeepSeek R1 Distill 70B", Reasoning: true, InputModalities: textOnly, Cost: ModelCost{0.75, 0.99}, ContextWindow: 131_072, MaxOutputTokens: 8_192},
			{ID: "llama-3.1-8b-instant", DisplayName: "Llama 3.1 8B", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{0.05, 0.08}, ContextWindow: 131_072, MaxOutputTokens: 8_192},
		},
	},
	"deepseek": {
		Name:         "deepseek",
		BaseURL:      "https://api.deepseek.com/v1",
		UpstreamURL:  "https://api.deepseek.com",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "DEEPSEEK_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "deepseek-chat", DisplayName: "DeepSeek V3", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{0.27, 1.1}, ContextWindow: 64_000, MaxOutputTokens: 8_192},
			{ID: "deepseek-reasoner", DisplayName: "DeepSeek R1", Reasoning: true, InputModalities: textOnly, Cost: ModelCost{0.55, 2.19}, ContextWindow: 64_000, MaxOutputTokens: 8_192},
		},
	},
	"xai": {
		Name:         "xai",
		BaseURL:      "https://api.x.ai/v1",
		UpstreamURL:  "https://api.x.ai",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "XAI_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "grok-4", DisplayName: "Grok 4", Reasoning: true, InputModalities: textImage, Cost: ModelCost{3, 15}, ContextWindow: 256_000, MaxOutputTokens: 64_000},
			{ID: "grok-3-mini", DisplayName: "Grok 3 Mini", Reasoning: true, InputModalities: textOnly, Cost: ModelCost{0.3, 0.5}, ContextWindow: 131_072, MaxOutputTokens: 16_384},
			{ID: "grok-2", DisplayName: "Grok 2", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{2, 10}, ContextWindow: 131_072, MaxOutputTokens: 16_384},
		},
	},
	"cohere": {
		Name:         "cohere",
		BaseURL:      "https://api.cohere.com/compatibility/v1",
		UpstreamURL:  "https://api.cohere.com",
		APIFamily:    FamilyCohere,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "COHERE_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "cohere",
		Models: []ModelDef{
			{ID: "command-r-plus", DisplayName: "Command R+", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{2.5, 10}, ContextWindow: 128_000, MaxOutputTokens: 4_096},
			{ID: "command-r", DisplayName: "Command R", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{0.15, 0.6}, ContextWindow: 128_000, MaxOutputTokens: 4_096},
		},
	},
	"together": {
		Name:         "together",
		BaseURL:      "https://api.together.xyz/v1",
		UpstreamURL:  "https://api.together.xyz",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "TOGETHER_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "meta-llama/Llama-3.3-70B-Instruct-Turbo", DisplayName: "Llama 3.3 70B Turbo", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{0.88, 0.88}, ContextWindow: 131_072, MaxOutputTokens: 8_192},
			{ID: "deepseek-ai/DeepSeek-R1", DisplayName: "DeepSeek R1", Reasoning: true, InputModalities: textOnly, Cost: ModelCost{3, 7}, ContextWindow: 163_840, MaxOutputTokens: 32_768},
		},
	},
	"fireworks": {
		Name:         "fireworks",
		BaseURL:      "https://api.fireworks.ai/inference/v1",
		UpstreamURL:  "https://api.fireworks.ai/inference",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "FIREWORKS_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "accounts/fireworks/models/llama-v3p3-70b-instruct", DisplayName: "Llama 3.3 70B", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{0.9, 0.9}, ContextWindow: 131_072, MaxOutputTokens: 16_384},
			{ID: "accounts/fireworks/models/deepseek-r1", DisplayName: "DeepSeek R1", Reasoning: true, InputModalities: textOnly, Cost: ModelCost{3, 8}, ContextWindow: 163_840, MaxOutputTokens: 32_768},
		},
	},
	"cerebras": {
		Name:         "cerebras",
		BaseURL:      "https://api.cerebras.ai/v1",
		UpstreamURL:  "https://api.cerebras.ai",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "CEREBRAS_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "llama-3.3-70b", DisplayName: "Llama 3.3 70B", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{0.85, 1.2}, ContextWindow: 65_536, MaxOutputTokens: 8_192},
			{ID: "qwen-3-32b", DisplayName: "Qwen 3 32B", Reasoning: true, InputModalities: textOnly, Cost: ModelCost{0.4, 0.8}, ContextWindow: 65_536, MaxOutputTokens: 8_192},
		},
	},
	"perplexity": {
		Name:         "perplexity",
		BaseURL:      "https://api.perplexity.ai",
		UpstreamURL:  "https://api.perplexity.ai",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "PERPLEXITY_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "sonar-pro", DisplayName: "Sonar Pro", Reasoning: false, InputModalities: textOnly, Cost: ModelCost{3, 15}, ContextWindow: 200_000, MaxOutputTokens: 8_192},
			{ID: "sonar-reasoning-pro", DisplayName: "Sonar Reasoning Pro", Reasoning: true, InputModalities: textOnly, Cost: ModelCost{2, 8}, ContextWindow: 128_000, MaxOutputTokens: 8_192},
		},
	},
	"openrouter": {
		Name:         "openrouter",
		BaseURL:      "https://openrouter.ai/api/v1",
		UpstreamURL:  "https://openrouter.ai/api",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		EnvKey:       "OPENROUTER_API_KEY",
		RequiresAuth: true,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
		Models: []ModelDef{
			{ID: "anthropic/claude-sonnet-4", DisplayName: "Claude Sonnet 4 (OpenRouter)", Reasoning: true, InputModalities: textImage, Cost: ModelCost{3, 15}, ContextWindow: 200_000, MaxOutputTokens: 64_000},
			{ID: "openai/gpt-4o", DisplayName: "GPT-4o (OpenRouter)", Reasoning: false, InputModalities: textImage, Cost: ModelCost{2.5, 10}, ContextWindow: 128_000, MaxOutputTokens: 16_384},
		},
	},
	"ollama": {
		Name:         "ollama",
		BaseURL:      "http://localhost:11434",
		UpstreamURL:  "http://localhost:11434",
		APIFamily:    FamilyOllama,
		AuthMode:     AuthModeAPIKey,
		RequiresAuth: false,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
	},
	"llamacpp": {
		Name:         "llamacpp",
		BaseURL:      "http://localhost:8080/v1",
		UpstreamURL:  "http://localhost:8080",
		APIFamily:    FamilyOpenAI,
		AuthMode:     AuthModeAPIKey,
		RequiresAuth: false,
		AuthStyle:    AuthBearer,
		ParserType:   "openai",
	},
}
