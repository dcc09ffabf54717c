package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ConfigDir          string        `envconfig:"CONFIG_DIR" default:"/app/data"`
	DatabasePath       string        `envconfig:"DATABASE_PATH" default:"/app/data/llm-router.db"`
	AdminSecret        string        `envconfig:"ADMIN_SECRET" default:""`
	ListenAddr         string        `envconfig:"LISTEN_ADDR" default:":8080"`
	OllamaURL          string        `envconfig:"OLLAMA_URL" default:""`
	LlamaCppURL        string        `envconfig:"LLAMACPP_URL" default:""`
	ModelsTTL          time.Duration `envconfig:"MODELS_TTL" default:"60s"`
	DiscoveryTimeout   time.Duration `envconfig:"DISCOVERY_TIMEOUT" default:"3s"`
	UsageFlushInterval time.Duration `envconfig:"USAGE_FLUSH_INTERVAL" default:"30s"`
	DiscoverLocal      []string      `envconfig:"DISCOVER_LOCAL" default:"ollama,llamacpp"`
	DiscoverRemote     []string      `envconfig:"DISCOVER_REMOTE" default:"openrouter"`
	AuditRetention     time.Duration `envconfig:"AUDIT_RETENTION" default:"720h"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("LLM_ROUTER", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// UsageHistoryPath is where the usage tracker persists its daily totals.
func (s Settings) UsageHistoryPath() string {
	return filepath.Join(s.ConfigDir, "usage-history.json")
}

// EquivalenceOverridesPath is the optional YAML file that extends the
// built-in model equivalence table.
func (s Settings) EquivalenceOverridesPath() string {
	return filepath.Join(s.ConfigDir, "model-equivalents.yaml")
}
