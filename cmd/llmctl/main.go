// Command llmctl manages the router's auth profiles and usage history
// directly in its config directory, and can run one-off completions with
// failover.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
	"github.com/gluk-w/claworc/llm-router/internal/config"
	"github.com/gluk-w/claworc/llm-router/internal/providers"
	"github.com/gluk-w/claworc/llm-router/internal/usage"
)

var (
	version   = "0.1.0"
	configDir string
	noColor   bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "llmctl",
		Short:   "Operate the LLM router's profiles, usage and models",
		Version: version,
		Long: `llmctl works on the files in the router's config directory:

  auth-profiles.json      named credentials and their cooldown state
  usage-history.json      daily token usage per provider
  model-equivalents.yaml  optional cross-provider model pairings

Examples:
  llmctl profiles add anthropic:work --secret sk-ant-...
  llmctl profiles list
  llmctl usage --days 7
  llmctl complete -p anthropic -m claude-sonnet-4-20250514 -f openai "hello"`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.Load()
			if configDir == "" {
				configDir = config.Cfg.ConfigDir
			}
			if config.Cfg.OllamaURL != "" {
				providers.SetCustomUpstream("ollama", config.Cfg.OllamaURL)
			}
			if config.Cfg.LlamaCppURL != "" {
				providers.SetCustomUpstream("llamacpp", config.Cfg.LlamaCppURL)
			}
			setColor(!noColor)
		},
	}

	root.PersistentFlags().StringVarP(&configDir, "config-dir", "c", "", "Router config directory (default $LLM_ROUTER_CONFIG_DIR)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		profilesCmd(),
		usageCmd(),
		modelsCmd(),
		completeCmd(),
	)
	return root
}

func loadStore() (*authprofiles.Store, error) {
	store, err := authprofiles.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load auth profiles: %w", err)
	}
	return store, nil
}

func loadTracker() (*usage.Tracker, error) {
	tracker := usage.NewTracker()
	if err := tracker.Load(usagePath()); err != nil {
		return nil, err
	}
	return tracker, nil
}

func usagePath() string {
	s := config.Cfg
	s.ConfigDir = configDir
	return s.UsageHistoryPath()
}

func equivalencePath() string {
	s := config.Cfg
	s.ConfigDir = configDir
	return s.EquivalenceOverridesPath()
}
