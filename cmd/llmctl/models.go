package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/gluk-w/claworc/llm-router/internal/config"
	"github.com/gluk-w/claworc/llm-router/internal/discovery"
)

func modelsCmd() *cobra.Command {
	var (
		available bool
		provider  string
		probe     bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List catalog and discovered models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			opts := discovery.Options{Store: store, Timeout: config.Cfg.DiscoveryTimeout}
			if probe {
				opts.Local = config.Cfg.DiscoverLocal
				opts.Remote = config.Cfg.DiscoverRemote
			}
			if opts.Timeout <= 0 {
				opts.Timeout = 3 * time.Second
			}

			models := discovery.New(opts).ListAvailableModels(cmd.Context())
			kept := models[:0]
			for _, m := range models {
				if available && !m.Available {
					continue
				}
				if provider != "" && m.Provider != provider {
					continue
				}
				kept = append(kept, m)
			}

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(kept)
			}
			return renderModels(cmd.OutOrStdout(), kept)
		},
	}
	cmd.Flags().BoolVarP(&available, "available", "a", false, "Only models with a usable credential")
	cmd.Flags().StringVar(&provider, "provider", "", "Only this provider")
	cmd.Flags().BoolVar(&probe, "probe", true, "Query local servers and hosted model listings")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
