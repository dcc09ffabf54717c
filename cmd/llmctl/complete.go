package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gluk-w/claworc/llm-router/internal/backend"
	"github.com/gluk-w/claworc/llm-router/internal/equivalence"
	"github.com/gluk-w/claworc/llm-router/internal/failover"
)

func completeCmd() *cobra.Command {
	var (
		provider    string
		model       string
		fallbacks   []string
		system      string
		temperature float64
		maxTokens   int
		verbose     bool
	)
	cmd := &cobra.Command{
		Use:   "complete [flags] <prompt...>",
		Short: "Run one completion with failover",
		Long: `Send a single user message to a provider, falling back to the listed
providers with an equivalent model when it fails or has no credential.
Profile cooldowns and token usage are written back to the config directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" || model == "" {
				return errors.New("--provider and --model are required")
			}
			tracker, err := loadTracker()
			if err != nil {
				return err
			}
			resolver := equivalence.New()
			if err := resolver.LoadOverrides(equivalencePath()); err != nil {
				return err
			}

			req := backend.Request{
				System:   system,
				Messages: []backend.Message{{Role: "user", Content: strings.Join(args, " ")}},
			}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			if maxTokens > 0 {
				req.MaxTokens = &maxTokens
			}

			errOut := cmd.ErrOrStderr()
			res, err := failover.Run(cmd.Context(), failover.Options[*backend.Response]{
				Provider:  provider,
				Model:     model,
				Fallbacks: fallbacks,
				Run:       backend.New(tracker).Runner(req),
				ConfigDir: configDir,
				Resolver:  resolver,
				OnFallback: func(ev failover.FallbackEvent) {
					fmt.Fprintf(errOut, "%s %s/%s -> %s/%s\n", color.YellowString("fallback"),
						ev.From.Provider, ev.From.Model, ev.To.Provider, ev.To.Model)
				},
			})
			if saveErr := tracker.Save(usagePath()); saveErr != nil {
				fmt.Fprintf(errOut, "warning: %v\n", saveErr)
			}
			if err != nil {
				var exhausted *failover.ExhaustedError
				if errors.As(err, &exhausted) {
					renderAttempts(errOut, exhausted.Attempts)
				}
				return err
			}

			if verbose {
				renderAttempts(errOut, res.Attempts)
				fmt.Fprintf(errOut, "%s %s/%s, %d in / %d out\n", color.GreenString("ok"),
					res.Provider, res.Model, res.Result.InputTokens, res.Result.OutputTokens)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Result.Content)
			return nil
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Primary provider")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Primary model id")
	cmd.Flags().StringSliceVarP(&fallbacks, "fallback", "f", nil, "Fallback providers, in order (repeatable or comma separated)")
	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Output token limit")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print attempts and token counts to stderr")
	return cmd
}
