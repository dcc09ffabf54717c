package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
)

func profilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"profile", "p"},
		Short:   "Manage named credentials",
		Long: `Profiles are named credentials, "<provider>:<label>", rotated by the
router when a provider has no key in the environment.

Examples:
  llmctl profiles list
  llmctl profiles add openai:team --secret sk-...
  echo "$TOKEN" | llmctl profiles add github-copilot:me --type token
  llmctl profiles reset anthropic:work
  llmctl profiles remove anthropic:old`,
	}

	cmd.AddCommand(
		profilesListCmd(),
		profilesAddCmd(),
		profilesRemoveCmd(),
		profilesResetCmd(),
	)
	return cmd
}

func profilesListCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles with their rotation state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			stats := store.AllProfileStats()
			if provider != "" {
				kept := stats[:0]
				for _, ps := range stats {
					if ps.Provider == provider {
						kept = append(kept, ps)
					}
				}
				stats = kept
			}
			return renderProfiles(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Only list this provider's profiles")
	return cmd
}

func profilesAddCmd() *cobra.Command {
	var typ, secret string
	cmd := &cobra.Command{
		Use:   "add <provider:label>",
		Short: "Add or replace a profile",
		Long:  "Add or replace a profile. Without --secret the secret is read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 64*1024))
				if err != nil {
					return fmt.Errorf("read secret: %w", err)
				}
				secret = string(data)
			}
			secret = strings.TrimSpace(secret)
			if secret == "" {
				return errors.New("a secret is required")
			}
			cred, err := authprofiles.ParseCredential(typ, secret)
			if err != nil {
				return err
			}

			store, err := loadStore()
			if err != nil {
				return err
			}
			if err := store.AddProfile(args[0], cred); err != nil {
				return err
			}
			if err := store.Save(configDir); err != nil {
				return err
			}
			ps, _ := store.GetProfileStats(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %s)\n", color.GreenString("added"), ps.ID, ps.Type, ps.Secret)
			return nil
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", string(authprofiles.TypeAPIKey), "Credential type: api_key, token or oauth")
	cmd.Flags().StringVarP(&secret, "secret", "s", "", "Secret value (read from stdin when empty)")
	return cmd
}

func profilesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <provider:label>",
		Aliases: []string{"rm"},
		Short:   "Delete a profile and its usage stats",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadStore()
			if err != nil {
				return err
			}
			if err := store.RemoveProfile(args[0]); err != nil {
				return err
			}
			if err := store.Save(configDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.YellowString("removed"), args[0])
			return nil
		},
	}
}

func profilesResetCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reset [provider:label]",
		Short: "Clear a profile's cooldown and error streak",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("give a profile id or --all")
			}
			store, err := loadStore()
			if err != nil {
				return err
			}
			ids := args
			if all {
				ids = nil
				for _, ps := range store.AllProfileStats() {
					ids = append(ids, ps.ID)
				}
			}
			for _, id := range ids {
				if err := store.ResetProfileCooldown(id); err != nil {
					return err
				}
			}
			if err := store.Save(configDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d profile(s)\n", color.GreenString("reset"), len(ids))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reset every profile")
	return cmd
}
