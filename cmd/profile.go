package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shroud/internal/fingerprint"
	"github.com/xkilldash9x/shroud/internal/observability"
	"github.com/xkilldash9x/shroud/internal/stealth"
	"github.com/xkilldash9x/shroud/internal/store"
)

// newProfileCmd creates and configures the `profile` command.
func newProfileCmd() *cobra.Command {
	var (
		emitScript bool
		persist    bool
	)

	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Generate a fingerprint profile for a seed and print it",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("fingerprint.seed", cmd.Flags().Lookup("seed")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			seed := viper.GetString("fingerprint.seed")

			profile := fingerprint.NewProfile(seed, fingerprint.DeviceClass(cfg.Fingerprint.DeviceClass))

			if persist {
				if !cfg.Store.Enabled {
					return fmt.Errorf("store is not enabled in configuration")
				}
				pool, err := pgxpool.New(cmd.Context(), cfg.Store.URL)
				if err != nil {
					return fmt.Errorf("failed to connect to store: %w", err)
				}
				defer pool.Close()

				st, err := store.New(cmd.Context(), pool, logger)
				if err != nil {
					return err
				}
				if err := st.SaveProfile(cmd.Context(), profile); err != nil {
					return err
				}
				logger.Info("Profile persisted", zap.String("seed", profile.Seed))
			}

			if emitScript {
				fmt.Fprintln(cmd.OutOrStdout(), stealth.NewAssembler(profile).Script())
				return nil
			}

			out, err := json.MarshalIndent(profile, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal profile: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	profileCmd.Flags().String("seed", "", "identity seed; empty generates a fresh one")
	profileCmd.Flags().BoolVar(&emitScript, "script", false, "print the assembled override script instead of the profile")
	profileCmd.Flags().BoolVar(&persist, "persist", false, "persist the profile to the configured store")
	return profileCmd
}

func init() {
	rootCmd.AddCommand(newProfileCmd())
}
