package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shroud/internal/fingerprint"
	"github.com/xkilldash9x/shroud/internal/observability"
	"github.com/xkilldash9x/shroud/internal/proxy"
	"github.com/xkilldash9x/shroud/internal/store"
)

// newProxyCmd creates and configures the `proxy` command.
func newProxyCmd() *cobra.Command {
	proxyCmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the interception proxy between an automation client and a browser",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("proxy.listen_addr", cmd.Flags().Lookup("listen")); err != nil {
				return err
			}
			if err := viper.BindPFlag("proxy.upstream_url", cmd.Flags().Lookup("upstream")); err != nil {
				return err
			}
			if err := viper.BindPFlag("fingerprint.seed", cmd.Flags().Lookup("seed")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			// Flag overrides landed in viper after PreRunE; refresh the
			// typed view.
			cfg.Proxy.ListenAddr = viper.GetString("proxy.listen_addr")
			cfg.Proxy.UpstreamURL = viper.GetString("proxy.upstream_url")
			cfg.Fingerprint.Seed = viper.GetString("fingerprint.seed")

			profile := fingerprint.NewProfile(cfg.Fingerprint.Seed, fingerprint.DeviceClass(cfg.Fingerprint.DeviceClass))
			logger.Info("Spoofing identity",
				zap.String("seed", profile.Seed),
				zap.String("user_agent", profile.UserAgent),
				zap.String("timezone", profile.Timezone))

			server, err := proxy.NewServer(cfg.Proxy, profile, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.Store.Enabled {
				pool, err := pgxpool.New(ctx, cfg.Store.URL)
				if err != nil {
					return fmt.Errorf("failed to connect to store: %w", err)
				}
				defer pool.Close()

				st, err := store.New(ctx, pool, logger)
				if err != nil {
					return err
				}
				server.OnSessionClosed = func(sessionID string, stats proxy.StatsSnapshot) {
					if err := st.SaveSessionStats(ctx, sessionID, profile.Seed, stats); err != nil {
						logger.Warn("Failed to persist session stats",
							zap.String("session_id", sessionID), zap.Error(err))
					}
				}
			}

			return server.ListenAndServe(ctx)
		},
	}

	proxyCmd.Flags().String("listen", "", "client-facing listen address (host:port)")
	proxyCmd.Flags().String("upstream", "", "browser debugging websocket URL")
	proxyCmd.Flags().String("seed", "", "identity seed; empty generates a fresh one")
	return proxyCmd
}

func init() {
	rootCmd.AddCommand(newProxyCmd())
}
