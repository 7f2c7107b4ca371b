package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulnbridge/internal/config"
	"github.com/xkilldash9x/vulnbridge/internal/network"
	"github.com/xkilldash9x/vulnbridge/internal/observability"
	"github.com/xkilldash9x/vulnbridge/internal/provider/factory"
)

// newValidateCmd creates the `validate` command. It runs the same pre-flight
// checks the fetch performs, without pulling any issues, so a pipeline can
// verify its wiring cheaply.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Checks connectivity, credentials, and name resolution without fetching issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			if violations := factory.ValidateConfig(&cfg.Provider); len(violations) > 0 {
				for _, v := range violations {
					fmt.Printf("FAIL  %s\n", v)
				}
				return fmt.Errorf("configuration is incomplete")
			}

			req := newRequester(cfg, logger)
			p, err := factory.New(&cfg.Provider, req, logger)
			if err != nil {
				return err
			}

			if res := p.ValidateConnection(ctx); !res.Success {
				fmt.Printf("FAIL  connection: %s\n", res.Error)
				return fmt.Errorf("connection validation failed")
			}
			fmt.Printf("OK    connection to %s (%s)\n", cfg.Provider.BaseURL, p.Kind())

			res := p.ValidateApplicationAndVersion(ctx, cfg.Provider.AppName, cfg.Provider.AppVersion)
			if !res.Success {
				fmt.Printf("FAIL  resolution: %s\n", res.Error)
				return fmt.Errorf("name resolution failed")
			}
			fmt.Printf("OK    %s %s resolved (application id %s, version id %s)\n",
				cfg.Provider.AppName, cfg.Provider.AppVersion, res.ApplicationID, res.VersionID)
			fmt.Printf("      %s\n", p.ProjectURL(res.ApplicationID, res.VersionID))

			logger.Info("Validation complete",
				zap.String("applicationId", res.ApplicationID),
				zap.String("versionId", res.VersionID),
			)
			return nil
		},
	}
}

// newRequester builds the shared requester from the network configuration.
func newRequester(cfg *config.Config, logger *zap.Logger) *network.Requester {
	cc := network.NewDefaultClientConfig()
	if cfg.Network.Timeout > 0 {
		cc.RequestTimeout = cfg.Network.Timeout
	}
	cc.IgnoreTLSErrors = cfg.Network.IgnoreTLSErrors
	cc.Logger = logger
	return network.NewRequester(cc, logger)
}
