package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulnbridge/internal/config"
	"github.com/xkilldash9x/vulnbridge/internal/observability"
)

var (
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vulnbridge",
	Short: "vulnbridge pulls security findings from SSC or FoD into a unified report.",
	// Version is dynamically set at build time. See cmd/version.go.
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(cmd); err != nil {
			return err
		}

		cfg, err := config.NewFromViper(viper.GetViper())
		if err != nil {
			// Fall back to a minimal logger so the failure is still visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "vulnbridge"})
			return err
		}

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting vulnbridge", zap.String("version", Version))
		return nil
	},
}

// ExecuteContext runs the root command with a caller-provided context so
// signal cancellation reaches every in-flight request.
func ExecuteContext(ctx context.Context) {
	defer observability.Sync()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./vulnbridge.yaml)")
	rootCmd.PersistentFlags().String("provider", "", "provider kind: ssc or fod (default inferred from credentials)")
	rootCmd.PersistentFlags().String("url", "", "provider base URL")
	rootCmd.PersistentFlags().String("app", "", "application (project) name")
	rootCmd.PersistentFlags().String("app-version", "", "application version (release) name")
	rootCmd.PersistentFlags().Int("max-issues", 0, "cap the number of issues fetched")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initializeConfig reads the config file and environment, then binds the
// provider override flags so their precedence over file values is correct.
func initializeConfig(cmd *cobra.Command) error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName("vulnbridge")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("VULNBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"provider.kind":        "provider",
		"provider.base_url":    "url",
		"provider.app_name":    "app",
		"provider.app_version": "app-version",
		"provider.max_issues":  "max-issues",
	} {
		f := flags.Lookup(flag)
		if f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}
