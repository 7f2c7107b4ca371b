package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
	"github.com/xkilldash9x/vulnbridge/internal/config"
	"github.com/xkilldash9x/vulnbridge/internal/observability"
	"github.com/xkilldash9x/vulnbridge/internal/report"
	"github.com/xkilldash9x/vulnbridge/internal/store"
)

// newFetchCmd creates the `fetch` command: the full pipeline from validation
// through normalized report on disk.
func newFetchCmd() *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetches security findings and writes the normalized report",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			req := newRequester(cfg, logger)
			assembler := report.NewAssembler(req, logger)

			opts := report.Options{SkipValidation: viper.GetBool("skip-validation")}
			rd, err := assembler.Assemble(ctx, &cfg.Provider, opts)
			if err != nil {
				return err
			}

			if rd.Diagnostic != "" {
				logger.Warn("Report is degraded", zap.String("diagnostic", rd.Diagnostic))
			}

			output := viper.GetString("output")
			if err := report.WriteFile(output, rd); err != nil {
				return err
			}
			logger.Info("Report written",
				zap.String("path", output),
				zap.String("reportId", rd.ReportID),
				zap.Int("issues", rd.TotalCount),
			)

			// The journal is optional; a failure to record history must not
			// fail the pipeline that just produced a good report.
			if cfg.Database.URL != "" {
				recordRun(ctx, cfg.Database.URL, rd, logger)
			}

			fmt.Printf("Report complete: %d issues from %s (%s)\n", rd.TotalCount, rd.AppName, rd.Provider)
			return nil
		},
	}

	fetchCmd.Flags().StringP("output", "o", "vulnbridge-report.json", "Output file path for the report.")
	fetchCmd.Flags().Bool("skip-validation", false, "Skip pre-flight checks; failures yield an empty report with a diagnostic.")

	return fetchCmd
}

// recordRun journals the run when a database is configured. Errors are logged
// and swallowed.
func recordRun(ctx context.Context, dbURL string, rd *schemas.ReportData, logger *zap.Logger) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Warn("Run history unavailable, could not connect to database", zap.Error(err))
		return
	}
	defer pool.Close()

	journal, err := store.New(ctx, pool, logger)
	if err != nil {
		logger.Warn("Run history unavailable", zap.Error(err))
		return
	}
	if err := journal.RecordRun(ctx, rd); err != nil {
		logger.Warn("Failed to journal run", zap.Error(err))
		return
	}
	logger.Debug("Run journaled", zap.String("reportId", rd.ReportID))
}
