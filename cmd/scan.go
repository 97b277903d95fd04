package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/vin-monitor/internal/monitor"
	"github.com/JakeFAU/vin-monitor/internal/telemetry"
)

// newScanCmd creates the 'scan' subcommand, which performs one monitoring pass.
func newScanCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Search every provider once and notify about new matches",
		Long: `Runs one reconciliation pass: each identifier is searched as an exact
phrase, result URLs are normalized and compared with the stored seen-set,
new URLs are reported on every configured channel, and the updated state
is saved once at the end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "search and diff, but skip notifications and the state save")
	return cmd
}

func runScan(cmd *cobra.Command, dryRun bool) error {
	sess, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}
	if err := sess.cfg.RequireIdentifiers(); err != nil {
		return withCode(ExitConfig, err)
	}

	tp, err := telemetry.InitTracerProvider(cmd.Context(), telemetry.ServiceName)
	if err != nil {
		return withCode(ExitFailure, fmt.Errorf("init tracing: %w", err))
	}
	defer func() {
		if serr := tp.Shutdown(context.WithoutCancel(cmd.Context())); serr != nil {
			sess.logger.Warn("tracer shutdown failed", zap.Error(serr))
		}
	}()

	appInstance, err := newApp(cmd.Context(), sess.cfg, sess.logger)
	if err != nil {
		return withCode(ExitFailure, fmt.Errorf("failed to initialize application services: %w", err))
	}
	defer appInstance.Close()

	engine, err := appInstance.Engine(monitor.Options{DryRun: dryRun})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	report, runErr := engine.Run(cmd.Context(), sess.cfg.Identifiers)
	if report != nil {
		out := cmd.OutOrStdout()
		for _, id := range report.Identifiers {
			fmt.Fprintf(out, "%s\tscanned=%d\tnew=%d\n", id.Identifier, id.Scanned, len(id.New))
		}
	}
	if pushErr := appInstance.PushMetrics(cmd.Context()); pushErr != nil {
		appInstance.Logger().Warn("metrics push failed", zap.Error(pushErr))
	}
	if runErr != nil {
		return withCode(ExitFailure, runErr)
	}
	return nil
}
