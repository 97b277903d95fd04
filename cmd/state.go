package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/vin-monitor/internal/seen"
)

// newStateCmd groups commands that inspect persisted state.
func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the stored seen-set",
	}
	cmd.AddCommand(newStateShowCmd())
	return cmd
}

func newStateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [identifier]",
		Short: "Print URL counts per identifier, or the URLs of one identifier",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStateShow,
	}
}

func runStateShow(cmd *cobra.Command, args []string) error {
	sess, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), sess.cfg.State)
	if err != nil {
		return withCode(ExitFailure, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			sess.logger.Warn("error closing state store", zap.Error(cerr))
		}
	}()

	state, err := store.Load(cmd.Context())
	if err != nil {
		sess.logger.Warn("state load failed", zap.String("store", store.Describe()), zap.Error(err))
	}
	if state == nil {
		state = seen.New()
	}

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		for _, u := range state.Seen(args[0]).Sorted() {
			fmt.Fprintln(out, u)
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTIFIER\tURLS")
	for _, id := range state.Identifiers() {
		fmt.Fprintf(tw, "%s\t%d\n", id, len(state.Seen(id)))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
