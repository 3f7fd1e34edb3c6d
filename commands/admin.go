package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"zinga/audit"
)

// NewResetCommand creates the reset command.
func NewResetCommand(opts *rootOptions) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace the document with the seed data",
		Long:  "Back up the live document and overwrite it with the seed data. The permanent sidecar is kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("refusing to reset without --yes")
			}
			a, err := newApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.store.Reset(cmd.Context())
			if err != nil {
				return err
			}
			a.audit.Record(cmd.Context(), audit.ActionReset, cliActor, map[string]any{"version": doc.Version})
			fmt.Fprintf(cmd.OutOrStdout(), "Document reset to defaults (version %d).\n", doc.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the reset")
	return cmd
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		action string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent document changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.audit == nil {
				return errors.New("audit trail is disabled (ZINGA_AUDIT_DB=off)")
			}

			entries, err := a.audit.List(cmd.Context(), audit.Filter{Action: action, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No audit entries.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tACTOR\tDETAIL")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Action, e.Actor, e.Detail)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	cmd.Flags().StringVar(&action, "action", "", "Only show this action (save, restore, reset, ...)")
	return cmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the zinga version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zinga %s\n", Version)
		},
	}
}
