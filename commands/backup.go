package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"zinga/audit"
)

// NewBackupCommand creates the backup command with its subcommands.
func NewBackupCommand(opts *rootOptions) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Backup management commands",
		Long:  "List, restore and prune the timestamped backups in the data directory",
	}

	backupCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			backups, err := a.store.ListBackups(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(backups) == 0 {
				fmt.Fprintln(out, "No backups found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FILENAME\tDATE")
			for _, b := range backups {
				fmt.Fprintf(w, "%s\t%s\n", b.Filename, b.Date.Format(time.RFC3339))
			}
			return w.Flush()
		},
	})

	backupCmd.AddCommand(&cobra.Command{
		Use:   "restore <filename>",
		Short: "Restore a backup into the live document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.store.RestoreBackup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.audit.Record(cmd.Context(), audit.ActionRestore, cliActor, map[string]any{
				"filename":    args[0],
				"moduleCount": result.ModuleCount,
				"userCount":   result.UserCount,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s: %d module(s), %d user(s).\n", args[0], result.ModuleCount, result.UserCount)
			return nil
		},
	})

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete backups beyond the retention policy",
		Long:  "Delete timestamped backups beyond --keep (newest kept) or older than --max-age. Without flags the configured policy applies. The permanent sidecar and pre-restore snapshots are never touched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			policy := a.store.Retention()
			if cmd.Flags().Changed("keep") {
				policy.Keep, _ = cmd.Flags().GetInt("keep")
			}
			if cmd.Flags().Changed("max-age") {
				policy.MaxAge, _ = cmd.Flags().GetDuration("max-age")
			}
			if policy.Keep < 0 || policy.MaxAge < 0 {
				return fmt.Errorf("--keep and --max-age must not be negative")
			}

			removed, err := a.store.PruneBackups(cmd.Context(), policy)
			if len(removed) > 0 {
				a.audit.Record(cmd.Context(), audit.ActionPrune, cliActor, map[string]any{"removed": removed})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d backup(s).\n", len(removed))
			return nil
		},
	}
	pruneCmd.Flags().Int("keep", 0, "Keep at most this many backups (0 = no count limit)")
	pruneCmd.Flags().Duration("max-age", 0, "Delete backups older than this, e.g. 720h (0 = no age limit)")
	backupCmd.AddCommand(pruneCmd)

	return backupCmd
}
