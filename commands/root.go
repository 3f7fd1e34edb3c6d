// Package commands holds the zinga command line: the HTTP server and the
// offline backup and audit tools that work on the same data directory.
package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"zinga/audit"
	"zinga/config"
	"zinga/db"
	"zinga/logger"
	"zinga/metrics"
)

// Version is overridden at build time with -ldflags "-X zinga/commands.Version=...".
var Version = "dev"

// cliActor is recorded in the audit trail for changes made from the command line.
const cliActor = "cli"

// rootOptions are the persistent flags. Only flags the user set override the
// environment.
type rootOptions struct {
	dataDir          string
	listenAddress    string
	listenPort       string
	logLevel         string
	requireAdminAuth bool
}

// NewRootCommand builds the zinga command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "zinga",
		Short: "Zinga Linga data server",
		Long: `zinga stores the Zinga Linga application document as a JSON file, guards it
against destructive saves, keeps timestamped backups plus a permanent sidecar,
and serves it over HTTP to the admin back office and the storefront.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.dataDir, "data-dir", "", "Directory holding the document and its backups (env DATA_DIR)")
	flags.StringVar(&opts.listenAddress, "listen-address", "", "Address to listen on (env ZINGA_LISTEN_ADDRESS)")
	flags.StringVar(&opts.listenPort, "port", "", "Port to listen on (env ZINGA_LISTEN_PORT)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (env ZINGA_LOG_LEVEL)")
	flags.BoolVar(&opts.requireAdminAuth, "require-admin-auth", false, "Require an admin token on admin routes (env ZINGA_REQUIRE_ADMIN_AUTH)")

	rootCmd.AddCommand(NewServeCommand(opts))
	rootCmd.AddCommand(NewBackupCommand(opts))
	rootCmd.AddCommand(NewResetCommand(opts))
	rootCmd.AddCommand(NewAuditCommand(opts))
	rootCmd.AddCommand(NewVersionCommand())
	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		return 1
	}
	return 0
}

// overrides turns the flags the user actually set into a partial Config plus
// the options for values a merge would skip.
func (o *rootOptions) overrides(cmd *cobra.Command) (*config.Config, []config.Option) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	cfg := &config.Config{}
	if set("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if set("listen-address") {
		cfg.ListenAddress = o.listenAddress
	}
	if set("port") {
		cfg.ListenPort = o.listenPort
	}
	if set("log-level") {
		cfg.LogLevel = o.logLevel
	}
	var opts []config.Option
	if set("require-admin-auth") {
		opts = append(opts, config.WithRequireAdminAuth(o.requireAdminAuth))
	}
	return cfg, opts
}

// app is everything a command needs to work on the data directory.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	store   *db.Store
	audit   *audit.Log
}

// newApp loads the configuration and opens the store and audit trail.
// Logs go to logOut.
func newApp(cmd *cobra.Command, opts *rootOptions, logOut io.Writer) (*app, error) {
	bootLog := logger.NewWithWriter(logOut, "zinga", "info")
	overrides, extra := opts.overrides(cmd)
	cfg, err := config.Load(overrides, bootLog, extra...)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.NewWithWriter(logOut, "zinga", cfg.LogLevel)
	m := metrics.New()
	store, err := db.NewStore(cfg, log, m)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	a := &app{cfg: cfg, log: log, metrics: m, store: store}
	if cfg.AuditEnabled() {
		trail, err := audit.Open(cfg.AuditPath(), log)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.AuditPath()).Msg("audit trail unavailable, continuing without it")
		} else {
			a.audit = trail
		}
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.audit.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close audit trail")
	}
}
