// Package cli wires the clubsync commands: serve (API + scheduler), sync
// (one-shot runs) and configuration management from the terminal.
package cli

import (
	"github.com/spf13/cobra"

	"clubsync/internal/config"
	"clubsync/internal/logging"
	"clubsync/internal/store"
	"clubsync/internal/sync"
)

// RootOptions holds global flags plus the state shared by subcommands once
// the root's PersistentPreRunE has run.
type RootOptions struct {
	ConfigPath string

	cfg *config.Config
}

// NewRootCommand creates the clubsync root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "clubsync",
		Short:         "clubsync - external calendar synchronization for clubs",
		Long:          "clubsync keeps club calendars in step with external ICS feeds:\nit fetches, parses and expands feeds and reconciles the result into\nthe local event store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			logging.Init(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "clubsync.yaml", "path to the configuration file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

// openEngine opens the store and builds the orchestrator over it.
func (o *RootOptions) openEngine() (*store.Store, *sync.Syncer, error) {
	st, err := store.Open(o.cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	fetcher := sync.NewHTTPFetcher(o.cfg.FetchTimeout())
	return st, sync.New(st, st, fetcher), nil
}
