package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clubsync/internal/logging"
	"clubsync/internal/sync"
	"clubsync/internal/web"
)

// NewServeCommand runs the HTTP API plus the supervisory scheduler until
// interrupted.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sync scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.Named("serve")

			st, syncer, err := opts.openEngine()
			if err != nil {
				return err
			}
			defer st.Close()

			var scheduler *sync.Scheduler
			if opts.cfg.Scheduler.Enabled {
				scheduler, err = sync.NewScheduler(syncer, opts.cfg.Scheduler.Cron)
				if err != nil {
					return err
				}
				scheduler.Start()
				defer scheduler.Stop()
			}

			srv := web.NewServer(opts.cfg.Listen, st, st, syncer)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
}
