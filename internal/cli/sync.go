package cli

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"clubsync/internal/sync"
)

// NewSyncCommand runs one synchronization from the terminal: a single
// configuration when an ID is given, every active configuration otherwise.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [sync-id]",
		Short: "Run a one-shot sync of one or all active configurations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, syncer, err := opts.openEngine()
			if err != nil {
				return err
			}
			defer st.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if len(args) == 1 {
				res, err := syncer.Sync(cmd.Context(), args[0])
				if err != nil && !errors.Is(err, sync.ErrSyncCancelled) {
					if res != nil {
						enc.Encode(res)
					}
					return err
				}
				return enc.Encode(res)
			}

			results, err := syncer.SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			return enc.Encode(results)
		},
	}
}
