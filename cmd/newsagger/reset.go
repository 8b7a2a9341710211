package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"newsagger/pkg/storage"
)

var (
	resetFailed bool
	resetStuck  bool
	resetClean  bool
)

// resetCmd recovers from failed or interrupted runs
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Recover queue items and clean up after interrupted runs",
	Long: `Puts failed queue items back in the queue, requeues items a killed run
left marked active, and removes incomplete artifact files from disk.`,
	Example: `  # Retry everything that failed
  newsagger reset --failed

  # Full recovery after a crash
  newsagger reset --failed --stuck --clean`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetFailed && !resetStuck && !resetClean {
			return errors.New("nothing to do, pass --failed, --stuck or --clean")
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if resetFailed {
			count, err := st.ResumeFailed()
			if err != nil {
				return err
			}
			fmt.Printf("Requeued %d failed items\n", count)
		}
		if resetStuck {
			count, err := st.ResetStuck()
			if err != nil {
				return err
			}
			fmt.Printf("Requeued %d stuck items\n", count)
		}
		if resetClean {
			files, err := storage.NewManager(cfg.Download.Directory)
			if err != nil {
				return err
			}
			count, err := files.CleanIncomplete()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d incomplete files\n", count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVar(&resetFailed, "failed", false, "requeue failed queue items")
	resetCmd.Flags().BoolVar(&resetStuck, "stuck", false, "requeue items left active by a killed run")
	resetCmd.Flags().BoolVar(&resetClean, "clean", false, "remove incomplete artifact files from disk")
}
