package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsagger/pkg/discovery"
)

var (
	batchMax         int
	batchAutoEnqueue bool
)

// batchDiscoverCmd walks the archive's digitization batches
var batchDiscoverCmd = &cobra.Command{
	Use:   "batch-discover",
	Short: "Discover pages by walking the archive's digitization batches",
	Long: `Walks the archive batch by batch, issue by issue, storing every page it
finds. The walk position is persisted after every issue, so a crawl that is
interrupted or CAPTCHA-blocked resumes from the exact issue it stopped at.

With --auto-enqueue, every discovered page is queued for download in the
same transaction that stores it.`,
	Example: `  # Walk the whole archive
  newsagger batch-discover

  # First three batches, queueing pages as they are found
  newsagger batch-discover --max-batches 3 --auto-enqueue`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		manager, st, err := newDiscoveryManager()
		if err != nil {
			return err
		}
		defer st.Close()

		autoEnqueue := batchAutoEnqueue || cfg.Discovery.AutoEnqueue
		stats, err := manager.DiscoverViaBatches(ctx, discovery.BatchOptions{
			MaxBatches:  batchMax,
			AutoEnqueue: autoEnqueue,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d batches: %d pages discovered, %d enqueued, %d batch errors\n",
			stats.ProcessedBatches, stats.DiscoveredPages, stats.EnqueuedPages, stats.Errors)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchDiscoverCmd)

	batchDiscoverCmd.Flags().IntVar(&batchMax, "max-batches", 0, "stop after this many batches (0 = all)")
	batchDiscoverCmd.Flags().BoolVar(&batchAutoEnqueue, "auto-enqueue", false, "queue pages for download as they are discovered")
}
