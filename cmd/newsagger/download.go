package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"newsagger/internal/downloader"
	"newsagger/pkg/storage"
)

var (
	downloadMaxItems   int
	downloadMaxSizeMB  float64
	downloadConcurrent int
	downloadContinuous bool
	downloadMaxIdle    time.Duration
	downloadDryRun     bool
)

// downloadCmd drains the download queue
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download queued pages to disk",
	Long: `Drains the download queue in priority order, fetching every requested
artifact of each page into the download directory. Failed items stay in the
queue marked failed and can be retried with 'newsagger reset --failed'.

In continuous mode the command keeps polling for new work, which pairs with
a discovery run using --auto-enqueue in another terminal.`,
	Example: `  # Download up to 100 items
  newsagger download --max-items 100

  # Keep draining until the queue stays empty for 10 minutes
  newsagger download --continuous --max-idle 10m

  # Estimate what a run would fetch
  newsagger download --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		files, err := storage.NewManager(cfg.Download.Directory)
		if err != nil {
			return err
		}

		client := newArchiveClient()
		proc := downloader.New(st, client, files, &cfg.Download, log)

		maxIdle := downloadMaxIdle
		if !cmd.Flags().Changed("max-idle") {
			maxIdle = cfg.Download.MaxIdleTime
		}

		summary, err := proc.ProcessQueue(ctx, downloader.Options{
			MaxItems:    downloadMaxItems,
			MaxSizeMB:   downloadMaxSizeMB,
			Concurrency: downloadConcurrent,
			Continuous:  downloadContinuous,
			MaxIdleTime: maxIdle,
			DryRun:      downloadDryRun,
		})
		if err != nil {
			return err
		}

		if downloadDryRun {
			fmt.Printf("Would download %d items, about %.1f MB\n", summary.Skipped, summary.TotalSizeMB)
			return nil
		}
		fmt.Printf("Processed %d items in %s: %d errors, %d skipped, %.1f MB written\n",
			summary.ItemsProcessed, summary.Duration.Round(time.Second),
			summary.Errors, summary.Skipped, summary.TotalSizeMB)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().IntVar(&downloadMaxItems, "max-items", 0, "stop after this many queue items (0 = no cap)")
	downloadCmd.Flags().Float64Var(&downloadMaxSizeMB, "max-size-mb", 0, "stop once the size estimate reaches this many MB (0 = no cap)")
	downloadCmd.Flags().IntVar(&downloadConcurrent, "concurrent", 1, "queue items processed at once; requests still go through the shared pacer, so this overlaps disk writes without raising the request rate")
	downloadCmd.Flags().BoolVar(&downloadContinuous, "continuous", false, "keep polling the queue for new work")
	downloadCmd.Flags().DurationVar(&downloadMaxIdle, "max-idle", 0, "stop a continuous run after the queue stays empty this long")
	downloadCmd.Flags().BoolVar(&downloadDryRun, "dry-run", false, "report what would be downloaded without fetching")
}
