package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"newsagger/internal/store"
	"newsagger/pkg/discovery"
	"newsagger/pkg/models"
	"newsagger/pkg/storage"
)

var statusFacets bool

// statusCmd reports crawl progress
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show discovery and download progress",
	Example: `  # Overall progress
  newsagger status

  # Include a per-facet breakdown
  newsagger status --facets`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.StorageStats()
		if err != nil {
			return err
		}
		queue, err := st.QueueStats()
		if err != nil {
			return err
		}

		fmt.Println("Archive state")
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintf(w, "  Titles\t%d\n", stats.Periodicals)
		fmt.Fprintf(w, "  Issues\t%d\n", stats.Issues)
		fmt.Fprintf(w, "  Pages\t%d\n", stats.Pages)
		fmt.Fprintf(w, "  Downloaded\t%d\n", stats.DownloadedPages)
		fmt.Fprintf(w, "  Facets\t%d\n", stats.Facets)
		w.Flush()

		fmt.Println("\nDownload queue")
		w = tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, status := range []string{
			models.QueueStatusQueued,
			models.QueueStatusActive,
			models.QueueStatusCompleted,
			models.QueueStatusFailed,
			models.QueueStatusPaused,
		} {
			if count, ok := queue[status]; ok {
				fmt.Fprintf(w, "  %s\t%d\n", status, count)
			}
		}
		w.Flush()

		if session, err := st.GetBatchSession(discovery.BatchSessionName); err != nil {
			return err
		} else if session != nil {
			fmt.Println("\nBatch discovery")
			w = tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintf(w, "  Status\t%s\n", session.Status)
			fmt.Fprintf(w, "  Batch\t%d/%d (%s)\n", session.CurrentBatchIndex+1, session.TotalBatches, session.CurrentBatchName)
			fmt.Fprintf(w, "  Issue\t%d/%d\n", session.CurrentIssueIndex+1, session.IssuesInBatch)
			fmt.Fprintf(w, "  Pages discovered\t%d\n", session.PagesDiscovered)
			fmt.Fprintf(w, "  Pages enqueued\t%d\n", session.PagesEnqueued)
			if session.ErrorMessage != "" {
				fmt.Fprintf(w, "  Last error\t%s\n", session.ErrorMessage)
			}
			w.Flush()
		}

		if files, err := storage.NewManager(cfg.Download.Directory); err == nil {
			if bytes, count, err := files.DiskUsage(); err == nil {
				fmt.Printf("\nDisk: %d files, %.1f MB in %s\n", count, float64(bytes)/(1024*1024), files.RootDir())
			}
		}

		if statusFacets {
			if err := printFacets(st); err != nil {
				return err
			}
		}
		return nil
	},
}

func printFacets(st *store.Store) error {
	facets, err := st.GetFacets("", "")
	if err != nil {
		return err
	}
	if len(facets) == 0 {
		return nil
	}

	fmt.Println("\nFacets")
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTYPE\tVALUE\tSTATUS\tDISCOVERED\tESTIMATED")
	for _, facet := range facets {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%d\t%d\n",
			facet.ID, facet.Type, facet.Value, facet.Status, facet.ItemsDiscovered, facet.EstimatedItems)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusFacets, "facets", false, "include a per-facet breakdown")
}
