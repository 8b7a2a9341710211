package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	errs "newsagger/pkg/errors"
	"newsagger/pkg/models"
)

var (
	facetStates     []string
	facetAllStates  bool
	facetBatchSize  int
	facetMaxItems   int
	facetAll        bool
	enqueueMaxItems int
	enqueueAll      bool
)

// facetsCmd groups facet planning, discovery and enqueueing
var facetsCmd = &cobra.Command{
	Use:   "facets",
	Short: "Partition the archive and discover its content in resumable units",
}

var facetsPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create date range facets, and state facets if requested",
	Long: `Partitions the configured year span into date range facets, one per
configured step. With --states, additionally creates one facet per state.
Existing facets are left untouched, so planning is idempotent.`,
	Example: `  # Date ranges from the configured year span
  newsagger facets plan

  # Add state facets on top
  newsagger facets plan --states California --states "New York"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, st, err := newDiscoveryManager()
		if err != nil {
			return err
		}
		defer st.Close()

		created, err := manager.CreateDateRangeFacets(cfg.Discovery.StartYear, cfg.Discovery.EndYear, cfg.Discovery.YearsPerFacet)
		if err != nil {
			return err
		}
		fmt.Printf("Created %d date range facets\n", len(created))

		if facetAllStates || len(facetStates) > 0 {
			states := facetStates
			if facetAllStates {
				states = nil
			}
			created, err := manager.CreateStateFacets(states)
			if err != nil {
				return err
			}
			fmt.Printf("Created %d state facets\n", len(created))
		}
		return nil
	},
}

var facetsDiscoverCmd = &cobra.Command{
	Use:   "discover [facet-id]",
	Short: "Discover the pages inside one facet, or all unfinished facets",
	Long: `Searches the archive for every page matching a facet, storing results
as it goes. Progress is checkpointed per result page, so an interrupted or
CAPTCHA-blocked facet resumes where it stopped.`,
	Example: `  # One facet by id
  newsagger facets discover 3

  # Every facet that is not yet complete
  newsagger facets discover --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !facetAll {
			return errors.New("provide a facet id or use --all")
		}

		ctx, cancel := signalContext()
		defer cancel()

		manager, st, err := newDiscoveryManager()
		if err != nil {
			return err
		}
		defer st.Close()

		batchSize := facetBatchSize
		if batchSize <= 0 {
			batchSize = cfg.Discovery.BatchSize
		}

		if len(args) == 1 {
			facetID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid facet id %q", args[0])
			}
			count, err := manager.DiscoverFacetContent(ctx, facetID, batchSize, facetMaxItems)
			if err != nil {
				return err
			}
			fmt.Printf("Facet %d: %d items discovered\n", facetID, count)
			return nil
		}

		facets, err := st.GetFacets("", "")
		if err != nil {
			return err
		}
		total := 0
		failures := 0
		for _, facet := range facets {
			if facet.Status == models.FacetCompleted {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			count, err := manager.DiscoverFacetContent(ctx, facet.ID, batchSize, facetMaxItems)
			total += count
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				if errs.IsCaptcha(err) {
					// The gate blocks every facet equally, no point going on
					fmt.Printf("CAPTCHA encountered, %d items discovered before block\n", total)
					return err
				}
				log.WithError(err).WithField("facet_id", facet.ID).Error("facet discovery failed")
				failures++
			}
		}
		fmt.Printf("Discovered %d items (%d facets failed)\n", total, failures)
		return nil
	},
}

var facetsEnqueueCmd = &cobra.Command{
	Use:   "enqueue [facet-id]",
	Short: "Queue a facet's undownloaded pages for download",
	Example: `  # One facet
  newsagger facets enqueue 3 --max-items 500

  # Every completed facet
  newsagger facets enqueue --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !enqueueAll {
			return errors.New("provide a facet id or use --all")
		}

		manager, st, err := newDiscoveryManager()
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 1 {
			facetID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid facet id %q", args[0])
			}
			count, err := manager.EnqueueFacetContent(facetID, enqueueMaxItems)
			if err != nil {
				return err
			}
			fmt.Printf("Enqueued %d pages from facet %d\n", count, facetID)
			return nil
		}

		facets, err := st.GetFacets("", models.FacetCompleted)
		if err != nil {
			return err
		}
		total := 0
		for _, facet := range facets {
			count, err := manager.EnqueueFacetContent(facet.ID, enqueueMaxItems)
			if err != nil {
				return err
			}
			total += count
		}
		fmt.Printf("Enqueued %d pages from %d facets\n", total, len(facets))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(facetsCmd)
	facetsCmd.AddCommand(facetsPlanCmd)
	facetsCmd.AddCommand(facetsDiscoverCmd)
	facetsCmd.AddCommand(facetsEnqueueCmd)

	facetsPlanCmd.Flags().StringArrayVar(&facetStates, "states", nil, "also create facets for these states (repeatable)")
	facetsPlanCmd.Flags().BoolVar(&facetAllStates, "all-states", false, "create a facet for every state with known titles")

	facetsDiscoverCmd.Flags().IntVar(&facetBatchSize, "batch-size", 0, "search results per request (default from config)")
	facetsDiscoverCmd.Flags().IntVar(&facetMaxItems, "max-items", 0, "stop a facet after this many items (0 = no cap)")
	facetsDiscoverCmd.Flags().BoolVar(&facetAll, "all", false, "discover every unfinished facet")

	facetsEnqueueCmd.Flags().IntVar(&enqueueMaxItems, "max-items", 0, "enqueue at most this many pages per facet (0 = all)")
	facetsEnqueueCmd.Flags().BoolVar(&enqueueAll, "all", false, "enqueue every completed facet")
}
