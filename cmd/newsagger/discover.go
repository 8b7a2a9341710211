package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"newsagger/internal/store"
	"newsagger/pkg/discovery"
	"newsagger/pkg/processor"
)

var discoverAllIssues bool

// discoverCmd groups title and issue discovery
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover newspaper titles and issues",
}

var discoverTitlesCmd = &cobra.Command{
	Use:   "titles",
	Short: "Enumerate every newspaper title in the archive",
	Long: `Pages through the archive's full titles listing and stores every
newspaper title. Already-known titles are refreshed in place, so rerunning
is always safe.`,
	Example: `  # Fetch all titles
  newsagger discover titles`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		manager, st, err := newDiscoveryManager()
		if err != nil {
			return err
		}
		defer st.Close()

		discovered, err := manager.DiscoverAllPeriodicals(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Discovered %d new titles\n", discovered)
		return nil
	},
}

var discoverIssuesCmd = &cobra.Command{
	Use:   "issues [lccn]",
	Short: "Discover the issues of one title, or of all known titles",
	Example: `  # One title by its LCCN
  newsagger discover issues sn83030214

  # Every title whose issues are not yet known
  newsagger discover issues --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !discoverAllIssues {
			return errors.New("provide an LCCN or use --all")
		}

		ctx, cancel := signalContext()
		defer cancel()

		manager, st, err := newDiscoveryManager()
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 1 {
			count, err := manager.DiscoverPeriodicalIssues(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Discovered %d issues for %s\n", count, args[0])
			return nil
		}
		return discoverRemainingIssues(ctx, manager, st)
	},
}

// discoverRemainingIssues walks every periodical whose issue discovery has
// not completed. Per-title failures are logged and skipped so one broken
// title cannot stall the rest.
func discoverRemainingIssues(ctx context.Context, manager *discovery.Manager, st *store.Store) error {
	periodicals, err := st.GetPeriodicals("")
	if err != nil {
		return err
	}

	total := 0
	failures := 0
	for _, periodical := range periodicals {
		if periodical.DiscoveryComplete {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		count, err := manager.DiscoverPeriodicalIssues(ctx, periodical.LCCN)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.WithError(err).WithField("lccn", periodical.LCCN).Error("issue discovery failed")
			failures++
			continue
		}
		total += count
	}

	fmt.Printf("Discovered %d issues (%d titles failed)\n", total, failures)
	return nil
}

// newDiscoveryManager wires the store, archive client and processor into a
// discovery manager. The caller closes the returned store.
func newDiscoveryManager() (*discovery.Manager, *store.Store, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	client := newArchiveClient()
	manager := discovery.New(client, processor.New(log), st, log)
	manager.SetCaptchaPollInterval(cfg.RateLimit.CaptchaPollInterval)
	return manager, st, nil
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.AddCommand(discoverTitlesCmd)
	discoverCmd.AddCommand(discoverIssuesCmd)

	discoverIssuesCmd.Flags().BoolVar(&discoverAllIssues, "all", false, "discover issues for every incomplete title")
}
