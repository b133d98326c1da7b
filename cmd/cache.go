package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"moray/internal/config"
	"moray/internal/store"
)

var (
	flagPurgeAll    bool
	flagPurgePinned bool
	flagListLimit   int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the resolution cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached resolutions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListCache(flagListLimit)
		if err != nil {
			return fmt.Errorf("listing cache: %w", err)
		}

		now := time.Now()
		for _, e := range entries {
			state := "fresh"
			if !e.Fresh(now) {
				state = "expired"
			}
			if e.Pinned {
				state += ", pinned"
			}
			fmt.Printf("%-30s %-12s %-16s %s\n", e.Key.String(), e.ProviderID, state, e.URL)
		}
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache rows (--all for every row)",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.PurgeCache(time.Now(), flagPurgeAll, flagPurgePinned)
		if err != nil {
			return fmt.Errorf("purging cache: %w", err)
		}
		fmt.Printf("removed %d cache rows\n", n)
		return nil
	},
}

func init() {
	cacheListCmd.Flags().IntVar(&flagListLimit, "limit", 50, "Maximum rows to show")
	cachePurgeCmd.Flags().BoolVar(&flagPurgeAll, "all", false, "Remove fresh rows too, not only expired ones")
	cachePurgeCmd.Flags().BoolVar(&flagPurgePinned, "pinned", false, "Remove pinned rows as well")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}

func openStore() (*store.Store, error) {
	dbPath, err := config.DatabasePath()
	if err != nil {
		return nil, fmt.Errorf("locating database: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}
