package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagLogsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect and maintain the resolution audit trail",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resolution attempts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListLogs(flagLogsLimit)
		if err != nil {
			return fmt.Errorf("listing logs: %w", err)
		}

		for _, e := range entries {
			outcome := "ok  "
			detail := e.URL
			if !e.Success {
				outcome = "fail"
				detail = e.ErrorMessage
			}
			fmt.Printf("%s  %s  %-30s %-12s %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), outcome, e.Key.String(), e.ProviderID, detail)
		}
		return nil
	},
}

var logsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete the whole audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.PurgeLogs()
		if err != nil {
			return fmt.Errorf("purging logs: %w", err)
		}
		fmt.Printf("removed %d log rows\n", n)
		return nil
	},
}

func init() {
	logsListCmd.Flags().IntVar(&flagLogsLimit, "limit", 50, "Maximum rows to show")

	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsPurgeCmd)
}
