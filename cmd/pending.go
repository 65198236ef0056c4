package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pendingLimit int

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show companies still waiting for a contact run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		count, err := env.Tracker.PendingCount(ctx)
		if err != nil {
			return err
		}
		companies, err := env.Tracker.GetPending(ctx, pendingLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d pending companies\n", count)
		for _, c := range companies {
			fmt.Fprintf(out, "  %s\t%s\n", c.BusinessID, c.BusinessName)
		}
		if count > len(companies) {
			fmt.Fprintf(out, "  ... %d more\n", count-len(companies))
		}
		return nil
	},
}

func init() {
	pendingCmd.Flags().IntVar(&pendingLimit, "limit", 20, "companies to list")
	rootCmd.AddCommand(pendingCmd)
}
