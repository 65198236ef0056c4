package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the control table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.Tracker.Summarize(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "companies:     %d\n", s.Total)
		fmt.Fprintf(out, "pending:       %d\n", s.Pending)
		fmt.Fprintf(out, "with contacts: %d\n", s.WithContacts)
		fmt.Fprintf(out, "no contacts:   %d\n", s.NoContacts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
