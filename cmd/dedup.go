package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var dedupTable string

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Remove duplicate rows from the contacts and control tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		doContacts, doControl := false, false
		switch dedupTable {
		case "contacts":
			doContacts = true
		case "control":
			doControl = true
		case "all":
			doContacts, doControl = true, true
		default:
			return eris.Errorf("dedup: --table must be contacts, control or all, got %q", dedupTable)
		}

		env, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if doContacts {
			n, err := env.Contacts.Deduplicate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "contacts: removed %d duplicate rows\n", n)
		}
		if doControl {
			n, err := env.Tracker.Deduplicate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "control: removed %d duplicate rows\n", n)
		}
		return nil
	},
}

func init() {
	dedupCmd.Flags().StringVar(&dedupTable, "table", "all", "table to deduplicate: contacts, control or all")
	rootCmd.AddCommand(dedupCmd)
}
