package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the registry, control and contacts tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		for _, spec := range cfg.Tables.Specs() {
			fmt.Fprintf(cmd.OutOrStdout(), "ok  %s\n", spec.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
