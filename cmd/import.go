package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/roster"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Enroll companies from a CSV or XLSX roster",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		companies, err := roster.Read(importFile)
		if err != nil {
			return err
		}

		env, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		added, err := env.Tracker.Enroll(ctx, companies)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int("companies", len(companies)),
			zap.Int("new_control_rows", added),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "enrolled %d companies (%d new)\n", len(companies), added)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to roster .csv or .xlsx (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
