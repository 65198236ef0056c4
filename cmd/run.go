package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/contacts-cli/internal/config"
	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/pipeline"
)

var (
	runBatchSize     int
	runMaxPerCompany int
	runMinScore      int
	runJSON          bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one enrichment batch over pending companies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, config.ModeRun)
		if err != nil {
			return err
		}
		defer env.Close()

		res, runErr := env.Pipeline.Run(ctx, runOptions(cmd))
		if res != nil {
			if runJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printRunSummary(cmd, res)
			}
		}
		return runErr
	},
}

// runOptions takes flag values when set and config values otherwise.
func runOptions(cmd *cobra.Command) pipeline.Options {
	opts := pipeline.Options{
		BatchSize:     cfg.Pipeline.BatchSize,
		MaxPerCompany: cfg.Pipeline.MaxPerCompany,
		MinScore:      cfg.Pipeline.MinScore,
	}
	if cmd.Flags().Changed("batch-size") {
		opts.BatchSize = runBatchSize
	}
	if cmd.Flags().Changed("max-per-company") {
		opts.MaxPerCompany = runMaxPerCompany
	}
	if cmd.Flags().Changed("min-score") {
		opts.MinScore = runMinScore
	}
	return opts
}

func printRunSummary(cmd *cobra.Command, res *model.RunResult) {
	out := cmd.OutOrStdout()
	status := "ok"
	if !res.Success {
		status = "failed: " + res.Error
	}
	fmt.Fprintf(out, "run %s %s (%s)\n", res.RunID, status, res.Duration.Round(1e6))
	fmt.Fprintf(out, "  companies: %d requested, %d processed, %d deferred\n",
		res.CompaniesRequested, res.CompaniesProcessed, res.CompaniesDeferred)
	fmt.Fprintf(out, "  profiles:  %d found, %d evaluated (%d failed), %d selected, %d scraped\n",
		res.ProfilesFound, res.ProfilesEvaluated, res.EvaluationsFailed, res.ProfilesSelected, res.ProfilesScraped)
	estimated := ""
	if res.CountsEstimated {
		estimated = " (estimated)"
	}
	fmt.Fprintf(out, "  contacts:  %d persisted, %d inserted, %d updated%s, %d flagged\n",
		res.ContactsPersisted, res.ContactsInserted, res.ContactsUpdated, estimated, res.ContactsFlagged)
	if res.FellBack {
		fmt.Fprintln(out, "  warning:   upsert fell back to append; contacts deduplicated")
	}
	fmt.Fprintf(out, "  usage:     %d queries, %d input tokens, %d output tokens\n",
		res.SearchQueries, res.InputTokens, res.OutputTokens)
	fmt.Fprintf(out, "  cost:      $%.4f (search $%.4f, ai $%.4f, scrape $%.4f)\n",
		res.EstimatedCostUSD, res.EstimatedSearchCostUSD, res.EstimatedAICostUSD, res.EstimatedScrapeCostUSD)
}

func init() {
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", pipeline.DefaultBatchSize, "companies per run (1-500)")
	runCmd.Flags().IntVar(&runMaxPerCompany, "max-per-company", pipeline.DefaultMaxPerCompany, "candidate profiles per company (1-50)")
	runCmd.Flags().IntVar(&runMinScore, "min-score", pipeline.DefaultMinScore, "minimum AI score to scrape (0-10)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run result as JSON")
	rootCmd.AddCommand(runCmd)
}
