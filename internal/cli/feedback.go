package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fairvalue-engine/internal/analysis/scoring"
	"fairvalue-engine/internal/store"
)

func addFeedbackCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newFeedbackCmd(app))
	rootCmd.AddCommand(newWeightsCmd(app))
	rootCmd.AddCommand(newCacheCmd(app))
}

func newFeedbackCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record and list whether recommendations were acted on",
	}

	record := &cobra.Command{
		Use:   "record <symbol>",
		Short: "Record feedback on the latest recommendation for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acted, _ := cmd.Flags().GetBool("acted")
			ignored, _ := cmd.Flags().GetBool("ignored")
			if acted == ignored {
				return fmt.Errorf("exactly one of --acted or --ignored is required")
			}

			a, err := app.Analyzer(cmd)
			if err != nil {
				return err
			}
			fb, err := a.RecordFeedback(cmd.Context(), args[0], acted)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(fb)
			}
			verb := "ignored"
			if fb.Acted {
				verb = "acted on"
			}
			output.Success("Recorded %s %s recommendation as %s", fb.Symbol, Action(fb.Action), verb)
			return nil
		},
	}
	record.Flags().Bool("acted", false, "the recommendation was followed")
	record.Flags().Bool("ignored", false, "the recommendation was not followed")

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded feedback, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.Store(cmd)
			if err != nil {
				return err
			}

			filter := store.FeedbackFilter{}
			filter.Symbol, _ = cmd.Flags().GetString("symbol")
			filter.Symbol = strings.ToUpper(filter.Symbol)
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			if days, _ := cmd.Flags().GetInt("days"); days > 0 {
				filter.Since = time.Now().AddDate(0, 0, -days)
			}
			if cmd.Flags().Changed("acted") {
				acted, _ := cmd.Flags().GetBool("acted")
				filter.Acted = &acted
			}

			items, err := db.ListFeedback(cmd.Context(), filter)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(items)
			}
			if len(items) == 0 {
				output.Dim("No feedback recorded")
				return nil
			}
			table := NewTable(output, "DATE", "SYMBOL", "ACTION", "ACTED", "FINAL", "FUND", "TECH", "VAL")
			for _, fb := range items {
				acted := red.Sprint("no")
				if fb.Acted {
					acted = green.Sprint("yes")
				}
				table.AddRow(
					fb.CreatedAt.Local().Format("2006-01-02 15:04"),
					fb.Symbol,
					Action(fb.Action),
					acted,
					fmt.Sprintf("%.1f", fb.FinalScore),
					fmt.Sprintf("%.1f", fb.FundamentalScore),
					fmt.Sprintf("%.1f", fb.TechnicalScore),
					fmt.Sprintf("%.1f", fb.ValuationScore),
				)
			}
			table.Render()
			return nil
		},
	}
	list.Flags().String("symbol", "", "only this symbol")
	list.Flags().Bool("acted", false, "only acted-on (true) or ignored (false) feedback")
	list.Flags().Int("days", 0, "only the last N days")
	list.Flags().Int("limit", 50, "maximum rows")

	cmd.AddCommand(record, list)
	return cmd
}

func newWeightsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show or adapt the integrated score weight profile",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the weight profile in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Analyzer(cmd)
			if err != nil {
				return err
			}
			profile, err := a.CurrentWeights(cmd.Context())
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(profile)
			}
			renderWeights(output, profile)
			return nil
		},
	})

	adapt := &cobra.Command{
		Use:   "adapt",
		Short: "Move the weights toward the component scores of acted-on recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			alpha := app.Config.Scoring.SmoothingAlpha
			if cmd.Flags().Changed("alpha") {
				alpha, _ = cmd.Flags().GetFloat64("alpha")
			}
			if alpha < 0 || alpha > 1 {
				return fmt.Errorf("alpha must be between 0 and 1, got %v", alpha)
			}

			a, err := app.Analyzer(cmd)
			if err != nil {
				return err
			}
			stored, err := a.AdaptWeights(cmd.Context(), alpha)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(stored)
			}
			output.Success("Adapted weights from %d acted-on recommendations (alpha %.2f)", stored.Samples, alpha)
			renderWeights(output, stored.Profile)
			return nil
		},
	}
	adapt.Flags().Float64("alpha", scoring.DefaultSmoothingAlpha, "smoothing factor (default from config)")

	cmd.AddCommand(adapt)
	return cmd
}

func renderWeights(output *Output, p scoring.WeightProfile) {
	output.Bold("Score Weights")
	output.Field("Value companies", "%s", formatWeights(p.Value))
	output.Field("Growth companies", "%s", formatWeights(p.Growth))
}

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the report cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [symbol]",
		Short: "Remove cached reports for one symbol or all symbols",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.Store(cmd)
			if err != nil {
				return err
			}
			output := NewOutput(cmd)

			if len(args) == 1 {
				symbol := strings.ToUpper(args[0])
				if err := db.DeleteReport(cmd.Context(), symbol); err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]string{"cleared": symbol})
				}
				output.Success("Cleared cached report for %s", symbol)
				return nil
			}

			n, err := db.ClearReports(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"cleared": n})
			}
			output.Success("Cleared %d cached reports", n)
			return nil
		},
	})

	return cmd
}
