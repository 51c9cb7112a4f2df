package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"fairvalue-engine/internal/analyzer"
	"fairvalue-engine/internal/consensus"
	"fairvalue-engine/internal/models"
	"fairvalue-engine/pkg/utils"
)

func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newValueCmd(app))
	rootCmd.AddCommand(newPredictCmd(app))
	rootCmd.AddCommand(newRiskCmd(app))
	rootCmd.AddCommand(newPositionCmd(app))
	rootCmd.AddCommand(newBatchCmd(app))
}

// addRequestFlags registers the flags every single-symbol analysis accepts.
func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("quality", "", "company quality tier: High, Medium, Low, Speculative")
	cmd.Flags().String("company-type", "", "override company type: value or growth")
	cmd.Flags().Float64("fundamental-score", -1, "override fundamental score (0-100)")
	cmd.Flags().Float64("portfolio", 0, "portfolio value for position sizing")
	cmd.Flags().Bool("refresh", false, "ignore the report cache")
}

func requestFromFlags(cmd *cobra.Command, symbol string) (analyzer.Request, error) {
	req := analyzer.Request{Symbol: symbol}

	if q, _ := cmd.Flags().GetString("quality"); q != "" {
		tier, err := consensus.ParseQuality(q)
		if err != nil {
			return req, err
		}
		req.Quality = tier
	}

	switch ct, _ := cmd.Flags().GetString("company-type"); strings.ToLower(ct) {
	case "":
	case string(models.CompanyValue):
		req.CompanyType = models.CompanyValue
	case string(models.CompanyGrowth):
		req.CompanyType = models.CompanyGrowth
	default:
		return req, fmt.Errorf("invalid company type %q (must be value or growth)", ct)
	}

	if cmd.Flags().Changed("fundamental-score") {
		score, _ := cmd.Flags().GetFloat64("fundamental-score")
		if score < 0 || score > 100 {
			return req, fmt.Errorf("fundamental score must be between 0 and 100, got %v", score)
		}
		req.FundamentalScore = &score
	}

	req.PortfolioValue, _ = cmd.Flags().GetFloat64("portfolio")
	req.Refresh, _ = cmd.Flags().GetBool("refresh")
	return req, nil
}

// runAnalysis analyzes one symbol from the command's flags.
func runAnalysis(cmd *cobra.Command, app *App, symbol string) (*models.Report, error) {
	a, err := app.Analyzer(cmd)
	if err != nil {
		return nil, err
	}
	req, err := requestFromFlags(cmd, symbol)
	if err != nil {
		return nil, err
	}
	return a.Analyze(cmd.Context(), req)
}

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <symbol>",
		Short: "Full valuation, prediction and recommendation report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runAnalysis(cmd, app, args[0])
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(report)
			}
			renderReport(output, report)
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}

func newValueCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "value <symbol>",
		Short: "Per-method intrinsic value estimates and consensus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runAnalysis(cmd, app, args[0])
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":    report.Symbol,
					"estimates": report.Estimates,
					"consensus": report.Consensus,
					"safety":    report.Safety,
				})
			}
			renderEstimates(output, report.Estimates)
			output.Println()
			renderConsensus(output, report.Consensus, report.Safety)
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}

func newPredictCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict <symbol>",
		Short: "Next-day return forecast from the ML ensemble",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runAnalysis(cmd, app, args[0])
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(report.Prediction)
			}
			renderPrediction(output, report.Prediction)
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}

func newRiskCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk <symbol>",
		Short: "Trailing risk metrics from daily closes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runAnalysis(cmd, app, args[0])
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(report.Risk)
			}
			renderRisk(output, report.Risk)
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}

func newPositionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position <symbol>",
		Short: "Margin-of-safety driven position size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if portfolio, _ := cmd.Flags().GetFloat64("portfolio"); portfolio <= 0 {
				return fmt.Errorf("--portfolio must be positive")
			}
			report, err := runAnalysis(cmd, app, args[0])
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol":   report.Symbol,
					"safety":   report.Safety,
					"position": report.Position,
				})
			}
			renderPosition(output, report)
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}

// BatchRow is one CSV line of a batch export.
type BatchRow struct {
	Symbol         string  `csv:"symbol"`
	Action         string  `csv:"action"`
	FinalScore     float64 `csv:"final_score"`
	Fundamental    float64 `csv:"fundamental_score"`
	Technical      float64 `csv:"technical_score"`
	Valuation      float64 `csv:"valuation_score"`
	Price          float64 `csv:"price"`
	ConsensusValue float64 `csv:"consensus_value"`
	MarginOfSafety float64 `csv:"margin_of_safety_pct"`
	SafetyLevel    string  `csv:"safety_level"`
	Degraded       bool    `csv:"degraded"`
	Error          string  `csv:"error"`
}

func batchRows(results []analyzer.BatchResult) []*BatchRow {
	rows := make([]*BatchRow, 0, len(results))
	for _, r := range results {
		row := &BatchRow{Symbol: r.Symbol}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		if rep := r.Report; rep != nil {
			row.Symbol = rep.Symbol
			row.Action = string(rep.Score.Recommendation.Action)
			row.FinalScore = utils.RoundTo(rep.Score.FinalScore, 2)
			row.Fundamental = utils.RoundTo(rep.Score.FundamentalScore, 2)
			row.Technical = utils.RoundTo(rep.Score.TechnicalScore, 2)
			row.Valuation = utils.RoundTo(rep.Score.ValuationScore, 2)
			row.Price = rep.Consensus.CurrentPrice
			row.ConsensusValue = utils.RoundTo(rep.Consensus.ConsensusValue, 2)
			row.MarginOfSafety = rep.Consensus.MarginOfSafetyPct
			row.SafetyLevel = string(rep.Consensus.SafetyLevel)
			row.Degraded = rep.Degraded
		}
		rows = append(rows, row)
	}
	return rows
}

// writeBatchCSV writes one row per symbol, failures included.
func writeBatchCSV(w io.Writer, results []analyzer.BatchResult) error {
	rows := batchRows(results)
	return gocsv.Marshal(&rows, w)
}

func newBatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <symbol>...",
		Short: "Analyze several symbols concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Analyzer(cmd)
			if err != nil {
				return err
			}
			reqs := make([]analyzer.Request, len(args))
			for i, symbol := range args {
				if reqs[i], err = requestFromFlags(cmd, symbol); err != nil {
					return err
				}
			}

			results, err := a.AnalyzeBatch(cmd.Context(), reqs)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if path, _ := cmd.Flags().GetString("csv"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating %s: %w", path, err)
				}
				defer f.Close()
				if err := writeBatchCSV(f, results); err != nil {
					return fmt.Errorf("writing %s: %w", path, err)
				}
				if !output.IsJSON() {
					output.Success("Wrote %d rows to %s", len(results), path)
				}
			}

			if output.IsJSON() {
				return output.JSON(batchRows(results))
			}
			renderBatch(output, results)
			return nil
		},
	}
	addRequestFlags(cmd)
	cmd.Flags().String("csv", "", "also write the results to this CSV file")
	return cmd
}

func renderReport(output *Output, r *models.Report) {
	output.Bold("%s  %s", r.Symbol, Action(r.Score.Recommendation.Action))
	output.Dim("Generated %s, priced %s", r.GeneratedAt.Format("2006-01-02 15:04"), r.PricedAt.Format("2006-01-02 15:04"))
	if r.Profile != nil && r.Profile.MarketCap() > 0 {
		output.Dim("Market cap %s, %s shares", utils.FormatCompact(r.Profile.MarketCap()), utils.FormatCompact(r.Profile.SharesOutstanding))
	}
	output.Println()

	renderScore(output, r.Score)
	output.Println()
	renderConsensus(output, r.Consensus, r.Safety)
	output.Println()
	renderEstimates(output, r.Estimates)
	output.Println()
	renderPrediction(output, r.Prediction)
	output.Println()
	renderRisk(output, r.Risk)

	if r.Position != nil {
		output.Println()
		renderPosition(output, r)
	}

	if len(r.Warnings) > 0 {
		output.Println()
		output.Warning("Degraded report:")
		for _, w := range r.Warnings {
			output.Warning("  - %s", w)
		}
	}
}

func renderScore(output *Output, s models.IntegratedScore) {
	output.Bold("Integrated Score")
	output.Field("Final score", "%.1f / 100", s.FinalScore)
	output.Field("Fundamental", "%.1f (%s company)", s.FundamentalScore, s.CompanyType)
	output.Field("Technical", "%.1f", s.TechnicalScore)
	output.Field("Valuation", "%.1f", s.ValuationScore)
	output.Field("Risk factor", "%.2f", s.RiskFactor)
	output.Field("Weights", "%s", formatWeights(s.Weights))
	output.Field("Risk context", "%s", s.Recommendation.RiskContext)
	for _, line := range s.Recommendation.Reasoning {
		output.Printf("    - %s\n", line)
	}
}

func renderConsensus(output *Output, c models.ConsensusValuation, s models.SafetyAssessment) {
	output.Bold("Consensus Valuation")
	if !c.Success() {
		output.Warning("  No valuation method succeeded")
		return
	}
	output.Field("Current price", "%s", utils.FormatCurrency(c.CurrentPrice))
	output.Field("Consensus value", "%s", utils.FormatCurrency(c.ConsensusValue))
	output.Field("Margin of safety", "%s", Signed(c.MarginOfSafetyPct))
	output.Field("Upside", "%s", Signed(c.UpsidePct))
	output.Field("Safety level", "%s", Safety(c.SafetyLevel))
	output.Field("Primary method", "%s", c.PrimaryMethod)
	output.Field("Confidence", "%.0f%%", c.OverallConfidence*100)
	output.Field("Method agreement", "%s", c.Agreement)
	output.Field("Required margin", "%.0f%% (%s quality, met: %v)", s.RequiredMargin, s.QualityTier, s.MeetsRequirement)
	output.Field("Overall risk", "%s (%.1f)", s.RiskLevel, s.RiskScore)
	if s.Recommendation != "" {
		output.Printf("    %s\n", s.Recommendation)
	}
}

func renderEstimates(output *Output, estimates []models.ValuationEstimate) {
	output.Bold("Valuation Methods")
	table := NewTable(output, "METHOD", "VALUE", "CONFIDENCE", "WEIGHTED IN", "NOTE")
	for _, e := range estimates {
		if !e.Success {
			table.AddRow(string(e.Method), "-", "-", red.Sprint("no"), e.Reason)
			continue
		}
		note := ""
		if s := e.Sensitivity; s != nil {
			note = fmt.Sprintf("range %s - %s", utils.FormatCurrency(s.Min), utils.FormatCurrency(s.Max))
		}
		used := green.Sprint("yes")
		if !e.Usable() {
			used = yellow.Sprint("no")
		}
		table.AddRow(string(e.Method), utils.FormatCurrency(e.IntrinsicValue), fmt.Sprintf("%.0f%%", e.Confidence*100), used, note)
	}
	table.Render()
}

func renderPrediction(output *Output, p models.PredictionResult) {
	output.Bold("Prediction")
	if p.Degraded {
		output.Warning("  Neutral forecast: %s", p.Reason)
		return
	}
	output.Field("Expected return", "%s", Signed(p.ExpectedReturn*100))
	output.Field("Confidence", "%.1f / 100", p.Confidence)
	output.Field("MLP / forest", "%+.4f%% / %+.4f%%", p.MLPPrediction*100, p.ForestPrediction*100)
	output.Field("Training rows", "%d (%d features)", p.TrainingRows, p.Features)
}

func renderRisk(output *Output, m models.RiskMetrics) {
	output.Bold("Risk")
	if m.Observations == 0 {
		output.Warning("  Not enough price history")
		return
	}
	output.Field("Volatility", "%.2f%% (%s)", m.Volatility, m.RiskLevel)
	output.Field("Max drawdown", "%.2f%%", m.MaxDrawdown)
	output.Field("VaR 95%", "%.2f%%", m.VaR95)
	output.Field("Sharpe ratio", "%.2f", m.SharpeRatio)
	output.Field("Average return", "%s", Signed(m.AverageReturn))
}

func renderPosition(output *Output, r *models.Report) {
	output.Bold("Position Sizing")
	p := r.Position
	if p == nil {
		output.Warning("  No position suggested: %s", r.Safety.Recommendation)
		return
	}
	output.Field("Recommended", "%.2f%% (%s)", p.RecommendedPercent, utils.FormatCurrency(p.PositionValue))
	output.Field("Shares", "%s", utils.FormatQuantity(p.Shares))
	output.Field("Actual", "%.2f%% (%s)", p.ActualPercent, utils.FormatCurrency(p.ActualValue))
	output.Printf("    %s\n", p.Rationale)
	for _, c := range p.RiskConsiderations {
		output.Warning("    ! %s", c)
	}
}

func renderBatch(output *Output, results []analyzer.BatchResult) {
	table := NewTable(output, "SYMBOL", "ACTION", "SCORE", "PRICE", "VALUE", "MARGIN", "SAFETY")
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			table.AddRow(r.Symbol, red.Sprint("ERROR"), "-", "-", "-", "-", r.Err.Error())
			continue
		}
		rep := r.Report
		table.AddRow(
			rep.Symbol,
			Action(rep.Score.Recommendation.Action),
			fmt.Sprintf("%.1f", rep.Score.FinalScore),
			utils.FormatCurrency(rep.Consensus.CurrentPrice),
			utils.FormatCurrency(rep.Consensus.ConsensusValue),
			Signed(rep.Consensus.MarginOfSafetyPct),
			Safety(rep.Consensus.SafetyLevel),
		)
	}
	table.Render()
	if failed > 0 {
		output.Println()
		output.Warning("%d of %d symbols failed", failed, len(results))
	}
}

func formatWeights(w models.ScoreWeights) string {
	return fmt.Sprintf("fundamental %.2f  technical %.2f  valuation %.2f", w.Fundamental, w.Technical, w.Valuation)
}
