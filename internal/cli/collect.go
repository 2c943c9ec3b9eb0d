package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ashgrove-sec/banbench/internal/actionlog"
	"github.com/ashgrove-sec/banbench/internal/config"
	"github.com/ashgrove-sec/banbench/internal/history"
	"github.com/ashgrove-sec/banbench/internal/metrics"
	"github.com/ashgrove-sec/banbench/internal/truth"
)

// collectOutput is the document written to the metrics file: the scored
// run, repeatability across the run history, and the inputs it came from.
type collectOutput struct {
	Run           history.Entry         `json:"run"`
	Repeatability history.Repeatability `json:"repeatability"`
	Source        sourceInfo            `json:"source"`
}

type sourceInfo struct {
	Parquet     string `json:"parquet"`
	Actions     string `json:"actions"`
	Fail2banLog string `json:"fail2ban_log"`
}

func newCollectCmd(opts *options) *cobra.Command {
	defaults := config.Default().Collect

	var (
		parquetPath string
		actionsLog  string
		fail2banLog string
		output      string
		historyPath string
		runID       string
		notes       string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Score recorded ban/unban actions against ground truth",
		Long: `Reads the hook's action log and the labeled ground truth, computes the
confusion matrix, detection latency, and block durations for one benchmark
run, appends the run to the history file, and writes the metrics document.

Repeatability (standard deviations across runs) appears once the history
holds at least two comparable runs.`,
		Example: `  banbench collect --run-id baseline-1
  banbench collect --run-id tuned-3 --notes "bantime 900s, findtime 600s"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg.Collect
			flags := cmd.Flags()
			if flags.Changed("parquet") {
				cfg.Parquet = parquetPath
			}
			if flags.Changed("actions-log") {
				cfg.ActionsLog = actionsLog
			}
			if flags.Changed("fail2ban-log") {
				cfg.Fail2banLog = fail2banLog
			}
			if flags.Changed("output") {
				cfg.Output = output
			}
			if flags.Changed("history") {
				cfg.History = historyPath
			}

			table, err := truth.Load(cfg.Parquet)
			if err != nil {
				return err
			}
			events, err := actionlog.Load(cfg.ActionsLog)
			if err != nil {
				return err
			}

			report := metrics.Compute(events, table)
			entry := history.Entry{RunID: runID, Notes: notes, Metrics: report}

			repeatability, err := history.NewStore(cfg.History).Append(entry)
			if err != nil {
				return err
			}

			doc := collectOutput{
				Run:           entry,
				Repeatability: repeatability,
				Source: sourceInfo{
					Parquet:     cfg.Parquet,
					Actions:     cfg.ActionsLog,
					Fail2banLog: cfg.Fail2banLog,
				},
			}
			raw, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding metrics: %w", err)
			}
			if dir := filepath.Dir(cfg.Output); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("creating output directory: %w", err)
				}
			}
			if err := os.WriteFile(cfg.Output, raw, 0o644); err != nil {
				return fmt.Errorf("writing metrics: %w", err)
			}

			opts.logger.Info("run scored",
				zap.String("run_id", runID),
				zap.Int("events", len(events)),
				zap.Int("banned_ips", report.Counts.BannedIPs),
				zap.Float64("accuracy", report.Accuracy),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Metrics written to %s\n", cfg.Output)
			return nil
		},
	}

	cmd.Flags().StringVar(&parquetPath, "parquet", defaults.Parquet, "labeled ground-truth parquet")
	cmd.Flags().StringVar(&actionsLog, "actions-log", defaults.ActionsLog, "JSON-lines action log written by the hook")
	cmd.Flags().StringVar(&fail2banLog, "fail2ban-log", defaults.Fail2banLog, "blocker's own log, recorded for provenance")
	cmd.Flags().StringVar(&output, "output", defaults.Output, "where to write the metrics document")
	cmd.Flags().StringVar(&historyPath, "history", defaults.History, "run history file")
	cmd.Flags().StringVar(&runID, "run-id", "", "identifier for this run (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes stored with the run")
	_ = cmd.MarkFlagRequired("run-id")

	return cmd
}
