package cli

import (
	"fmt"
	"os"
	"time"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ashgrove-sec/banbench/internal/clock"
	"github.com/ashgrove-sec/banbench/internal/config"
	"github.com/ashgrove-sec/banbench/internal/logsource"
	"github.com/ashgrove-sec/banbench/internal/replay"
	"github.com/ashgrove-sec/banbench/internal/truth"
)

func newReplayCmd(opts *options) *cobra.Command {
	defaults := config.Default().Replay

	var (
		logFile        string
		parquetPath    string
		startYear      int
		speedFactor    float64
		loggerCmd      string
		dryRun         bool
		maxLines       int
		filterIP       string
		sleepCap       time.Duration
		statusInterval int
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a captured auth log into the live pipeline",
		Long: `Replays a captured auth log line by line, preserving the relative gaps
between entries scaled down by the speed factor. Each line is handed to the
logger command on stdin so it enters the same pipeline the blocker watches.

Captured syslog timestamps carry no year, so the starting year is taken from
--start-year, then from the ground-truth capture window, then from the
current date. Long idle stretches in the capture are clamped by --sleep-cap;
a cap of 0s replays without pacing.`,
		Example: `  banbench replay --dry-run --max-lines 20
  banbench replay --speed-factor 900 --filter-ip 203.0.113.7
  banbench replay --logger-cmd "logger --priority authpriv.info --tag replay"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg.Replay
			flags := cmd.Flags()
			if flags.Changed("log-file") {
				cfg.LogFile = logFile
			}
			if flags.Changed("parquet") {
				cfg.Parquet = parquetPath
			}
			if flags.Changed("start-year") {
				cfg.StartYear = startYear
			}
			if flags.Changed("speed-factor") {
				cfg.SpeedFactor = speedFactor
			}
			if flags.Changed("logger-cmd") {
				cfg.LoggerCmd = loggerCmd
			}
			if flags.Changed("dry-run") {
				cfg.DryRun = dryRun
			}
			if flags.Changed("max-lines") {
				cfg.MaxLines = maxLines
			}
			if flags.Changed("filter-ip") {
				cfg.FilterIP = filterIP
			}
			if flags.Changed("sleep-cap") {
				cfg.SleepCap = sleepCap
			}
			if flags.Changed("status-interval") {
				cfg.StatusInterval = statusInterval
			}

			merged := *opts.cfg
			merged.Replay = cfg
			if err := merged.Validate(); err != nil {
				return err
			}

			if _, err := os.Stat(cfg.LogFile); err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("log file not found: %s", cfg.LogFile)
				}
				return fmt.Errorf("stat log file: %w", err)
			}

			clk := clock.System{}

			year := cfg.StartYear
			if year == 0 {
				year = deriveStartYear(opts.logger, cfg.Parquet, clk)
			}

			var sink replay.Sink
			if cfg.DryRun {
				sink = &replay.WriterSink{W: cmd.OutOrStdout()}
			} else {
				argv, err := shellwords.Parse(cfg.LoggerCmd)
				if err != nil {
					return fmt.Errorf("parsing logger command: %w", err)
				}
				sink, err = replay.NewExecSink(argv)
				if err != nil {
					return err
				}
			}

			src, err := logsource.Open(cfg.LogFile, year, cfg.FilterIP)
			if err != nil {
				return err
			}
			defer src.Close()

			pacer, err := replay.NewPacer(sink, clk, opts.logger, replay.Options{
				SpeedFactor: cfg.SpeedFactor,
				SleepCap:    cfg.SleepCap,
				StatusEvery: cfg.StatusInterval,
				MaxLines:    cfg.MaxLines,
			})
			if err != nil {
				return err
			}

			opts.logger.Info("replay starting",
				zap.String("log_file", cfg.LogFile),
				zap.Int("start_year", year),
				zap.Float64("speed_factor", cfg.SpeedFactor),
				zap.Duration("sleep_cap", cfg.SleepCap),
				zap.Bool("dry_run", cfg.DryRun),
			)

			_, err = pacer.Run(cmd.Context(), src)
			return err
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", defaults.LogFile, "captured auth log to replay (plain, .gz, or .zst)")
	cmd.Flags().StringVar(&parquetPath, "parquet", defaults.Parquet, "ground-truth parquet used to derive the start year")
	cmd.Flags().IntVar(&startYear, "start-year", defaults.StartYear, "year of the first log line (0 = derive)")
	cmd.Flags().Float64Var(&speedFactor, "speed-factor", defaults.SpeedFactor, "how many captured seconds pass per replayed second")
	cmd.Flags().StringVar(&loggerCmd, "logger-cmd", defaults.LoggerCmd, "command that forwards each line into the pipeline")
	cmd.Flags().BoolVar(&dryRun, "dry-run", defaults.DryRun, "print lines to stdout instead of running the logger command")
	cmd.Flags().IntVar(&maxLines, "max-lines", defaults.MaxLines, "stop after this many emitted lines (0 = all)")
	cmd.Flags().StringVar(&filterIP, "filter-ip", defaults.FilterIP, "only replay lines containing this address")
	cmd.Flags().DurationVar(&sleepCap, "sleep-cap", defaults.SleepCap, "longest single pause between lines (0s = no pacing)")
	cmd.Flags().IntVar(&statusInterval, "status-interval", defaults.StatusInterval, "log progress every N lines (0 = never)")

	return cmd
}

// deriveStartYear resolves the replay year when no explicit hint is given:
// the ground-truth capture window wins, otherwise the current year.
func deriveStartYear(logger *zap.Logger, parquetPath string, clk clock.Clock) int {
	table, err := truth.Load(parquetPath)
	if err == nil {
		if year, ok := table.WindowStartYear(); ok {
			logger.Debug("start year derived from ground truth",
				zap.String("parquet", parquetPath),
				zap.Int("year", year),
			)
			return year
		}
	} else {
		logger.Debug("start year not derivable from ground truth",
			zap.String("parquet", parquetPath),
			zap.Error(err),
		)
	}
	return clk.Now().UTC().Year()
}
