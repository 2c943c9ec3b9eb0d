package cli

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashgrove-sec/banbench/internal/config"
	"github.com/ashgrove-sec/banbench/internal/truth"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample benchmark inputs and config",
		Long: `Generates sample data for trying the tool without a real capture.

Use "generate benchmark" to create a matching auth log and ground-truth
parquet pair. Use "generate config" to create an example YAML config.`,
	}

	cmd.AddCommand(newGenerateBenchmarkCmd(), newGenerateConfigCmd())
	return cmd
}

func newGenerateBenchmarkCmd() *cobra.Command {
	var (
		logOut     string
		parquetOut string
		attackers  int
		benign     int
		startYear  int
		duration   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Generate a matching auth log and ground-truth parquet pair",
		Long: `Creates a synthetic SSH auth log plus the parquet that labels it.

Attackers burst failed password attempts from 203.0.113.0/24; benign hosts
log in from 198.51.100.0/24 with the occasional typo. The parquet labels
each address and records its first and last activity, so the pair can be
replayed and scored end to end.`,
		Example: `  banbench generate benchmark
  banbench generate benchmark --attackers 10 --benign 20 --duration 2h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if attackers < 1 && benign < 1 {
				return fmt.Errorf("nothing to generate: need at least one attacker or benign host")
			}
			if duration <= 0 {
				return fmt.Errorf("--duration must be positive, got %s", duration)
			}
			year := startYear
			if year == 0 {
				year = time.Now().UTC().Year()
			}
			start := time.Date(year, time.December, 17, 0, 0, 0, 0, time.UTC)

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			lines, records := generateBenchmark(rng, start, attackers, benign, duration)

			if err := writeLogLines(logOut, lines); err != nil {
				return err
			}
			if err := truth.Write(parquetOut, records); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d log lines to %s\n", len(lines), logOut)
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d ground-truth records to %s\n", len(records), parquetOut)
			fmt.Fprintf(cmd.OutOrStdout(), "  Window:    %s + %s\n", start.Format("02/01/2006 15:04"), duration)
			fmt.Fprintf(cmd.OutOrStdout(), "  Attackers: %d\n", attackers)
			fmt.Fprintf(cmd.OutOrStdout(), "  Benign:    %d\n", benign)
			return nil
		},
	}

	replayDefaults := config.Default().Replay
	cmd.Flags().StringVar(&logOut, "log", replayDefaults.LogFile, "output auth log path")
	cmd.Flags().StringVar(&parquetOut, "parquet", replayDefaults.Parquet, "output ground-truth parquet path")
	cmd.Flags().IntVar(&attackers, "attackers", 5, "number of attacking addresses")
	cmd.Flags().IntVar(&benign, "benign", 10, "number of benign addresses")
	cmd.Flags().IntVar(&startYear, "start-year", 0, "capture year (0 = current)")
	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "time span of the capture")

	return cmd
}

func newGenerateConfigCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Generate an example YAML config file",
		Example: `  banbench generate config --output banbench.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated example config at %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", config.DefaultFile, "output file path")
	return cmd
}

// timedLine pairs a synthetic log line with the instant it claims to be from,
// so the merged stream can be sorted before formatting.
type timedLine struct {
	ts   time.Time
	text string
}

var benignUsers = []string{"ops", "deploy", "backup", "git", "monitor"}

func generateBenchmark(rng *rand.Rand, start time.Time, attackers, benign int, dur time.Duration) ([]timedLine, []truth.Record) {
	var lines []timedLine
	var records []truth.Record

	for i := 0; i < attackers; i++ {
		ip := fmt.Sprintf("203.0.113.%d", i+1)
		ls, rec := generateAttacker(rng, start, ip, dur)
		lines = append(lines, ls...)
		records = append(records, rec)
	}
	for i := 0; i < benign; i++ {
		ip := fmt.Sprintf("198.51.100.%d", i+1)
		ls, rec := generateBenignHost(rng, start, ip, dur)
		lines = append(lines, ls...)
		records = append(records, rec)
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].ts.Before(lines[j].ts) })
	for i := range records {
		records[i].WindowStart = start
	}
	return lines, records
}

// generateAttacker produces one brute-force burst: rapid failed passwords
// from a single address, starting somewhere in the first two thirds of the
// capture window.
func generateAttacker(rng *rand.Rand, start time.Time, ip string, dur time.Duration) ([]timedLine, truth.Record) {
	burstStart := start.Add(time.Duration(rng.Int63n(int64(dur*2/3) + 1)))
	attempts := 8 + rng.Intn(13)
	pid := 1000 + rng.Intn(60000)

	lines := make([]timedLine, 0, attempts)
	ts := burstStart
	for i := 0; i < attempts; i++ {
		user := "root"
		if rng.Intn(4) == 0 {
			user = "admin"
		}
		lines = append(lines, timedLine{
			ts:   ts,
			text: authLine(ts, pid, fmt.Sprintf("Failed password for invalid user %s from %s port %d ssh2", user, ip, 40000+rng.Intn(10000))),
		})
		ts = ts.Add(time.Duration(1+rng.Intn(10)) * time.Second)
	}

	rec := truth.Record{
		SrcIP:      ip,
		Label:      truth.LabelMalicious,
		RawLabel:   "ssh_bruteforce_ATTACK",
		FirstTS:    lines[0].ts,
		LastTS:     lines[len(lines)-1].ts,
		Confidence: 0.85 + 0.15*rng.Float64(),
	}
	return lines, rec
}

// generateBenignHost produces sparse legitimate activity: key-based logins
// spread across the window, with roughly one in six attempts fat-fingered.
func generateBenignHost(rng *rand.Rand, start time.Time, ip string, dur time.Duration) ([]timedLine, truth.Record) {
	logins := 3 + rng.Intn(6)
	pid := 1000 + rng.Intn(60000)
	user := benignUsers[rng.Intn(len(benignUsers))]

	lines := make([]timedLine, 0, logins)
	for i := 0; i < logins; i++ {
		ts := start.Add(time.Duration(rng.Int63n(int64(dur))))
		msg := fmt.Sprintf("Accepted publickey for %s from %s port %d ssh2", user, ip, 50000+rng.Intn(10000))
		if rng.Intn(6) == 0 {
			msg = fmt.Sprintf("Failed password for %s from %s port %d ssh2", user, ip, 50000+rng.Intn(10000))
		}
		lines = append(lines, timedLine{ts: ts, text: authLine(ts, pid, msg)})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ts.Before(lines[j].ts) })

	rec := truth.Record{
		SrcIP:      ip,
		Label:      truth.LabelBenign,
		RawLabel:   "normal",
		FirstTS:    lines[0].ts,
		LastTS:     lines[len(lines)-1].ts,
		Confidence: 0.5 + 0.5*rng.Float64(),
	}
	return lines, rec
}

func authLine(ts time.Time, pid int, msg string) string {
	return fmt.Sprintf("%s proxy sshd[%d]: %s", ts.Format("Jan _2 15:04:05"), pid, msg)
}

func writeLogLines(path string, lines []timedLine) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l.text); err != nil {
			return fmt.Errorf("writing log file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing log file: %w", err)
	}
	return nil
}
