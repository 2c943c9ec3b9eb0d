package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashgrove-sec/banbench/internal/actionlog"
	"github.com/ashgrove-sec/banbench/internal/config"
	"github.com/ashgrove-sec/banbench/internal/logsource"
	"github.com/ashgrove-sec/banbench/internal/truth"
)

var captureStart = time.Date(2024, time.December, 17, 0, 0, 0, 0, time.UTC)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeAuthLogFixture(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "benchmark.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

// chdir mirrors testing.T.Chdir, which requires Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restoring working directory: %v", err)
		}
	})
}

func TestReplayDryRunPrintsLines(t *testing.T) {
	chdir(t, t.TempDir())
	logPath := writeAuthLogFixture(t,
		"Dec 17 00:00:01 proxy sshd[811]: Failed password for root from 203.0.113.7 port 40022 ssh2",
		"Dec 17 00:00:04 proxy sshd[811]: Failed password for root from 203.0.113.7 port 40022 ssh2",
		"Dec 17 00:01:00 proxy sshd[812]: Accepted publickey for ops from 198.51.100.4 port 50022 ssh2",
	)

	out, err := runCmd(t, "replay",
		"--log-file", logPath,
		"--dry-run",
		"--start-year", "2024",
		"--sleep-cap", "0s",
	)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Dec 17 00:00:01 proxy sshd[811]: Failed password for root from 203.0.113.7 port 40022 ssh2",
		"Dec 17 00:00:04 proxy sshd[811]: Failed password for root from 203.0.113.7 port 40022 ssh2",
		"Dec 17 00:01:00 proxy sshd[812]: Accepted publickey for ops from 198.51.100.4 port 50022 ssh2",
	}, strings.Split(strings.TrimRight(out, "\n"), "\n"))
}

func TestReplayMaxLinesStopsEarly(t *testing.T) {
	chdir(t, t.TempDir())
	logPath := writeAuthLogFixture(t,
		"Dec 17 00:00:01 proxy sshd[811]: Failed password for root from 203.0.113.7 port 40022 ssh2",
		"Dec 17 00:00:04 proxy sshd[811]: Failed password for root from 203.0.113.7 port 40022 ssh2",
		"Dec 17 00:01:00 proxy sshd[812]: Accepted publickey for ops from 198.51.100.4 port 50022 ssh2",
	)

	out, err := runCmd(t, "replay",
		"--log-file", logPath,
		"--dry-run",
		"--start-year", "2024",
		"--sleep-cap", "0s",
		"--max-lines", "2",
	)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimRight(out, "\n"), "\n"), 2)
}

func TestReplayMissingLogFile(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := runCmd(t, "replay", "--log-file", "no-such.log", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file not found")
}

func TestReplayRejectsBadSpeedFactor(t *testing.T) {
	chdir(t, t.TempDir())
	logPath := writeAuthLogFixture(t,
		"Dec 17 00:00:01 proxy sshd[811]: Failed password for root from 203.0.113.7 port 40022 ssh2",
	)

	_, err := runCmd(t, "replay", "--log-file", logPath, "--dry-run", "--speed-factor", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speed_factor")
}

func TestCollectScoresRunAndTracksHistory(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()

	parquetPath := filepath.Join(dir, "benchmark.parquet")
	require.NoError(t, truth.Write(parquetPath, []truth.Record{
		{SrcIP: "203.0.113.7", Label: truth.LabelMalicious, FirstTS: captureStart, WindowStart: captureStart},
		{SrcIP: "198.51.100.4", Label: truth.LabelBenign, FirstTS: captureStart, WindowStart: captureStart},
	}))

	actionsPath := filepath.Join(dir, "actions.json")
	for _, ev := range []actionlog.Event{
		{Timestamp: captureStart.Add(30 * time.Second), Kind: actionlog.KindBan, IP: "203.0.113.7", Jail: "ssh-proxmox"},
		{Timestamp: captureStart.Add(45 * time.Second), Kind: actionlog.KindBan, IP: "198.51.100.4", Jail: "ssh-proxmox"},
		{Timestamp: captureStart.Add(90 * time.Second), Kind: actionlog.KindUnban, IP: "203.0.113.7", Jail: "ssh-proxmox"},
	} {
		require.NoError(t, actionlog.Append(actionsPath, ev))
	}

	outputPath := filepath.Join(dir, "results", "metrics.json")
	historyPath := filepath.Join(dir, "results", "history.json")

	out, err := runCmd(t, "collect",
		"--parquet", parquetPath,
		"--actions-log", actionsPath,
		"--output", outputPath,
		"--history", historyPath,
		"--run-id", "run-1",
		"--notes", "first pass",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Metrics written to "+outputPath)

	raw, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	var doc collectOutput
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "run-1", doc.Run.RunID)
	assert.Equal(t, "first pass", doc.Run.Notes)
	assert.Equal(t, parquetPath, doc.Source.Parquet)
	assert.Equal(t, 1, doc.Run.Metrics.Confusion.TruePositive)
	assert.Equal(t, 1, doc.Run.Metrics.Confusion.FalsePositive)
	assert.InDelta(t, 0.5, doc.Run.Metrics.Accuracy, 1e-9)
	assert.InDelta(t, 30, doc.Run.Metrics.DetectionByIP["203.0.113.7"], 1e-9)
	assert.Equal(t, []float64{60}, doc.Run.Metrics.BlockingByIP["203.0.113.7"])
	assert.Nil(t, doc.Repeatability.AccuracyStd, "single run has no spread")

	// A second identical run makes the history comparable: zero spread.
	out, err = runCmd(t, "collect",
		"--parquet", parquetPath,
		"--actions-log", actionsPath,
		"--output", outputPath,
		"--history", historyPath,
		"--run-id", "run-2",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Metrics written to "+outputPath)

	raw, err = os.ReadFile(outputPath)
	require.NoError(t, err)
	doc = collectOutput{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	require.NotNil(t, doc.Repeatability.AccuracyStd)
	assert.InDelta(t, 0, *doc.Repeatability.AccuracyStd, 1e-9)
	require.NotNil(t, doc.Repeatability.DetectionSecondsStd)
	assert.InDelta(t, 0, *doc.Repeatability.DetectionSecondsStd, 1e-9)
}

func TestCollectRequiresRunID(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := runCmd(t, "collect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-id")
}

func TestLogActionAppendsEvent(t *testing.T) {
	chdir(t, t.TempDir())
	logPath := filepath.Join(t.TempDir(), "actions.json")

	_, err := runCmd(t, "log-action",
		"--log-file", logPath,
		"--action", "BAN",
		"--ip", "203.0.113.7",
		"--jail", "ssh-proxmox",
		"--reason", "maxretry",
	)
	require.NoError(t, err)

	events, err := actionlog.Load(logPath)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, actionlog.KindBan, events[0].Kind)
	assert.Equal(t, "203.0.113.7", events[0].IP)
	assert.Equal(t, "ssh-proxmox", events[0].Jail)
	assert.Equal(t, "maxretry", events[0].Reason)
	assert.WithinDuration(t, time.Now().UTC(), events[0].Timestamp, time.Minute)
}

func TestLogActionRejectsUnknownAction(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := runCmd(t, "log-action",
		"--log-file", filepath.Join(t.TempDir(), "actions.json"),
		"--action", "flush",
		"--ip", "203.0.113.7",
		"--jail", "ssh-proxmox",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ban or unban")
}

func TestGenerateBenchmarkProducesReplayableInputs(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()
	logPath := filepath.Join(dir, "benchmark.log")
	parquetPath := filepath.Join(dir, "benchmark.parquet")

	out, err := runCmd(t, "generate", "benchmark",
		"--log", logPath,
		"--parquet", parquetPath,
		"--attackers", "2",
		"--benign", "3",
		"--start-year", "2024",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated")

	src, err := logsource.Open(logPath, 2024, "")
	require.NoError(t, err)
	defer src.Close()
	var lines int
	var prev time.Time
	for src.Next() {
		lines++
		ts := src.Line().Timestamp
		assert.False(t, ts.Before(prev), "lines must be time ordered")
		prev = ts
	}
	require.NoError(t, src.Err())
	assert.Greater(t, lines, 10)

	table, err := truth.Load(parquetPath)
	require.NoError(t, err)
	assert.Len(t, table.Records, 5)
	assert.Len(t, table.Filter(truth.LabelMalicious), 2)
	assert.Len(t, table.Filter(truth.LabelBenign), 3)
	year, ok := table.WindowStartYear()
	require.True(t, ok)
	assert.Equal(t, 2024, year)
}

func TestGenerateConfigWritesLoadableFile(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "banbench.yaml")

	out, err := runCmd(t, "generate", "config", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated example config at "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
}
