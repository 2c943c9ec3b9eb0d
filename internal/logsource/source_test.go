package logsource

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `Dec 31 23:59:58 proxy sshd[100]: Failed password for root from 203.0.113.7 port 40022 ssh2

Jan 01 00:00:01 proxy sshd[101]: Failed password for root from 203.0.113.7 port 40023 ssh2
Jan 01 00:00:05 proxy sshd[102]: Accepted publickey for ops from 198.51.100.4 port 50022 ssh2
`

func writeLog(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collectLines(t *testing.T, src *Source) []Line {
	t.Helper()
	var lines []Line
	for src.Next() {
		lines = append(lines, src.Line())
	}
	require.NoError(t, src.Err())
	return lines
}

func TestSource_SkipsBlankLinesAndRollsYear(t *testing.T) {
	path := writeLog(t, "auth.log", sampleLog)

	src, err := Open(path, 2024, "")
	require.NoError(t, err)
	defer src.Close()

	lines := collectLines(t, src)
	require.Len(t, lines, 3)

	assert.Equal(t, 2024, lines[0].Timestamp.Year())
	assert.Equal(t, 2025, lines[1].Timestamp.Year())
	assert.Equal(t, 2025, lines[2].Timestamp.Year())
	assert.Contains(t, lines[2].Raw, "Accepted publickey")
}

func TestSource_FilterAppliesBeforeParsing(t *testing.T) {
	// The retained subsequence is what drives year resolution. With the
	// rollover line filtered out, both December lines stay in 2024.
	content := `Dec 31 23:59:58 proxy sshd[100]: Failed password for root from 203.0.113.7
Jan 01 00:00:01 proxy sshd[101]: Failed password for root from 198.51.100.4
Dec 31 23:59:59 proxy sshd[102]: Failed password for root from 203.0.113.7
`
	path := writeLog(t, "auth.log", content)

	src, err := Open(path, 2024, "203.0.113.7")
	require.NoError(t, err)
	defer src.Close()

	lines := collectLines(t, src)
	require.Len(t, lines, 2)
	assert.Equal(t, 2024, lines[0].Timestamp.Year())
	assert.Equal(t, 2024, lines[1].Timestamp.Year())
}

func TestSource_FormatErrorCarriesLineNumber(t *testing.T) {
	content := `Dec 31 23:59:58 proxy sshd[100]: ok
this is not a syslog line at all
`
	path := writeLog(t, "auth.log", content)

	src, err := Open(path, 2024, "")
	require.NoError(t, err)
	defer src.Close()

	require.True(t, src.Next())
	require.False(t, src.Next())

	err = src.Err()
	require.Error(t, err)
	var ferr *FormatError
	assert.ErrorAs(t, err, &ferr)
	assert.Contains(t, err.Error(), "line 2")
}

func TestSource_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(sampleLog))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	src, err := Open(path, 2024, "")
	require.NoError(t, err)

	lines := collectLines(t, src)
	require.NoError(t, src.Close())
	require.Len(t, lines, 3)
	assert.Equal(t, 2025, lines[1].Timestamp.Year())
}

func TestSource_Zstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = zw.Write([]byte(sampleLog))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	src, err := Open(path, 2024, "")
	require.NoError(t, err)

	lines := collectLines(t, src)
	require.NoError(t, src.Close())
	require.Len(t, lines, 3)
	assert.Equal(t, 2025, lines[1].Timestamp.Year())
}

func TestSource_InvalidUTF8Replaced(t *testing.T) {
	raw := "Dec 31 23:59:58 proxy sshd[100]: Failed password for user \xff\xfe from 203.0.113.7\n"
	path := writeLog(t, "auth.log", raw)

	src, err := Open(path, 2024, "")
	require.NoError(t, err)
	defer src.Close()

	lines := collectLines(t, src)
	require.Len(t, lines, 1)
	assert.True(t, strings.Contains(lines[0].Raw, "�"))
	assert.True(t, lines[0].Timestamp.Equal(time.Date(2024, 12, 31, 23, 59, 58, 0, time.UTC)))
}

func TestSource_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.log"), 2024, "")
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}
