// Package logsource streams a captured auth log as (raw line, absolute
// timestamp) pairs, resolving the year-less syslog timestamps as it goes.
package logsource

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// maxLineBytes bounds a single log line. Auth logs stay well under this, but
// the default bufio limit of 64K has been hit by injected junk in captures.
const maxLineBytes = 1 << 20

// Line is a single replayable log line with its resolved absolute timestamp.
type Line struct {
	Raw       string
	Timestamp time.Time
}

// Source lazily iterates a log file in order, skipping blank lines and,
// when a filter is set, lines not containing the filter substring. Filtering
// happens before timestamp parsing, so skipped lines never advance the year
// rollover state of the retained subsequence.
//
// Usage follows bufio.Scanner: Next, Line, then Err after Next returns false.
type Source struct {
	scanner *bufio.Scanner
	closers []io.Closer

	filter string
	year   int
	prev   time.Time

	cur    Line
	lineno int
	err    error
}

// Open opens path for replay. year seeds the timestamp normalizer; filter is
// an optional substring restricting which lines are yielded. Files ending in
// .gz or .zst are decompressed transparently. Invalid UTF-8 in the stream is
// replaced rather than failing the read.
func Open(path string, year int, filter string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r, closers, err := decompress(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	scanner := bufio.NewScanner(transform.NewReader(r, unicode.UTF8.NewDecoder()))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	return &Source{
		scanner: scanner,
		closers: closers,
		filter:  filter,
		year:    year,
	}, nil
}

// decompress wraps f according to the path suffix. The returned closers are
// in close order (decoder before file).
func decompress(path string, f *os.File) (io.Reader, []io.Closer, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip log: %w", err)
		}
		return zr, []io.Closer{zr, f}, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("opening zstd log: %w", err)
		}
		rc := zr.IOReadCloser()
		return rc, []io.Closer{rc, f}, nil
	default:
		return f, []io.Closer{f}, nil
	}
}

// Next advances to the next surviving line. It returns false at end of file
// or on the first error; check Err to tell the two apart.
func (s *Source) Next() bool {
	if s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		s.lineno++
		raw := s.scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if s.filter != "" && !strings.Contains(raw, s.filter) {
			continue
		}
		ts, err := ParseTimestamp(raw, s.year, s.prev)
		if err != nil {
			s.err = fmt.Errorf("line %d: %w", s.lineno, err)
			return false
		}
		s.prev = ts
		s.year = ts.Year()
		s.cur = Line{Raw: raw, Timestamp: ts}
		return true
	}
	s.err = s.scanner.Err()
	return false
}

// Line returns the line produced by the last successful Next.
func (s *Source) Line() Line {
	return s.cur
}

// Err returns the first error encountered, or nil after a clean EOF.
func (s *Source) Err() error {
	return s.err
}

// Close releases the underlying file and any decompressor.
func (s *Source) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
