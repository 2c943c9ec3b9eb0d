// Package actionlog reads and writes the JSON-lines file that the blocking
// tool's ban/unban hooks append to.
package actionlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashgrove-sec/banbench/internal/timeparse"
)

// defaultJail is assumed for rows written before jails were recorded.
const defaultJail = "ssh-proxmox"

const maxLineBytes = 1 << 20

// ParseError reports a malformed row in the hook log.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("actions line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads every event from the hook log at path, in file order. Blank
// lines are skipped. A row that is not valid JSON, lacks an ip, or carries
// an unparseable timestamp fails the whole load; partial results are never
// returned.
func Load(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineno := 0
	for sc.Scan() {
		lineno++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec wireEvent
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, &ParseError{Line: lineno, Err: err}
		}
		ev, err := rec.toEvent()
		if err != nil {
			return nil, &ParseError{Line: lineno, Err: err}
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (w wireEvent) toEvent() (Event, error) {
	stamp := w.Timestamp
	if stamp == "" {
		stamp = w.TS
	}
	if stamp == "" {
		return Event{}, errors.New("missing timestamp")
	}
	ts, err := timeparse.Parse(stamp)
	if err != nil {
		return Event{}, err
	}
	if w.IP == "" {
		return Event{}, errors.New("missing ip")
	}
	kind := w.Action
	if kind == "" {
		kind = string(KindBan)
	}
	jail := w.Jail
	if jail == "" {
		jail = defaultJail
	}
	return Event{
		Timestamp: ts,
		Kind:      Kind(strings.ToLower(kind)),
		IP:        w.IP,
		Jail:      jail,
		Reason:    w.Reason,
		MatchTS:   w.MatchTS,
		LogLine:   w.LogLine,
		Extra:     w.Extra,
	}, nil
}

// Append records one event at the end of the hook log, creating parent
// directories as needed. Each call opens, writes a single line, and closes,
// so concurrent hook invocations interleave at row granularity.
func Append(path string, ev Event) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	rec := wireEvent{
		Timestamp: timeparse.Stamp(ev.Timestamp),
		Action:    string(ev.Kind),
		IP:        ev.IP,
		Jail:      ev.Jail,
		Reason:    ev.Reason,
		MatchTS:   ev.MatchTS,
		LogLine:   ev.LogLine,
		Extra:     ev.Extra,
	}
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
