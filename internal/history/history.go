// Package history persists per-run metrics and derives cross-run
// repeatability statistics.
package history

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ashgrove-sec/banbench/internal/metrics"
)

// Entry records one scored run. Entries are append-only; nothing rewrites
// a past run.
type Entry struct {
	RunID   string         `json:"run_id"`
	Notes   string         `json:"notes"`
	Metrics metrics.Report `json:"metrics"`
}

// Repeatability carries cross-run standard deviations. A nil field means
// fewer than two qualifying runs exist, not a zero deviation.
type Repeatability struct {
	DetectionSecondsStd *float64 `json:"detection_seconds_std,omitempty"`
	AccuracyStd         *float64 `json:"accuracy_std,omitempty"`
}

// historySchema guards the read-modify-write cycle: a corrupt or
// foreign-shaped history file must fail loudly before it gets rewritten.
var historySchema = jsonschema.MustCompileString("history.json", `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["run_id", "metrics"],
		"properties": {
			"run_id": {"type": "string"},
			"notes": {"type": "string"},
			"metrics": {
				"type": "object",
				"required": ["accuracy", "detection_seconds"],
				"properties": {
					"accuracy": {"type": "number"},
					"detection_seconds": {
						"type": "object",
						"required": ["count", "avg"],
						"properties": {
							"count": {"type": "integer"},
							"avg": {"type": "number"}
						}
					}
				}
			}
		}
	}
}`)

// Store persists run entries as one JSON array on disk. Access assumes a
// single writer; concurrent appends to the same file can race on the
// read-modify-write cycle.
type Store struct {
	path string
}

// NewStore creates a store backed by the history file at path. The file
// need not exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads and validates the full history. A missing file is an empty
// history, not an error.
func (s *Store) Load() ([]Entry, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	if err := historySchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid history: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return entries, nil
}

// Append adds entry to the history, rewrites the whole file, and returns
// the repeatability statistics across all entries now present.
func (s *Store) Append(entry Entry) (Repeatability, error) {
	entries, err := s.Load()
	if err != nil {
		return Repeatability{}, err
	}
	entries = append(entries, entry)

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Repeatability{}, err
		}
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return Repeatability{}, err
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return Repeatability{}, err
	}
	return computeRepeatability(entries), nil
}

// computeRepeatability derives cross-run deviations once at least two runs
// exist. Detection latency only counts runs that actually detected
// something; accuracy counts every run.
func computeRepeatability(entries []Entry) Repeatability {
	var rep Repeatability
	if len(entries) < 2 {
		return rep
	}
	var detection []float64
	accuracy := make([]float64, 0, len(entries))
	for _, e := range entries {
		if e.Metrics.DetectionSeconds.Count > 0 {
			detection = append(detection, e.Metrics.DetectionSeconds.Avg)
		}
		accuracy = append(accuracy, e.Metrics.Accuracy)
	}
	if sd, ok := sampleStdev(detection); ok {
		rep.DetectionSecondsStd = &sd
	}
	if sd, ok := sampleStdev(accuracy); ok {
		rep.AccuracyStd = &sd
	}
	return rep
}

// sampleStdev is the n-1 denominator standard deviation. It needs at least
// two points; ok reports whether enough were given.
func sampleStdev(data []float64) (sd float64, ok bool) {
	if len(data) < 2 {
		return 0, false
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))
	var ss float64
	for _, v := range data {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(data)-1)), true
}
