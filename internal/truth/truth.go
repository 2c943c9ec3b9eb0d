// Package truth loads the labeled ground-truth table that replay runs are
// scored against. The table lives in a parquet file with one row per source
// address: src_ip, label, and first_ts are required; last_ts, window_start,
// and confidence travel along when present.
package truth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/ashgrove-sec/banbench/internal/timeparse"
)

// requiredColumns must all be present in the parquet schema.
var requiredColumns = []string{"src_ip", "label", "first_ts"}

// Record is one labeled source address.
type Record struct {
	SrcIP       string
	Label       Label
	RawLabel    string
	FirstTS     time.Time
	LastTS      time.Time
	WindowStart time.Time
	Confidence  float64
}

// Table is the labeled ground truth for one capture window, in row order.
type Table struct {
	Records []Record
}

// SchemaError reports required columns absent from the parquet schema.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("parquet missing columns: %s", strings.Join(e.Missing, ", "))
}

// Load reads the ground-truth table from a parquet file. Column names are
// matched case-insensitively. Timestamp columns may hold either strings in
// a supported datetime format or native integer epochs; the epoch unit
// comes from the column's timestamp annotation, defaulting to nanoseconds.
func Load(path string) (*Table, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 4)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pr.ReadStop()

	units := make(map[string]time.Duration)
	columns := make(map[string]bool)
	for _, se := range pr.Footer.Schema {
		if se.GetNumChildren() > 0 {
			continue
		}
		name := strings.ToLower(se.GetName())
		columns[name] = true
		units[name] = timestampUnit(se)
	}
	var missing []string
	for _, col := range requiredColumns {
		if !columns[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &SchemaError{Missing: missing}
	}

	raw, err := pr.ReadByNumber(int(pr.GetNumRows()))
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	rows, err := decodeRows(raw)
	if err != nil {
		return nil, err
	}

	table := &Table{Records: make([]Record, 0, len(rows))}
	for i, row := range rows {
		rec := Record{
			SrcIP:    asString(row["src_ip"]),
			RawLabel: asString(row["label"]),
		}
		rec.Label = Normalize(rec.RawLabel)
		first, err := parseTimestampValue(row["first_ts"], units["first_ts"])
		if err != nil {
			return nil, fmt.Errorf("parquet row %d: first_ts: %w", i, err)
		}
		rec.FirstTS = first
		// Optional columns are best effort: rows written before these
		// fields existed simply leave them zero.
		if v := row["last_ts"]; v != nil {
			if ts, err := parseTimestampValue(v, units["last_ts"]); err == nil {
				rec.LastTS = ts
			}
		}
		if v := row["window_start"]; v != nil {
			if ts, err := parseTimestampValue(v, units["window_start"]); err == nil {
				rec.WindowStart = ts
			}
		}
		if v := row["confidence"]; v != nil {
			if n, ok := v.(json.Number); ok {
				if f, err := n.Float64(); err == nil {
					rec.Confidence = f
				}
			}
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

// decodeRows flattens the reader's dynamically typed rows into maps with
// lowercase keys. The JSON round-trip keeps integers as json.Number so
// nanosecond epochs survive intact.
func decodeRows(raw []interface{}) ([]map[string]any, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode parquet rows: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var generic []map[string]any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode parquet rows: %w", err)
	}
	rows := make([]map[string]any, len(generic))
	for i, row := range generic {
		folded := make(map[string]any, len(row))
		for k, v := range row {
			folded[strings.ToLower(k)] = v
		}
		rows[i] = folded
	}
	return rows, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func parseTimestampValue(v any, unit time.Duration) (time.Time, error) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("missing value")
	case string:
		return timeparse.Parse(val)
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			f, ferr := val.Float64()
			if ferr != nil {
				return time.Time{}, fmt.Errorf("numeric timestamp %q: %w", val.String(), err)
			}
			i = int64(f)
		}
		return epochToTime(i, unit), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func epochToTime(i int64, unit time.Duration) time.Time {
	switch unit {
	case time.Millisecond:
		return time.UnixMilli(i).UTC()
	case time.Microsecond:
		return time.UnixMicro(i).UTC()
	default:
		return time.Unix(0, i).UTC()
	}
}

// timestampUnit reads the epoch unit from a column's timestamp annotation.
// Zero means the column is not annotated; integer values are then assumed
// to be nanoseconds, which is what dataframe tooling emits by default.
func timestampUnit(se *parquet.SchemaElement) time.Duration {
	if lt := se.GetLogicalType(); lt != nil && lt.IsSetTIMESTAMP() {
		unit := lt.TIMESTAMP.Unit
		switch {
		case unit.IsSetMILLIS():
			return time.Millisecond
		case unit.IsSetMICROS():
			return time.Microsecond
		case unit.IsSetNANOS():
			return time.Nanosecond
		}
	}
	if se.IsSetConvertedType() {
		switch se.GetConvertedType() {
		case parquet.ConvertedType_TIMESTAMP_MILLIS:
			return time.Millisecond
		case parquet.ConvertedType_TIMESTAMP_MICROS:
			return time.Microsecond
		}
	}
	return 0
}

// IPs returns the distinct source addresses carrying the given label.
func (t *Table) IPs(label Label) map[string]bool {
	ips := make(map[string]bool)
	for _, r := range t.Records {
		if r.Label == label {
			ips[r.SrcIP] = true
		}
	}
	return ips
}

// Filter returns the records carrying the given label, preserving row order.
func (t *Table) Filter(label Label) []Record {
	var out []Record
	for _, r := range t.Records {
		if r.Label == label {
			out = append(out, r)
		}
	}
	return out
}

// WindowStartYear reports the year of the first row with a usable
// window_start. Replay runs use it to seed year resolution when the
// operator gives no explicit hint.
func (t *Table) WindowStartYear() (int, bool) {
	for _, r := range t.Records {
		if !r.WindowStart.IsZero() {
			return r.WindowStart.Year(), true
		}
	}
	return 0, false
}
