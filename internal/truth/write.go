package truth

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/ashgrove-sec/banbench/internal/timeparse"
)

// row is the on-disk shape written by Write. Timestamps are emitted as
// strings so the file stays readable by dataframe tooling without unit
// guesswork.
type row struct {
	SrcIP       string  `parquet:"name=src_ip, type=BYTE_ARRAY, convertedtype=UTF8"`
	Label       string  `parquet:"name=label, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstTS     string  `parquet:"name=first_ts, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastTS      string  `parquet:"name=last_ts, type=BYTE_ARRAY, convertedtype=UTF8"`
	WindowStart string  `parquet:"name=window_start, type=BYTE_ARRAY, convertedtype=UTF8"`
	Confidence  float64 `parquet:"name=confidence, type=DOUBLE"`
}

// windowStartLayout matches the day-first form labeling pipelines put in
// window_start, e.g. "17/12/2024 00:00".
const windowStartLayout = "02/01/2006 15:04"

// Write saves records as a parquet ground-truth table readable by Load.
func Write(path string, records []Record) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(row), 4)
	if err != nil {
		fw.Close()
		return fmt.Errorf("open parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		r := row{
			SrcIP:      rec.SrcIP,
			Label:      rec.RawLabel,
			FirstTS:    timeparse.Stamp(rec.FirstTS),
			Confidence: rec.Confidence,
		}
		if r.Label == "" {
			r.Label = string(rec.Label)
		}
		if !rec.LastTS.IsZero() {
			r.LastTS = timeparse.Stamp(rec.LastTS)
		}
		if !rec.WindowStart.IsZero() {
			r.WindowStart = rec.WindowStart.UTC().Format(windowStartLayout)
		}
		if err := pw.Write(r); err != nil {
			fw.Close()
			return fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return fw.Close()
}
