// Package metrics scores recorded ban/unban actions against labeled ground
// truth: confusion matrix and rates over distinct addresses, detection
// latency per address, and FIFO-paired block durations.
package metrics

import (
	"sort"
	"time"

	"github.com/ashgrove-sec/banbench/internal/actionlog"
	"github.com/ashgrove-sec/banbench/internal/truth"
)

// Summary holds order statistics over one numeric set.
type Summary struct {
	Count  int     `json:"count"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Counts sizes the label partitions and the banned set.
type Counts struct {
	MaliciousIPs int `json:"malicious_ips"`
	BenignIPs    int `json:"benign_ips"`
	UnknownIPs   int `json:"unknown_ips"`
	BannedIPs    int `json:"banned_ips"`
}

// Confusion is the two-class confusion matrix over distinct addresses.
// Unknown-labeled addresses take part in neither axis.
type Confusion struct {
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	FalseNegative int `json:"false_negative"`
	TrueNegative  int `json:"true_negative"`
}

// Report is the full scoring output for one run.
type Report struct {
	Counts           Counts               `json:"counts"`
	Confusion        Confusion            `json:"confusion"`
	TPR              float64              `json:"tpr"`
	FPR              float64              `json:"fpr"`
	Accuracy         float64              `json:"accuracy"`
	DetectionSeconds Summary              `json:"detection_seconds"`
	BlockingSeconds  Summary              `json:"blocking_seconds"`
	DetectionByIP    map[string]float64   `json:"detection_by_ip"`
	BlockingByIP     map[string][]float64 `json:"blocking_by_ip"`
}

// Compute scores the recorded actions against the ground-truth table.
// Events are evaluated in ascending timestamp order regardless of file
// order; equal timestamps keep file order. Event kinds other than ban and
// unban are ignored.
func Compute(events []actionlog.Event, table *truth.Table) Report {
	sorted := make([]actionlog.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	malicious := table.IPs(truth.LabelMalicious)
	benign := table.IPs(truth.LabelBenign)
	unknown := table.IPs(truth.LabelUnknown)

	banned := make(map[string]bool)
	firstBan := make(map[string]time.Time)
	for _, ev := range sorted {
		if ev.Kind != actionlog.KindBan {
			continue
		}
		banned[ev.IP] = true
		if _, ok := firstBan[ev.IP]; !ok {
			firstBan[ev.IP] = ev.Timestamp
		}
	}

	var conf Confusion
	for ip := range banned {
		if malicious[ip] {
			conf.TruePositive++
		}
		if benign[ip] {
			conf.FalsePositive++
		}
	}
	conf.FalseNegative = len(malicious) - conf.TruePositive
	conf.TrueNegative = len(benign) - conf.FalsePositive

	rep := Report{
		Counts: Counts{
			MaliciousIPs: len(malicious),
			BenignIPs:    len(benign),
			UnknownIPs:   len(unknown),
			BannedIPs:    len(banned),
		},
		Confusion:     conf,
		DetectionByIP: make(map[string]float64),
		BlockingByIP:  make(map[string][]float64),
	}
	if len(malicious) > 0 {
		rep.TPR = float64(conf.TruePositive) / float64(len(malicious))
	}
	if len(benign) > 0 {
		rep.FPR = float64(conf.FalsePositive) / float64(len(benign))
	}
	if len(malicious)+len(benign) > 0 {
		rep.Accuracy = float64(conf.TruePositive+conf.TrueNegative) / float64(len(malicious)+len(benign))
	}

	// Detection latency runs from the labeled window start to the earliest
	// ban. Negative values mean the ban landed before the window and are
	// reported as-is.
	for _, rec := range table.Filter(truth.LabelMalicious) {
		ts, ok := firstBan[rec.SrcIP]
		if !ok {
			continue
		}
		rep.DetectionByIP[rec.SrcIP] = ts.Sub(rec.FirstTS).Seconds()
	}

	// Block durations pair each unban with the oldest still-open ban for
	// the same address. An unban with no open ban is dropped; logs that
	// begin mid-ban are expected.
	pending := make(map[string][]time.Time)
	for _, ev := range sorted {
		switch ev.Kind {
		case actionlog.KindBan:
			pending[ev.IP] = append(pending[ev.IP], ev.Timestamp)
		case actionlog.KindUnban:
			queue := pending[ev.IP]
			if len(queue) == 0 {
				continue
			}
			pending[ev.IP] = queue[1:]
			rep.BlockingByIP[ev.IP] = append(rep.BlockingByIP[ev.IP], ev.Timestamp.Sub(queue[0]).Seconds())
		}
	}

	rep.DetectionSeconds = Summarize(mapValues(rep.DetectionByIP))
	rep.BlockingSeconds = Summarize(flatten(rep.BlockingByIP))
	return rep
}

// Summarize reduces a numeric set to its order statistics. An empty set
// yields a zero summary with count 0.
func Summarize(data []float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return Summary{
		Count:  len(sorted),
		Avg:    sum / float64(len(sorted)),
		Median: median,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

func mapValues(m map[string]float64) []float64 {
	out := make([]float64, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func flatten(m map[string][]float64) []float64 {
	var out []float64
	for _, vs := range m {
		out = append(out, vs...)
	}
	return out
}
