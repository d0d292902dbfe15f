package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/tidwall/gjson"

	"github.com/meterdock/meterdock/internal/execution"
)

// Summary is an aggregate view over one execution's samples. It is derived
// from the dashboard's statistics.json when the report exists, otherwise
// recomputed from the raw JTL sample log.
type Summary struct {
	Source           string  `json:"source"` // "dashboard" or "jtl"
	Samples          int64   `json:"samples"`
	Errors           int64   `json:"errors"`
	MinMs            float64 `json:"min_ms"`
	MaxMs            float64 `json:"max_ms"`
	MeanMs           float64 `json:"mean_ms"`
	P50Ms            float64 `json:"p50_ms"`
	P90Ms            float64 `json:"p90_ms"`
	P95Ms            float64 `json:"p95_ms"`
	P99Ms            float64 `json:"p99_ms"`
	ThroughputPerSec float64 `json:"throughput_per_sec"`
}

// Summarize produces the execution summary. Fails with ErrNotFound when
// neither a dashboard report nor a sample log exists for the id.
func (m *Manager) Summarize(id string) (Summary, error) {
	if dir, ok := m.Locate(id); ok {
		if s, err := summaryFromStatistics(filepath.Join(dir, "statistics.json")); err == nil {
			return s, nil
		}
		// A report without statistics.json falls through to the JTL.
	}
	if !idRe.MatchString(id) {
		return Summary{}, fmt.Errorf("summary for execution %s: %w", id, execution.ErrNotFound)
	}
	s, err := summaryFromJTL(m.ResultsPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{}, fmt.Errorf("summary for execution %s: %w", id, execution.ErrNotFound)
		}
		return Summary{}, err
	}
	return s, nil
}

// summaryFromStatistics reads the Total row of the dashboard's
// statistics.json.
func summaryFromStatistics(path string) (Summary, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Summary{}, err
	}
	total := gjson.GetBytes(b, "Total")
	if !total.Exists() {
		return Summary{}, fmt.Errorf("statistics.json has no Total row")
	}
	return Summary{
		Source:           "dashboard",
		Samples:          total.Get("sampleCount").Int(),
		Errors:           total.Get("errorCount").Int(),
		MinMs:            total.Get("minResTime").Float(),
		MaxMs:            total.Get("maxResTime").Float(),
		MeanMs:           total.Get("meanResTime").Float(),
		P50Ms:            total.Get("medianResTime").Float(),
		P90Ms:            total.Get("pct1ResTime").Float(),
		P95Ms:            total.Get("pct2ResTime").Float(),
		P99Ms:            total.Get("pct3ResTime").Float(),
		ThroughputPerSec: total.Get("throughput").Float(),
	}, nil
}

// summaryFromJTL recomputes percentiles from the raw sample log using an
// HDR histogram (1ms..1h, 3 significant figures).
func summaryFromJTL(path string) (Summary, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Summary{}, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("read jtl header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	tsIdx, ok1 := col["timeStamp"]
	elapsedIdx, ok2 := col["elapsed"]
	successIdx, ok3 := col["success"]
	if !ok1 || !ok2 || !ok3 {
		return Summary{}, fmt.Errorf("jtl is missing timeStamp/elapsed/success columns")
	}
	needed := max(tsIdx, max(elapsedIdx, successIdx))

	hist := hdrhistogram.New(1, 3_600_000, 3)
	var samples, errors int64
	var firstTs, lastEnd int64
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("read jtl: %w", err)
		}
		// Truncated rows (interrupted runs) are skipped, not fatal.
		if len(row) <= needed {
			continue
		}
		ts, err := strconv.ParseInt(row[tsIdx], 10, 64)
		if err != nil {
			continue
		}
		elapsed, err := strconv.ParseInt(row[elapsedIdx], 10, 64)
		if err != nil {
			continue
		}
		_ = hist.RecordValue(elapsed)
		samples++
		if row[successIdx] != "true" {
			errors++
		}
		if firstTs == 0 || ts < firstTs {
			firstTs = ts
		}
		if end := ts + elapsed; end > lastEnd {
			lastEnd = end
		}
	}
	if samples == 0 {
		return Summary{}, fmt.Errorf("jtl contains no samples")
	}
	s := Summary{
		Source:  "jtl",
		Samples: samples,
		Errors:  errors,
		MinMs:   float64(hist.Min()),
		MaxMs:   float64(hist.Max()),
		MeanMs:  hist.Mean(),
		P50Ms:   float64(hist.ValueAtQuantile(50)),
		P90Ms:   float64(hist.ValueAtQuantile(90)),
		P95Ms:   float64(hist.ValueAtQuantile(95)),
		P99Ms:   float64(hist.ValueAtQuantile(99)),
	}
	if window := lastEnd - firstTs; window > 0 {
		s.ThroughputPerSec = float64(samples) / (float64(window) / 1000.0)
	}
	return s, nil
}
