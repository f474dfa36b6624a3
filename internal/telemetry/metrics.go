package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const metricsFileName = "metrics.toml"

// maxHistoryEntries is the maximum number of historical tick summaries kept.
const maxHistoryEntries = 10

// Metrics summarizes one coordinator tick.
type Metrics struct {
	Repo        string    `toml:"repo"`
	StartedAt   time.Time `toml:"started_at"`
	CompletedAt time.Time `toml:"completed_at"`
	IssuesSeen  int       `toml:"issues_seen"`
	Initialized int       `toml:"initialized"`
	Dispatched  int       `toml:"dispatched"`
	Skipped     int       `toml:"skipped"`
	Violations  int       `toml:"violations"`
	CostUSD     float64   `toml:"cost_usd"`
}

// historySummary captures a condensed record of a previous tick.
type historySummary struct {
	Repo        string    `toml:"repo"`
	StartedAt   time.Time `toml:"started_at"`
	DurationNs  int64     `toml:"duration_ns"`
	Dispatched  int       `toml:"dispatched"`
	Violations  int       `toml:"violations"`
	CostUSD     float64   `toml:"cost_usd"`
}

type metricsFile struct {
	Current Metrics          `toml:"current"`
	History []historySummary `toml:"history"`
}

// SaveMetrics writes the tick snapshot to dir/metrics.toml. A previous
// current section rotates into the history array, capped at the
// maxHistoryEntries most recent entries. The write is atomic.
func SaveMetrics(dir string, m Metrics) error {
	existing, err := loadMetricsFile(dir)
	if err != nil {
		return fmt.Errorf("telemetry: load existing metrics: %w", err)
	}

	var history []historySummary
	if existing != nil {
		history = append(existing.History, summarize(existing.Current))
	}
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}

	data, err := toml.Marshal(metricsFile{Current: m, History: history})
	if err != nil {
		return fmt.Errorf("telemetry: marshal metrics: %w", err)
	}

	path := filepath.Join(dir, metricsFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("telemetry: write temp metrics file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("telemetry: rename metrics file: %w", err)
	}
	return nil
}

// LoadMetrics reads the current tick metrics plus history from dir.
// A missing file returns zero values with no error.
func LoadMetrics(dir string) (Metrics, int, error) {
	file, err := loadMetricsFile(dir)
	if err != nil {
		return Metrics{}, 0, err
	}
	if file == nil {
		return Metrics{}, 0, nil
	}
	return file.Current, len(file.History), nil
}

func loadMetricsFile(dir string) (*metricsFile, error) {
	data, err := os.ReadFile(filepath.Join(dir, metricsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("telemetry: read metrics file: %w", err)
	}
	var file metricsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("telemetry: parse metrics file: %w", err)
	}
	return &file, nil
}

func summarize(m Metrics) historySummary {
	var durationNs int64
	if !m.CompletedAt.IsZero() && !m.StartedAt.IsZero() {
		durationNs = int64(m.CompletedAt.Sub(m.StartedAt))
	}
	return historySummary{
		Repo:       m.Repo,
		StartedAt:  m.StartedAt,
		DurationNs: durationNs,
		Dispatched: m.Dispatched,
		Violations: m.Violations,
		CostUSD:    m.CostUSD,
	}
}
