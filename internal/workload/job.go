package workload

import (
	"time"

	bench "github.com/gatewaylab/gatewaybench"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is one load test run started through the workload API.
type Job struct {
	ID             string     `json:"id"`
	Status         Status     `json:"status"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	Params         Params     `json:"params"`
	HTMLReportPath string     `json:"htmlReportPath"`
	CSVPrefixPath  string     `json:"csvPrefixPath"`
	Log            []string   `json:"log"`
	Summary        *Result    `json:"summary,omitempty"`
}

// Result is the outcome of a finished Job. Latencies are in milliseconds.
type Result struct {
	Requests          uint64  `json:"requests"`
	Failures          uint64  `json:"failures"`
	ElapsedSeconds    float64 `json:"elapsedSeconds"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	AverageMillis     float64 `json:"averageMs"`
	P50Millis         float64 `json:"p50Ms"`
	P95Millis         float64 `json:"p95Ms"`
	P99Millis         float64 `json:"p99Ms"`
}

func newResult(s *bench.Summary) *Result {
	return &Result{
		Requests:          s.SuccessTotal + s.ErrorTotal,
		Failures:          s.ErrorTotal,
		ElapsedSeconds:    s.TimeElapsed.Seconds(),
		RequestsPerSecond: s.Throughput,
		AverageMillis:     s.Aggregated.AverageMillis,
		P50Millis:         s.Aggregated.Percentiles[50],
		P95Millis:         s.Aggregated.Percentiles[95],
		P99Millis:         s.Aggregated.Percentiles[99],
	}
}

// Running reports whether the job has not reached a final status.
func (j Job) Running() bool {
	return j.Status == StatusRunning
}

func (j Job) clone() Job {
	j.Log = append([]string(nil), j.Log...)
	if j.FinishedAt != nil {
		finished := *j.FinishedAt
		j.FinishedAt = &finished
	}
	if j.Summary != nil {
		summary := *j.Summary
		j.Summary = &summary
	}
	return j
}
