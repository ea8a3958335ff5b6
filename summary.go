package bench

import (
	"fmt"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/tylertreat/hdrhistogram-writer"
)

// Summary contains the results of a Benchmark run.
type Summary struct {
	Users            uint64
	SpawnRate        float64
	SuccessTotal     uint64
	ErrorTotal       uint64
	TimeElapsed      time.Duration
	SuccessHistogram *hdrhistogram.Histogram
	ErrorHistogram   *hdrhistogram.Histogram
	Throughput       float64

	// Entries holds one row per request method and name, sorted by name.
	Entries []EntryStats

	// Aggregated is the row covering every request of the run.
	Aggregated EntryStats

	// Failures groups failed requests by method, name and error, most
	// frequent first.
	Failures []Failure

	History []HistoryRow
}

// EntryStats describes the requests sharing a method and name. Latencies are
// in milliseconds.
type EntryStats struct {
	Method            string
	Name              string
	RequestCount      uint64
	FailureCount      uint64
	MinMillis         float64
	MaxMillis         float64
	AverageMillis     float64
	RequestsPerSecond float64
	FailuresPerSecond float64
	Percentiles       map[float64]float64
}

// Failure counts the occurrences of one error.
type Failure struct {
	Method      string
	Name        string
	Error       string
	Occurrences uint64
}

// HistoryRow is a point-in-time sample of a running benchmark. Percentiles
// are cumulative since the start of the run, in milliseconds.
type HistoryRow struct {
	Timestamp         time.Time
	Users             int
	RequestsPerSecond float64
	FailuresPerSecond float64
	P50               float64
	P95               float64
	P99               float64
	TotalRequests     uint64
	TotalFailures     uint64
}

// String returns a stringified version of the Summary.
func (s *Summary) String() string {
	return fmt.Sprintf(
		"\n{Users: %d, SpawnRate: %.2f, RequestTotal: %d, SuccessTotal: %d, ErrorTotal: %d, TimeElapsed: %s, Throughput: %.2f/s}",
		s.Users, s.SpawnRate, s.SuccessTotal+s.ErrorTotal, s.SuccessTotal, s.ErrorTotal, s.TimeElapsed, s.Throughput)
}

// GenerateLatencyDistribution generates a text file containing the specified
// latency distribution in a format plottable by
// http://hdrhistogram.github.io/HdrHistogram/plotFiles.html. Percentiles is a
// list of percentiles to include, e.g. 10.0, 50.0, 99.0, 99.99, etc. If
// percentiles is nil, it defaults to a logarithmic percentile scale.
func (s *Summary) GenerateLatencyDistribution(percentiles histwriter.Percentiles, file string) error {
	return generateLatencyDistribution(s.SuccessHistogram, percentiles, file)
}

// GenerateErrorLatencyDistribution generates a text file containing the
// latency distribution of requests that resulted in errors, in the same
// format as GenerateLatencyDistribution.
func (s *Summary) GenerateErrorLatencyDistribution(percentiles histwriter.Percentiles, file string) error {
	return generateLatencyDistribution(s.ErrorHistogram, percentiles, file)
}

func generateLatencyDistribution(histogram *hdrhistogram.Histogram, percentiles histwriter.Percentiles, file string) error {
	scaleFactor := 0.000001 // Scale ns to ms.
	return histwriter.WriteDistributionFile(histogram, percentiles, scaleFactor, file)
}
