package bench

import (
	"sort"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
)

// Percentiles reported in stats tables and history rows.
var reportPercentiles = []float64{50, 66, 75, 80, 90, 95, 98, 99, 99.9, 99.99, 100}

type entryKey struct {
	method string
	name   string
}

type failureKey struct {
	method string
	name   string
	err    string
}

// entry holds the statistics of every request sharing a method and name.
type entry struct {
	successTotal     uint64
	errorTotal       uint64
	successHistogram *hdrhistogram.Histogram
	errorHistogram   *hdrhistogram.Histogram
	allHistogram     *hdrhistogram.Histogram
}

func newEntry() *entry {
	return &entry{
		successHistogram: hdrhistogram.New(1, maxRecordableLatencyNS, sigFigs),
		errorHistogram:   hdrhistogram.New(1, maxRecordableLatencyNS, sigFigs),
		allHistogram:     hdrhistogram.New(1, maxRecordableLatencyNS, sigFigs),
	}
}

func (e *entry) record(latency time.Duration, failed bool) {
	ns := latency.Nanoseconds()
	if ns < 1 {
		ns = 1
	}
	if ns > maxRecordableLatencyNS {
		ns = maxRecordableLatencyNS
	}
	_ = e.allHistogram.RecordValue(ns)
	if failed {
		e.errorTotal++
		_ = e.errorHistogram.RecordValue(ns)
		return
	}
	e.successTotal++
	_ = e.successHistogram.RecordValue(ns)
}

// all returns a histogram of both successful and failed requests.
func (e *entry) all() *hdrhistogram.Histogram {
	return e.allHistogram
}

// stats aggregates request outcomes of all users of a run.
type stats struct {
	mu       sync.Mutex
	observer Observer
	users    int
	entries  map[entryKey]*entry
	total    *entry
	failures map[failureKey]uint64
	history  []HistoryRow

	lastSample      time.Time
	lastSampleTotal uint64
	lastSampleError uint64
}

func newStats(observer Observer) *stats {
	return &stats{
		observer:   observer,
		entries:    make(map[entryKey]*entry),
		total:      newEntry(),
		failures:   make(map[failureKey]uint64),
		lastSample: time.Now(),
	}
}

// userStarted and userStopped notify the observer under the lock so that
// it sees user counts in order.
func (s *stats) userStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users++
	s.observer.ObserveUsers(s.users)
}

func (s *stats) userStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users--
	s.observer.ObserveUsers(s.users)
}

func (s *stats) record(method, name string, latency time.Duration, err error) {
	s.mu.Lock()
	key := entryKey{method: method, name: name}
	e, ok := s.entries[key]
	if !ok {
		e = newEntry()
		s.entries[key] = e
	}
	failed := err != nil
	e.record(latency, failed)
	s.total.record(latency, failed)
	if failed {
		s.failures[failureKey{method: method, name: name, err: err.Error()}]++
	}
	s.mu.Unlock()
	s.observer.ObserveRequest(method, name, latency, err)
}

// sample appends a history row covering the time since the previous sample.
func (s *stats) sample(now time.Time) HistoryRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.total.successTotal + s.total.errorTotal
	window := now.Sub(s.lastSample).Seconds()
	row := HistoryRow{
		Timestamp:     now,
		Users:         s.users,
		TotalRequests: total,
		TotalFailures: s.total.errorTotal,
	}
	if window > 0 {
		row.RequestsPerSecond = float64(total-s.lastSampleTotal) / window
		row.FailuresPerSecond = float64(s.total.errorTotal-s.lastSampleError) / window
	}
	all := s.total.all()
	row.P50 = toMillis(all.ValueAtQuantile(50))
	row.P95 = toMillis(all.ValueAtQuantile(95))
	row.P99 = toMillis(all.ValueAtQuantile(99))

	s.lastSample = now
	s.lastSampleTotal = total
	s.lastSampleError = s.total.errorTotal
	s.history = append(s.history, row)
	return row
}

func (s *stats) summary(users uint64, spawnRate float64, elapsed time.Duration) *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &Summary{
		Users:            users,
		SpawnRate:        spawnRate,
		SuccessTotal:     s.total.successTotal,
		ErrorTotal:       s.total.errorTotal,
		TimeElapsed:      elapsed,
		SuccessHistogram: hdrhistogram.Import(s.total.successHistogram.Export()),
		ErrorHistogram:   hdrhistogram.Import(s.total.errorHistogram.Export()),
		History:          append([]HistoryRow(nil), s.history...),
	}
	if seconds := elapsed.Seconds(); seconds > 0 {
		summary.Throughput = float64(summary.SuccessTotal+summary.ErrorTotal) / seconds
	}

	for key, e := range s.entries {
		summary.Entries = append(summary.Entries, newEntryStats(key.method, key.name, e, elapsed))
	}
	sort.Slice(summary.Entries, func(i, j int) bool {
		if summary.Entries[i].Name != summary.Entries[j].Name {
			return summary.Entries[i].Name < summary.Entries[j].Name
		}
		return summary.Entries[i].Method < summary.Entries[j].Method
	})
	summary.Aggregated = newEntryStats("", "Aggregated", s.total, elapsed)

	for key, count := range s.failures {
		summary.Failures = append(summary.Failures, Failure{
			Method:      key.method,
			Name:        key.name,
			Error:       key.err,
			Occurrences: count,
		})
	}
	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Occurrences > summary.Failures[j].Occurrences
	})
	return summary
}

func newEntryStats(method, name string, e *entry, elapsed time.Duration) EntryStats {
	all := e.all()
	es := EntryStats{
		Method:       method,
		Name:         name,
		RequestCount: e.successTotal + e.errorTotal,
		FailureCount: e.errorTotal,
		Percentiles:  make(map[float64]float64, len(reportPercentiles)),
	}
	if all.TotalCount() > 0 {
		es.MinMillis = toMillis(all.Min())
		es.MaxMillis = toMillis(all.Max())
		es.AverageMillis = all.Mean() / float64(time.Millisecond)
		for _, p := range reportPercentiles {
			es.Percentiles[p] = toMillis(all.ValueAtQuantile(p))
		}
	}
	if seconds := elapsed.Seconds(); seconds > 0 {
		es.RequestsPerSecond = float64(es.RequestCount) / seconds
		es.FailuresPerSecond = float64(es.FailureCount) / seconds
	}
	return es
}

func toMillis(ns int64) float64 {
	return float64(ns) / float64(time.Millisecond)
}
