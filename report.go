package bench

import (
	"encoding/csv"
	"html/template"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	statsSuffix    = "_stats.csv"
	historySuffix  = "_stats_history.csv"
	failuresSuffix = "_failures.csv"
)

// CSVFiles returns the stats, history and failures file names WriteCSV uses
// for prefix.
func CSVFiles(prefix string) (stats, history, failures string) {
	return prefix + statsSuffix, prefix + historySuffix, prefix + failuresSuffix
}

// WriteCSV writes <prefix>_stats.csv, <prefix>_stats_history.csv and
// <prefix>_failures.csv.
func (s *Summary) WriteCSV(prefix string) error {
	stats, history, failures := CSVFiles(prefix)
	if err := writeFile(stats, s.WriteStatsCSV); err != nil {
		return err
	}
	if err := writeFile(history, s.WriteHistoryCSV); err != nil {
		return err
	}
	return writeFile(failures, s.WriteFailuresCSV)
}

func writeFile(name string, write func(io.Writer) error) error {
	f, err := os.Create(name)
	if err != nil {
		return errors.Wrapf(err, "create %s", name)
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", name)
	}
	return f.Close()
}

func percentileHeader(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func (e EntryStats) csvRow() []string {
	row := []string{
		e.Method,
		e.Name,
		strconv.FormatUint(e.RequestCount, 10),
		strconv.FormatUint(e.FailureCount, 10),
		formatFloat(e.Percentiles[50]),
		formatFloat(e.AverageMillis),
		formatFloat(e.MinMillis),
		formatFloat(e.MaxMillis),
		formatFloat(e.RequestsPerSecond),
		formatFloat(e.FailuresPerSecond),
	}
	for _, p := range reportPercentiles {
		row = append(row, formatFloat(e.Percentiles[p]))
	}
	return row
}

// WriteStatsCSV writes one row per request entry followed by the aggregated
// row.
func (s *Summary) WriteStatsCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"Type", "Name", "Request Count", "Failure Count", "Median Response Time",
		"Average Response Time", "Min Response Time", "Max Response Time",
		"Requests/s", "Failures/s",
	}
	for _, p := range reportPercentiles {
		header = append(header, percentileHeader(p))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range s.Entries {
		if err := cw.Write(e.csvRow()); err != nil {
			return err
		}
	}
	if err := cw.Write(s.Aggregated.csvRow()); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteHistoryCSV writes the sampled history rows.
func (s *Summary) WriteHistoryCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"Timestamp", "User Count", "Type", "Name", "Requests/s", "Failures/s",
		"50%", "95%", "99%", "Total Request Count", "Total Failure Count",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range s.History {
		record := []string{
			strconv.FormatInt(row.Timestamp.Unix(), 10),
			strconv.Itoa(row.Users),
			"",
			"Aggregated",
			formatFloat(row.RequestsPerSecond),
			formatFloat(row.FailuresPerSecond),
			formatFloat(row.P50),
			formatFloat(row.P95),
			formatFloat(row.P99),
			strconv.FormatUint(row.TotalRequests, 10),
			strconv.FormatUint(row.TotalFailures, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFailuresCSV writes the aggregated failures.
func (s *Summary) WriteFailuresCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Method", "Name", "Error", "Occurrences"}); err != nil {
		return err
	}
	for _, f := range s.Failures {
		if err := cw.Write([]string{f.Method, f.Name, f.Error, strconv.FormatUint(f.Occurrences, 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"ms": formatFloat,
	"pct": func(e EntryStats, p float64) string {
		return formatFloat(e.Percentiles[p])
	},
	"ts": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Load test report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: right; }
th:nth-child(-n+2), td:nth-child(-n+2) { text-align: left; }
</style>
</head>
<body>
<h1>Load test report</h1>
<p>Users: {{.Users}}, spawn rate: {{ms .SpawnRate}}/s, elapsed: {{.TimeElapsed}}, throughput: {{ms .Throughput}}/s</p>
<h2>Request statistics</h2>
<table>
<tr><th>Type</th><th>Name</th><th>Requests</th><th>Failures</th><th>Avg (ms)</th><th>Min (ms)</th><th>Max (ms)</th><th>RPS</th><th>Failures/s</th></tr>
{{range .Entries}}<tr><td>{{.Method}}</td><td>{{.Name}}</td><td>{{.RequestCount}}</td><td>{{.FailureCount}}</td><td>{{ms .AverageMillis}}</td><td>{{ms .MinMillis}}</td><td>{{ms .MaxMillis}}</td><td>{{ms .RequestsPerSecond}}</td><td>{{ms .FailuresPerSecond}}</td></tr>
{{end}}{{with .Aggregated}}<tr><td></td><td>{{.Name}}</td><td>{{.RequestCount}}</td><td>{{.FailureCount}}</td><td>{{ms .AverageMillis}}</td><td>{{ms .MinMillis}}</td><td>{{ms .MaxMillis}}</td><td>{{ms .RequestsPerSecond}}</td><td>{{ms .FailuresPerSecond}}</td></tr>{{end}}
</table>
<h2>Response time percentiles (ms)</h2>
<table>
<tr><th>Type</th><th>Name</th><th>50%</th><th>95%</th><th>99%</th><th>100%</th></tr>
{{range .Entries}}<tr><td>{{.Method}}</td><td>{{.Name}}</td><td>{{pct . 50}}</td><td>{{pct . 95}}</td><td>{{pct . 99}}</td><td>{{pct . 100}}</td></tr>
{{end}}</table>
<h2>Failures</h2>
<table>
<tr><th>Method</th><th>Name</th><th>Error</th><th>Occurrences</th></tr>
{{range .Failures}}<tr><td>{{.Method}}</td><td>{{.Name}}</td><td>{{.Error}}</td><td>{{.Occurrences}}</td></tr>
{{end}}</table>
<h2>History</h2>
<table>
<tr><th>Time</th><th>Users</th><th>RPS</th><th>Failures/s</th><th>p50</th><th>p95</th><th>p99</th><th>Total</th><th>Total failures</th></tr>
{{range .History}}<tr><td>{{ts .Timestamp}}</td><td>{{.Users}}</td><td>{{ms .RequestsPerSecond}}</td><td>{{ms .FailuresPerSecond}}</td><td>{{ms .P50}}</td><td>{{ms .P95}}</td><td>{{ms .P99}}</td><td>{{.TotalRequests}}</td><td>{{.TotalFailures}}</td></tr>
{{end}}</table>
</body>
</html>
`))

// WriteHTML writes a self-contained HTML report of the Summary.
func (s *Summary) WriteHTML(w io.Writer) error {
	return reportTemplate.Execute(w, s)
}

// WriteHTMLFile writes the HTML report to the named file.
func (s *Summary) WriteHTMLFile(name string) error {
	return writeFile(name, s.WriteHTML)
}
