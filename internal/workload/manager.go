package workload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	bench "github.com/gatewaylab/gatewaybench"
	"github.com/gatewaylab/gatewaybench/internal/util"
	"github.com/gatewaylab/gatewaybench/requester"
)

var (
	ErrNotFound       = errors.New("Workload not found")
	ErrNotRunning     = errors.New("Workload is not running")
	ErrAlreadyRunning = errors.New("A workload is already running")
	ErrUnknownReport  = errors.New("Unknown report type")
	ErrReportNotFound = errors.New("Report file not found")
	ErrClosed         = errors.New("workload manager is closed")
)

// AlreadyRunningError is returned by Start while another job is running.
type AlreadyRunningError struct {
	JobID string
}

func (e *AlreadyRunningError) Error() string {
	return ErrAlreadyRunning.Error()
}

func (e *AlreadyRunningError) Is(target error) bool {
	return target == ErrAlreadyRunning
}

// Report kinds served by ReportPath.
const (
	ReportHTML         = "html"
	ReportStats        = "stats"
	ReportStatsHistory = "stats_history"
	ReportFailures     = "failures"
	ReportDistribution = "distribution"
)

// Metrics is notified of every request of a job and of finished jobs.
type Metrics interface {
	bench.Observer
	ObserveJob(status string)
}

// FactoryFunc builds the requesters of a job targeting host.
type FactoryFunc func(host string, timeout time.Duration) bench.RequesterFactory

// ProcessFactory POSTs the default payload to host's process endpoint.
func ProcessFactory(host string, timeout time.Duration) bench.RequesterFactory {
	factory := requester.NewProcessRequesterFactory(host)
	factory.Timeout = timeout
	return factory
}

type Config struct {
	OutputDir       string
	AllowedHosts    []string
	LogLines        int
	Pacing          bench.Pacing
	RequestTimeout  time.Duration
	HistoryInterval time.Duration
	Store           Store
	Logger          *logrus.Entry
	Metrics         Metrics
	PanicsCounter   prometheus.Counter
	NewFactory      FactoryFunc
}

// Manager runs workload jobs, at most one at a time.
type Manager struct {
	cfg Config
	log *logrus.Entry

	mu     sync.Mutex
	active *activeJob
	closed bool
	wg     sync.WaitGroup
}

type activeJob struct {
	job       Job
	tail      *LogTail
	cancel    context.CancelFunc
	cancelled bool
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create workload output dir")
	}
	if cfg.LogLines <= 0 {
		cfg.LogLines = DefaultLogLines
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.NewFactory == nil {
		cfg.NewFactory = ProcessFactory
	}
	if err := cfg.Pacing.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg: cfg,
		log: cfg.Logger.WithField("subsystem", "workload"),
	}, nil
}

// ParseParams decodes a request body, checking the host against the
// configured allow list.
func (m *Manager) ParseParams(body []byte) (Params, error) {
	return ParseParams(body, m.cfg.AllowedHosts)
}

// Start launches a job. It fails with an *AlreadyRunningError while another
// job is running.
func (m *Manager) Start(ctx context.Context, params Params) (Job, error) {
	if err := params.Validate(m.cfg.AllowedHosts); err != nil {
		return Job{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Job{}, ErrClosed
	}
	if m.active != nil {
		return Job{}, &AlreadyRunningError{JobID: m.active.job.ID}
	}

	id := uuid.NewString()
	job := Job{
		ID:             id,
		Status:         StatusRunning,
		StartedAt:      time.Now().UTC(),
		Params:         params,
		HTMLReportPath: filepath.Join(m.cfg.OutputDir, "report-"+id+".html"),
		CSVPrefixPath:  filepath.Join(m.cfg.OutputDir, "results-"+id),
		Log:            []string{},
	}
	if err := m.cfg.Store.Put(ctx, job); err != nil {
		return Job{}, errors.Wrap(err, "store workload")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a := &activeJob{job: job, tail: NewLogTail(m.cfg.LogLines), cancel: cancel}
	m.active = a

	m.wg.Add(1)
	util.RecoverablePanicGroup.Log(m.log).Counter(m.cfg.PanicsCounter).Go(func() {
		defer m.wg.Done()
		m.run(runCtx, a)
	})
	return job.clone(), nil
}

func (m *Manager) run(ctx context.Context, a *activeJob) {
	defer a.cancel()
	defer func() {
		if recoverRes := recover(); recoverRes != nil {
			m.finish(a, nil, fmt.Errorf("workload panicked: %v", recoverRes))
			panic(recoverRes)
		}
	}()

	params := a.job.Params
	log := m.jobLogger(a)
	log.WithFields(logrus.Fields{
		"host":       params.Host,
		"users":      params.Users,
		"spawn_rate": params.SpawnRate,
		"run_time":   params.RunTime(),
	}).Info("starting workload")

	var observer bench.Observer
	if m.cfg.Metrics != nil {
		observer = m.cfg.Metrics
	}
	b, err := bench.NewBenchmark(m.cfg.NewFactory(params.Host, m.cfg.RequestTimeout), bench.Options{
		Users:           params.Users,
		SpawnRate:       params.SpawnRate,
		Duration:        params.RunTime(),
		Pacing:          m.cfg.Pacing,
		HistoryInterval: m.cfg.HistoryInterval,
		Observer:        observer,
		Logger:          log,
	})
	var summary *bench.Summary
	if err == nil {
		summary, err = b.Run(ctx)
	}
	if err == nil {
		err = m.writeReports(a.job, summary)
	}
	if err != nil {
		log.WithError(err).Error("workload failed")
	} else {
		log.WithField("summary", summary.String()).Info("workload finished")
	}
	m.finish(a, summary, err)
}

func (m *Manager) writeReports(job Job, summary *bench.Summary) error {
	if err := summary.WriteHTMLFile(job.HTMLReportPath); err != nil {
		return errors.Wrap(err, "write html report")
	}
	if err := summary.WriteCSV(job.CSVPrefixPath); err != nil {
		return errors.Wrap(err, "write csv reports")
	}
	if err := summary.GenerateLatencyDistribution(nil, distributionFile(job.CSVPrefixPath)); err != nil {
		return errors.Wrap(err, "write latency distribution")
	}
	return nil
}

func distributionFile(prefix string) string {
	return prefix + "_distribution.txt"
}

func (m *Manager) finish(a *activeJob, summary *bench.Summary, err error) {
	m.mu.Lock()
	if m.active != a {
		m.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	final := a.job.clone()
	final.FinishedAt = &now
	switch {
	case err != nil:
		final.Status = StatusFailed
		final.ErrorMessage = err.Error()
	case a.cancelled:
		final.Status = StatusCancelled
	case summary != nil && summary.ErrorTotal > 0:
		final.Status = StatusFailed
		final.ErrorMessage = fmt.Sprintf("%d of %d requests failed",
			summary.ErrorTotal, summary.SuccessTotal+summary.ErrorTotal)
	default:
		final.Status = StatusSucceeded
	}
	if summary != nil {
		final.Summary = newResult(summary)
	}
	final.Log = a.tail.Lines()
	m.mu.Unlock()

	// The job is reported finished only once it is stored and counted.
	if putErr := m.cfg.Store.Put(context.Background(), final); putErr != nil {
		m.log.WithError(putErr).WithField("job", final.ID).Error("could not store finished workload")
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ObserveJob(string(final.Status))
	}

	m.mu.Lock()
	a.job = final
	m.active = nil
	m.mu.Unlock()
}

// jobLogger returns a logger writing like the manager's and capturing lines
// into the job's log tail.
func (m *Manager) jobLogger(a *activeJob) *logrus.Entry {
	base := m.log.Logger
	logger := logrus.New()
	logger.SetOutput(base.Out)
	logger.SetFormatter(base.Formatter)
	logger.SetLevel(base.GetLevel())
	for level, hooks := range base.Hooks {
		logger.Hooks[level] = append(logger.Hooks[level], hooks...)
	}
	logger.AddHook(a.tail)
	return logger.WithFields(m.log.Data).WithField("job", a.job.ID)
}

// Get returns the job with the given id. The log of a running job is its
// current tail.
func (m *Manager) Get(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	if a := m.active; a != nil && a.job.ID == id {
		job := a.job.clone()
		job.Log = a.tail.Lines()
		m.mu.Unlock()
		return job, nil
	}
	m.mu.Unlock()
	return m.cfg.Store.Get(ctx, id)
}

// List returns every job, newest first.
func (m *Manager) List(ctx context.Context) ([]Job, error) {
	jobs, err := m.cfg.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.active; a != nil {
		for i := range jobs {
			if jobs[i].ID == a.job.ID {
				jobs[i] = a.job.clone()
				jobs[i].Log = a.tail.Lines()
			}
		}
	}
	return jobs, nil
}

// Cancel stops a running job. The job ends with StatusCancelled once its
// reports are written.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	if a := m.active; a != nil && a.job.ID == id {
		a.cancelled = true
		a.cancel()
		m.mu.Unlock()
		m.log.WithField("job", id).Info("cancelling workload")
		return nil
	}
	m.mu.Unlock()
	if _, err := m.cfg.Store.Get(ctx, id); err != nil {
		return err
	}
	return ErrNotRunning
}

// ReportPath returns the path of a report of the job.
func (m *Manager) ReportPath(ctx context.Context, id, kind string) (string, error) {
	job, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	stats, history, failures := bench.CSVFiles(job.CSVPrefixPath)
	var path string
	switch kind {
	case ReportHTML:
		path = job.HTMLReportPath
	case ReportStats:
		path = stats
	case ReportStatsHistory:
		path = history
	case ReportFailures:
		path = failures
	case ReportDistribution:
		path = distributionFile(job.CSVPrefixPath)
	default:
		return "", ErrUnknownReport
	}
	if _, err := os.Stat(path); err != nil {
		return "", ErrReportNotFound
	}
	return path, nil
}

// Close cancels the running job, if any, and waits for it to finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	if a := m.active; a != nil {
		a.cancelled = true
		a.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}
