package daemon

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	bench "github.com/gatewaylab/gatewaybench"
	"github.com/gatewaylab/gatewaybench/internal/config"
	"github.com/gatewaylab/gatewaybench/internal/db"
	"github.com/gatewaylab/gatewaybench/internal/metrics"
	"github.com/gatewaylab/gatewaybench/internal/server"
	"github.com/gatewaylab/gatewaybench/internal/workload"
)

const (
	defaultReadTimeout         = 5 * time.Second
	defaultShutdownGracePeriod = 10 * time.Second
)

// Daemon serves the workload API.
type Daemon struct {
	cfg      *config.Config
	db       *sql.DB
	manager  *workload.Manager
	handler  *server.Handler
	logger   *logrus.Entry
	registry *metrics.Registry
}

func (d *Daemon) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	d.handler.ServeHTTP(writer, request)
}

// Close cancels the running workload and closes the database.
func (d *Daemon) Close() error {
	err := d.manager.Close()
	if d.db != nil {
		if localErr := d.db.Close(); localErr != nil {
			err = localErr
		}
	}
	return err
}

func New(cfg *config.Config, logger *logrus.Entry) (*Daemon, error) {
	pacing, err := bench.Between(cfg.WaitMin, cfg.WaitMax)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger.WithField("subsystem", "daemon"),
		registry: metrics.MakeRegistry(),
	}

	var store workload.Store = workload.NewMemoryStore()
	if cfg.SQLiteDBPath != "" {
		d.db, err = db.OpenSQLiteDB(cfg.SQLiteDBPath)
		if err != nil {
			return nil, errors.Wrapf(err, "could not open database %s", cfg.SQLiteDBPath)
		}
		store = db.NewJobStore(d.db)
	}

	d.manager, err = workload.NewManager(workload.Config{
		OutputDir:       cfg.WorkloadOutputDir,
		AllowedHosts:    cfg.WorkloadAllowedHosts,
		LogLines:        int(cfg.WorkloadLogLines),
		Pacing:          pacing,
		RequestTimeout:  cfg.RequestTimeout,
		HistoryInterval: cfg.HistoryInterval,
		Store:           store,
		Logger:          logger,
		Metrics:         d.registry,
		PanicsCounter:   d.registry.PanicsCounter(),
	})
	if err != nil {
		if d.db != nil {
			_ = d.db.Close()
		}
		return nil, err
	}

	params := server.HandlerParams{
		Manager: d.manager,
		APIKey:  cfg.WorkloadAPIKey,
		Logger:  logger,
	}
	if cfg.AdminEndpoint == "" {
		params.Metrics = d.registry.HTTPHandler
	}
	d.handler = server.NewHandler(params)
	return d, nil
}

// Run serves until SIGINT or SIGTERM is received.
func Run(cfg *config.Config, logger *logrus.Entry) error {
	d, err := New(cfg, logger)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.Serve(ctx)
}

// Serve runs the API server, and the admin server if configured, until ctx
// is done. Then it shuts them down and closes the daemon.
func (d *Daemon) Serve(ctx context.Context) error {
	apiServer := &http.Server{
		Addr:        d.cfg.Endpoint,
		Handler:     d,
		ReadTimeout: defaultReadTimeout,
	}
	serveErr := make(chan error, 2)

	d.logger.Infof("Starting workload API server on %v", d.cfg.Endpoint)
	go func() {
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- errors.Wrap(err, "workload API server")
		}
	}()

	var adminServer *http.Server
	if d.cfg.AdminEndpoint != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.registry.HTTPHandler)
		adminServer = &http.Server{Addr: d.cfg.AdminEndpoint, Handler: mux, ReadTimeout: defaultReadTimeout}
		d.logger.Infof("Starting admin server on %v", d.cfg.AdminEndpoint)
		go func() {
			if err := adminServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				serveErr <- errors.Wrap(err, "admin server")
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	// Shutdown closes the listeners, then waits up to the grace period for
	// open connections to become idle.
	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), defaultShutdownGracePeriod)
	defer shutdownRelease()

	if shutdownErr := apiServer.Shutdown(shutdownCtx); shutdownErr != nil {
		d.logger.Errorf("Error during workload API server Shutdown: %v", shutdownErr)
	}
	if adminServer != nil {
		if shutdownErr := adminServer.Shutdown(shutdownCtx); shutdownErr != nil {
			d.logger.Errorf("Error during admin server Shutdown: %v", shutdownErr)
		}
	}
	if closeErr := d.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
