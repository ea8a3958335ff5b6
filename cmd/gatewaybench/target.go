package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gatewaylab/gatewaybench/internal/target"
)

func newTargetCmd(logger func() *logrus.Entry) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "target",
		Short: "Serve a stand-in process endpoint for local runs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveTarget(ctx, addr, logger())
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "localhost:8080", "address the stand-in listens on")
	return cmd
}

func serveTarget(ctx context.Context, addr string, logger *logrus.Entry) error {
	handler := target.NewHandler(logger)
	server := &http.Server{Addr: addr, Handler: handler, ReadTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting target on %v", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, release := context.WithTimeout(context.Background(), 10*time.Second)
	defer release()
	err := server.Shutdown(shutdownCtx)
	logger.WithFields(logrus.Fields{
		"processed": handler.Processed(),
		"rejected":  handler.Rejected(),
	}).Info("target stopped")
	return err
}
