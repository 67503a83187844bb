package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rejintech/procsync/internal/metrics"
	"github.com/rejintech/procsync/internal/pipeline"
	"github.com/rejintech/procsync/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin server for batch triggers and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := cfg.AdminToken()
		if token == "" {
			logger.Warn("admin token not set; batch routes will reject every request",
				zap.String("env", cfg.Server.AdminTokenEnv))
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)

		admin := server.New(pipeline.New(cfg, db, logger, m), db, reg, token, logger)
		defer admin.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           admin.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signalContext()
		defer stop()

		errc := make(chan error, 1)
		go func() {
			logger.Info("admin server listening", zap.String("addr", srv.Addr))
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down admin server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
}
