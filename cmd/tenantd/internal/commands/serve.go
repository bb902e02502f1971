package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadmin "github.com/wolfeidau/tenantdb/internal/http"
	"github.com/wolfeidau/tenantdb/internal/logger"
	"github.com/wolfeidau/tenantdb/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"127.0.0.1:8080" env:"TENANTDB_LISTEN"`
	Cert   string `help:"path to TLS cert file, empty serves plain HTTP" default:"" env:"TENANTDB_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"TENANTDB_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for admin requests" default:"http://localhost" env:"TENANTDB_CORS_ORIGINS"`

	// Telemetry
	Telemetry   bool    `help:"export traces and metrics over OTLP" default:"false" env:"TENANTDB_TELEMETRY"`
	SampleRatio float64 `help:"trace sampling ratio" default:"1" env:"TENANTDB_TRACE_SAMPLE_RATIO"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
	Tenant   TenantFlags   `embed:"" prefix:"tenant-"`
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting tenantd")

	if c.Telemetry {
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "tenantd",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Failed to shutdown telemetry")
				}
			}()
		}
	}

	rt, err := newRuntime(ctx, log, &c.Postgres, &c.Tenant)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	if err := rt.initPrimary(ctx); err != nil {
		return err
	}

	handler := httpadmin.NewAdminHandler(httpadmin.AdminConfig{
		Organizations: rt.organizations,
		Assigner:      rt.allocator,
		Units:         rt.cache,
		Schema:        rt.schema,
		CORSOrigins:   c.CORSOrigins,
		Logger:        log,
	})

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting admin server")
		if c.Cert != "" {
			if c.Key == "" {
				errCh <- errors.New("TLS key is required with --cert")
				return
			}
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
