package analysis

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/acme/autocert"

	"github.com/nameatlas/nameatlas/internal/api"
	"github.com/nameatlas/nameatlas/internal/conf"
	"github.com/nameatlas/nameatlas/internal/logging"
	"github.com/nameatlas/nameatlas/internal/observability"
	"github.com/nameatlas/nameatlas/internal/telemetry"
)

// shutdownTimeout bounds how long in-flight requests may run after the
// process receives a termination signal.
const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP API until the process receives SIGINT or SIGTERM,
// then shuts the server down gracefully.
func Serve(settings *conf.Settings) error {
	agg, gw, err := buildPipeline(settings)
	if err != nil {
		return err
	}
	defer gw.Close()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	controller, err := api.New(e, settings, agg, gw, log.Default(), metrics)
	if err != nil {
		return err
	}
	defer controller.Shutdown()

	quit := make(chan struct{})
	var wg sync.WaitGroup

	// Dedicated metrics listener, for deployments that keep Prometheus
	// scraping off the public port.
	if settings.Observability.Enabled {
		endpoint, err := observability.NewEndpoint(settings, metrics)
		if err != nil {
			return err
		}
		endpoint.Start(&wg, quit)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- startServer(e, settings)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		logging.Info("Shutting down", "signal", s.String())
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			close(quit)
			wg.Wait()
			return err
		}
	}

	close(quit)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logging.Error("Server shutdown error", "error", err)
	}

	wg.Wait()
	telemetry.Flush(3 * time.Second)

	return nil
}

// startServer starts the echo server, with automatic Let's Encrypt
// certificates when AutoTLS is configured.
func startServer(e *echo.Echo, settings *conf.Settings) error {
	addr := ":" + settings.WebServer.Port

	if settings.WebServer.AutoTLS {
		configPaths, err := conf.GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		e.AutoTLSManager.Prompt = autocert.AcceptTOS
		e.AutoTLSManager.Cache = autocert.DirCache(configPaths[0])
		e.AutoTLSManager.HostPolicy = autocert.HostWhitelist(settings.WebServer.Host)

		logging.Info("Starting API server with AutoTLS", "address", addr, "host", settings.WebServer.Host)
		return e.StartAutoTLS(addr)
	}

	logging.Info("Starting API server", "address", addr)
	return e.Start(addr)
}
