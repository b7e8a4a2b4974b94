// Command floodgate runs the rate limit check service.
//
// Clients POST /v1/check with a client_id and get back an admission
// decision; Prometheus metrics are exposed on /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"

	"github.com/floodgate-io/floodgate/api"
	"github.com/floodgate-io/floodgate/metrics"
	"github.com/floodgate-io/floodgate/pkg/floodgate"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "listen address")
		configPath = flag.String("config", "", "path to YAML config file")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
		logJSON    = flag.Bool("log-json", false, "emit JSON logs instead of text")
	)
	flag.Parse()

	logger, closeLogger, err := newLogger(*logLevel, *logJSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer closeLogger()

	if err := run(logger, *addr, *configPath); err != nil {
		logger.Error("service failed", logf.Error(err))
		closeLogger()
		os.Exit(1)
	}
}

func run(logger *logf.Logger, addr, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := floodgate.DefaultConfig()
	if configPath != "" {
		loaded, err := floodgate.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	backend := "memory"
	if cfg.Redis != nil {
		backend = "redis"
	}

	limiter, err := floodgate.New(
		floodgate.WithConfig(cfg),
		floodgate.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return fmt.Errorf("building limiter: %w", err)
	}
	defer limiter.Close()

	stopCleanup := limiter.StartCleanup()
	defer stopCleanup()

	handler := api.NewHandler(limiter, logger)
	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			logf.String("addr", addr),
			logf.String("backend", backend),
			logf.Int64("default_capacity", cfg.Defaults.Capacity),
			logf.Float64("default_rate", cfg.Defaults.Rate),
			logf.Int("route_policies", len(cfg.Policies)),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func newLogger(level string, jsonFormat bool) (*logf.Logger, func(), error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	var appender logf.Appender
	if jsonFormat {
		appender = logf.NewWriteAppender(os.Stdout, logf.NewJSONEncoder(logf.JSONEncoderConfig{
			EncodeTime:   logf.RFC3339NanoTimeEncoder,
			FieldKeyTime: "time",
		}))
	} else {
		appender = logftext.NewAppender(os.Stdout, logftext.EncoderConfig{
			EncodeTime: logf.RFC3339NanoTimeEncoder,
		})
	}

	channel, closeFn := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          appender,
		EnableSyncOnError: true,
	})
	return logf.NewLogger(lvl, channel), func() { closeFn() }, nil
}

func parseLevel(s string) (logf.Level, error) {
	switch s {
	case "debug":
		return logf.LevelDebug, nil
	case "info":
		return logf.LevelInfo, nil
	case "warn":
		return logf.LevelWarn, nil
	case "error":
		return logf.LevelError, nil
	default:
		return logf.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
