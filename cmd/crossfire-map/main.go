package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/crossfire-map/internal/adapter/fogocruzado"
	httpadapter "github.com/couchcryptid/crossfire-map/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/crossfire-map/internal/adapter/kafka"
	"github.com/couchcryptid/crossfire-map/internal/adapter/shapefile"
	"github.com/couchcryptid/crossfire-map/internal/config"
	"github.com/couchcryptid/crossfire-map/internal/observability"
	"github.com/couchcryptid/crossfire-map/internal/pipeline"
	"github.com/couchcryptid/crossfire-map/internal/render"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Local runs may keep credentials in a .env file; real env vars win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := newLogger(cfg)
	metrics := observability.NewMetrics()

	client := fogocruzado.NewClient(cfg.BaseURL, cfg.APITimeout, logger, metrics)
	boundaries := shapefile.NewSource(cfg.ShapefilePath, cfg.BoundaryNameField)

	// Publication is feature-flagged via KAFKA_BROKERS.
	var loader pipeline.Loader
	if cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(cfg, logger, metrics)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		loader = writer
		logger.Info("kafka publication enabled", "rows_topic", cfg.KafkaRowsTopic, "counts_topic", cfg.KafkaCountsTopic)
	}

	p := pipeline.New(client, boundaries, loader, pipeline.Settings{
		Email:         cfg.Email,
		Password:      cfg.Password,
		VictimPolicy:  cfg.VictimPolicy,
		MatchStrategy: cfg.MatchStrategy,
		Render: render.Options{
			Title:       cfg.MapTitle,
			LegendLabel: cfg.LegendLabel,
		},
	}, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := p.Run(ctx)
	if err != nil {
		logger.Error("pipeline error", "error", err)
		return 1
	}

	if res.SVG != nil {
		if err := os.WriteFile(cfg.OutputPath, res.SVG, 0o644); err != nil {
			logger.Error("failed to write map", "path", cfg.OutputPath, "error", err)
			return 1
		}
		logger.Info("map written", "path", cfg.OutputPath, "bytes", len(res.SVG))
	}

	if cfg.HTTPAddr == "" {
		return 0
	}
	return serve(ctx, cfg, p, logger)
}

func newLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

// serve exposes the rendered map until the process is signalled.
func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) int {
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server error", "error", err)
		code = 1
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return code
}
