package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"churnserve/config"
	qhttp "churnserve/http"
	"churnserve/logging"
	"churnserve/ml"
	"churnserve/monitoring"
	"churnserve/telemetry"
	"churnserve/tracing"
)

func main() {
	configPath := flag.String("config", "config.yaml", "service config file")
	flag.Parse()

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, level, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}

	os.Exit(finish(log, run(cfg, *configPath, log, level)))
}

// finish records how run ended and flushes buffered entries before the
// process exits.
func finish(log *zap.Logger, err error) int {
	code := 0
	if err != nil {
		log.Error("churnserve stopped", zap.Error(err))
		code = 1
	}
	log.Sync()
	return code
}

func run(cfg *config.Config, configPath string, log *zap.Logger, level zap.AtomicLevel) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	// The model is loaded once; a bad artifact stops startup.
	model, err := ml.LoadModel(cfg.Model.Type, cfg.Model.Path)
	if err != nil {
		return err
	}
	log.Info("model loaded",
		zap.String("type", cfg.Model.Type),
		zap.String("path", cfg.Model.Path),
		zap.Int("features", model.NumFeatures()))

	sessionCfg, err := telemetry.LoadSessionConfig(cfg.Telemetry.SessionFile)
	if err != nil {
		return err
	}
	sessionCfg.ApplyEnv()
	session, err := telemetry.NewSession(sessionCfg, log)
	if err != nil {
		return fmt.Errorf("start telemetry session: %w", err)
	}

	hub := monitoring.NewHub(log)
	go hub.Run(ctx)
	session.Subscribe(hub)

	recorder, err := session.Logger(cfg.Telemetry.DatasetName, time.Now().UTC())
	if err != nil {
		return err
	}

	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:         cfg.Http.Port,
		Timeout:      cfg.Http.Timeout,
		MaxBodyBytes: cfg.Http.MaxBodyBytes,
	}, &qhttp.Handlers{
		Model:     model,
		Telemetry: recorder,
		LabelKey:  cfg.Model.LabelKey,
		Logger:    log,
	}, hub, log)

	go func() {
		err := config.Watch(ctx, configPath, log, func(next *config.Config) {
			if err := logging.SetLevel(level, next.Log.Level); err != nil {
				log.Warn("ignoring log level change", zap.Error(err))
				return
			}
			log.Info("log level updated", zap.String("level", next.Log.Level))
		})
		if err != nil {
			log.Warn("config watch stopped", zap.Error(err))
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := session.Close(shutdownCtx); err != nil {
		log.Error("telemetry shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown", zap.Error(err))
	}
	log.Info("exiting")
	return nil
}
