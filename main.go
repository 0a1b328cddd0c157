package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"visionpanel/internal/auth"
	"visionpanel/internal/config"
	"visionpanel/internal/logger"
	"visionpanel/internal/store"
	"visionpanel/internal/stream"
	"visionpanel/internal/vision"
	"visionpanel/internal/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (short)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Vision Panel",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.NewStore(cfg.Database.Path, log)
	if err != nil {
		log.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	authn := auth.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.TokenTTL, st)

	ffmpeg, err := vision.NewFFmpegWrapper(log)
	if err != nil {
		log.Error("Failed to initialize ffmpeg", "error", err)
		os.Exit(1)
	}

	detector := vision.NewClient(vision.ClientConfig{
		ServiceURL: cfg.Detection.ServiceURL,
		Timeout:    cfg.Detection.Timeout,
	}, log)
	models := vision.NewModels(detector.LoadModel)
	engine := vision.NewEngine(ffmpeg, detector, models, log)
	prober := vision.NewProber(log)

	registry := stream.NewRegistry(engine, stream.Config{
		ReadBackoff: cfg.Stream.ReadBackoff,
		MaxFailures: cfg.Stream.MaxFailures,
	}, log)

	server := web.NewServer(cfg, st, authn, registry, prober, log)
	if err := server.Start(ctx); err != nil {
		log.Error("Failed to start web server", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping web server", "error", err)
	}
	registry.Shutdown()

	log.Info("Shutdown complete")
}
