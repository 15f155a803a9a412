// Command catalogd is the process entrypoint: load configuration, open the
// catalog database, start the event bus and scan orchestrator wiring,
// start the filesystem watcher, and serve the HTTP API until signaled to
// shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mantonx/liveset-cataloger/internal/catalog"
	"github.com/mantonx/liveset-cataloger/internal/catalogdb"
	"github.com/mantonx/liveset-cataloger/internal/config"
	"github.com/mantonx/liveset-cataloger/internal/events"
	"github.com/mantonx/liveset-cataloger/internal/logger"
	"github.com/mantonx/liveset-cataloger/internal/media"
	"github.com/mantonx/liveset-cataloger/internal/scanner"
	"github.com/mantonx/liveset-cataloger/internal/server"
	"github.com/mantonx/liveset-cataloger/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("LOG_FORMAT") == "json")
	logger.Info("catalogd starting", "grpc_port", cfg.GRPCPort, "paths", cfg.Paths)

	for _, dir := range []string{cfg.MediaStorageDir} {
		if dir == "" {
			continue
		}
		if err := config.CanWriteToDirectory(dir); err != nil {
			logger.Error("startup write-check failed", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	db, err := catalogdb.Open(cfg.Database.Type, cfg.DatabasePath)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}

	store := catalog.NewStore(db)
	bus := events.NewBus()

	mediaStore := media.New(db, media.Config{
		Root:              cfg.MediaStorageDir,
		MaxCoverArtBytes:  int64(cfg.MaxCoverArtSizeMB) * 1024 * 1024,
		MaxAudioFileBytes: int64(cfg.MaxAudioFileSizeMB) * 1024 * 1024,
		AllowedImageExts:  []string{".jpg", ".jpeg", ".png", ".webp"},
		AllowedAudioExts:  []string{".wav", ".mp3", ".flac", ".aiff"},
	})
	if err := mediaStore.EnsureDirectories(); err != nil {
		logger.Error("media store init failed", "error", err)
		os.Exit(1)
	}

	fsWatcher, err := watcher.New(bus, store)
	if err != nil {
		logger.Error("watcher init failed", "error", err)
		os.Exit(1)
	}
	for _, root := range cfg.Paths {
		if err := fsWatcher.AddRoot(root); err != nil {
			logger.Warn("failed to watch root", "root", root, "error", err)
		}
	}
	go fsWatcher.Run()

	newScanner := func() *scanner.Orchestrator {
		return scanner.New(store, bus, scanner.Config{
			Roots:            cfg.Paths,
			PluginDBDir:      cfg.LiveDatabaseDir,
			AdaptiveThrottle: cfg.Performance.EnableAdaptiveThrottling,
		})
	}

	router := server.SetupRouter(server.Dependencies{
		Store:      store,
		Bus:        bus,
		Media:      mediaStore,
		NewScanner: newScanner,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.GRPCPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming endpoints hold the connection open
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	fsWatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
