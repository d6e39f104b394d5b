package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mediatrack/api"
	"mediatrack/config"
	"mediatrack/handlers"
	"mediatrack/services/catalog"
	"mediatrack/services/library"
	"mediatrack/services/scheduler"
	"mediatrack/services/users"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	// Optional .env for local development (TMDB key etc.)
	_ = godotenv.Load()

	fmt.Println("mediatrack backend starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("MEDIATRACK_CONFIG")
	if configPath == "" {
		dataDir := os.Getenv("MEDIATRACK_DATA_DIR")
		if dataDir == "" {
			dataDir = "cache"
		}
		configPath = filepath.Join(dataDir, "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			// Redirect standard log to both console and file
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	// Apply port override if specified
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Environment wins over the stored TMDB key so deployments can rotate
	// credentials without editing settings.json.
	if key := os.Getenv("TMDB_API_KEY"); key != "" {
		settings.Catalog.TMDBAPIKey = key
	}
	if settings.Catalog.TMDBAPIKey == "" {
		log.Printf("warning: no TMDB API key configured; movie and tv search will fail")
	}

	catalogService, err := catalog.NewService(catalog.Config{
		TMDBAPIKey:        settings.Catalog.TMDBAPIKey,
		Language:          settings.Catalog.Language,
		CacheDir:          settings.Cache.Directory,
		TTLHours:          settings.Cache.CatalogTTLHours,
		RequestTimeoutSec: settings.Catalog.RequestTimeoutSec,
		SearchPerSource:   settings.Catalog.SearchPerSource,
	})
	if err != nil {
		log.Fatalf("failed to initialise catalog: %v", err)
	}
	defer catalogService.Close()

	libraryService, err := library.NewService(settings.Library.DatabasePath)
	if err != nil {
		log.Fatalf("failed to initialise library: %v", err)
	}
	defer libraryService.Close()

	userService, err := users.NewService(settings.Cache.Directory)
	if err != nil {
		log.Fatalf("failed to initialise users: %v", err)
	}

	schedulerService := scheduler.NewService(cfgManager, catalogService, libraryService)
	if err := schedulerService.Start(context.Background()); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	// Construct router and register API routes
	r := mux.NewRouter()

	settingsHandler := handlers.NewSettingsHandler(cfgManager)
	settingsHandler.SetCatalogService(catalogService) // Enable hot reload of API keys
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	libraryHandler := handlers.NewLibraryHandler(libraryService)
	usersHandler := handlers.NewUsersHandler(userService)
	tasksHandler := handlers.NewScheduledTasksHandler(cfgManager, schedulerService)
	artworkHandler := handlers.NewArtworkHandler(settings.Cache.Directory)
	settingsHandler.SetArtworkHandler(artworkHandler)

	api.Register(
		r,
		settingsHandler,
		catalogHandler,
		libraryHandler,
		usersHandler,
		tasksHandler,
		artworkHandler,
	)

	// Best-effort save so the config persists backfilled defaults
	_ = cfgManager.Save(settings)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the scheduler first so no task writes during teardown
	if err := schedulerService.Stop(shutdownCtx); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}
