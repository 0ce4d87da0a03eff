package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/david/product-scout/internal/api"
	"github.com/david/product-scout/internal/auth"
	"github.com/david/product-scout/internal/catalog"
	"github.com/david/product-scout/internal/db"
	"github.com/david/product-scout/internal/ingest"
	"github.com/david/product-scout/internal/metrics"
	"github.com/david/product-scout/internal/pipeline"
	"github.com/david/product-scout/internal/settings"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		stdlog.Printf("Warning: .env file not found, using system environment variables")
	}
	setupLogging()
	metrics.Register()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx)
	if err != nil {
		stdlog.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		stdlog.Fatalf("Migration failed: %v", err)
	}

	store := db.NewStore(pool)
	settingsStore := settings.NewFileStore(os.Getenv("SETTINGS_PATH"))
	creds := catalog.CredentialsFromEnv()
	platforms := func(cfg settings.IntegrationSettings) (catalog.Platform, error) {
		return catalog.NewPlatform(cfg, creds)
	}

	searcher := ingest.NewSearcher(strings.TrimSpace(os.Getenv("BRAVE_API_KEY")), time.Now)
	supplier := ingest.NewAliExpressSearcher(
		strings.TrimSpace(os.Getenv("ALIEXPRESS_API_KEY")),
		strings.TrimSpace(os.Getenv("ALIEXPRESS_TRACKING_ID")),
	)
	runner := pipeline.NewRunner(store, settingsStore, searcher, platforms)
	runner.Supplier = supplier

	authSvc, err := auth.NewService(auth.ConfigFromEnv())
	if err != nil {
		stdlog.Fatalf("Auth setup failed: %v", err)
	}

	scheduler := pipeline.NewScheduler(runner, pipeline.IntervalFromEnv())
	scheduler.Start(ctx)

	srv := api.NewServer(api.Deps{
		Store:    store,
		Settings: settingsStore,
		Runner:   runner,
		Auth:     authSvc,
		Platform: platforms,
		Supplier: supplier,
	})

	go func() {
		log.WithField("port", port).Info("server: starting")
		if err := srv.Start(port); err != nil && err != http.ErrServerClosed {
			stdlog.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server: shutdown failed")
	}
	scheduler.Wait()
}

// setupLogging applies LOG_FORMAT (text or json) and LOG_LEVEL.
func setupLogging() {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetHandler(json.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("server: unknown LOG_LEVEL, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
