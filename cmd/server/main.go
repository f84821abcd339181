package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"

	"github.com/campushub/calsync/internal/api"
	appauth "github.com/campushub/calsync/internal/auth"
	"github.com/campushub/calsync/internal/config"
	"github.com/campushub/calsync/internal/gcal"
	httpserver "github.com/campushub/calsync/internal/http"
	"github.com/campushub/calsync/internal/store"
	"github.com/campushub/calsync/internal/syncqueue"
)

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

func main() {
	log.Println("Starting CalSync server...")
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("failed to create db pool: %v", err)
	}
	defer pool.Close()

	if err := store.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	stor := store.New(pool)
	sessions := appauth.NewSessionManager(cfg)

	gcalService := gcal.New(gcal.Config{
		OAuth: &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.RedirectURL(),
			Scopes:       []string{calendarapi.CalendarScope},
			Endpoint:     google.Endpoint,
		},
		RevokeURL:  googleRevokeURL,
		WebhookURL: cfg.WebhookURL(),
		SyncWindow: time.Duration(cfg.Sync.WindowDays) * 24 * time.Hour,
	}, stor)

	queue := syncqueue.New(calendarSyncer{gcalService}, cfg.Sync.Workers, cfg.Sync.QueueCapacity)
	queue.Start(ctx)
	defer queue.Close()

	handler := api.NewHandler(gcalService, queue, stor)
	r := httpserver.NewRouter(cfg, stor, sessions, handler)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// calendarSyncer adapts the sync service to the queue's worker interface.
type calendarSyncer struct {
	svc *gcal.Service
}

func (s calendarSyncer) SyncUserCalendar(ctx context.Context, userID int64, gcalID string) error {
	_, err := s.svc.SyncCalendar(ctx, userID, gcalID)
	return err
}
