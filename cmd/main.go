// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"

	"github.com/gather-events/gather/internal/database"
	"github.com/gather-events/gather/internal/handler"
	"github.com/gather-events/gather/internal/ledger"
	"github.com/gather-events/gather/internal/memory"
	"github.com/gather-events/gather/internal/notify"
	"github.com/gather-events/gather/internal/postgres"
	"github.com/gather-events/gather/internal/service"
)

func main() {
	ctx := context.Background()
	database.LoadEnv()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// ── 1. Pick the storage backend ───────────────────────────────────────
	var (
		events service.EventStore
		regs   ledger.Ledger
	)
	switch getEnv("STORE", "postgres") {
	case "memory":
		store := memory.NewStore()
		events, regs = store, store
		log.Info("using in-memory store")
	default:
		pool, err := database.NewPool(ctx)
		if err != nil {
			log.Error("database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			log.Error("migrate", "error", err)
			os.Exit(1)
		}
		events = postgres.NewEventRepository(pool)
		regs = postgres.NewRegistrationLedger(pool)
		log.Info("connected to postgres")
	}

	// ── 2. Pick the notification dispatcher ───────────────────────────────
	dispatcher := newDispatcher(ctx, log)

	// ── 3. Wire up layers ────────────────────────────────────────────────
	regSvc := service.NewRegistrationService(events, regs, dispatcher, log)
	eventSvc := service.NewEventService(events, regSvc)
	h := handler.New(eventSvc, regSvc)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handler.Logger(log))
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Put("/{id}", h.UpdateEvent)
		r.Delete("/{id}", h.DeleteEvent)
		r.Post("/{id}/register", h.Register)
		r.Get("/{id}/registrations", h.ListRegistrations)
		r.Get("/{id}/registrations/{userID}", h.GetUserRegistration)
		r.Get("/{id}/counts", h.GetCounts)
		r.Post("/{id}/reminders", h.SendReminders)
	})
	r.Delete("/registrations/{id}", h.Cancel)
	r.Get("/users/{userID}/registrations", h.ListUserRegistrations)
	r.Post("/users/welcome", h.SendWelcome)

	// ── 5. Start server with graceful shutdown ────────────────────────────
	port := getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Info("server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// newDispatcher picks the notification backend by environment:
// NATS_URL for JetStream, NOTIFY_EMAIL_URL for the email edge
// service, otherwise notifications are just logged.
func newDispatcher(ctx context.Context, log *slog.Logger) notify.Dispatcher {
	if url := os.Getenv("NATS_URL"); url != "" {
		conn, err := nats.Connect(url)
		if err != nil {
			log.Error("nats connect", "error", err)
			os.Exit(1)
		}
		d, err := notify.NewNatsDispatcher(ctx, conn)
		if err != nil {
			log.Error("nats dispatcher", "error", err)
			os.Exit(1)
		}
		log.Info("dispatching notifications via nats")
		return d
	}
	if url := os.Getenv("NOTIFY_EMAIL_URL"); url != "" {
		log.Info("dispatching notifications via email service", "endpoint", url)
		return notify.NewEmailDispatcher(url)
	}
	log.Info("no notification backend configured, logging only")
	return &notify.LogDispatcher{Log: log}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
