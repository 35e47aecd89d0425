package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bromanko/michael/internal/booking"
	"github.com/bromanko/michael/internal/calendarview"
	"github.com/bromanko/michael/internal/caldav"
	"github.com/bromanko/michael/internal/config"
	"github.com/bromanko/michael/internal/database"
	"github.com/bromanko/michael/internal/handlers"
	"github.com/bromanko/michael/internal/middleware"
	"github.com/bromanko/michael/internal/models"
	"github.com/bromanko/michael/internal/notify"
	"github.com/bromanko/michael/internal/parser"
	"github.com/bromanko/michael/internal/repository"
	"github.com/bromanko/michael/internal/session"

	_ "time/tzdata"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	hostLoc, err := time.LoadLocation(cfg.Server.HostTimezone)
	if err != nil {
		log.Fatalf("Invalid MICHAEL_HOST_TIMEZONE: %v", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	repos := repository.New(db)
	sessions := session.New(repos.Sessions)
	bookingSvc := booking.New(repos, booking.SystemClock, hostLoc)
	calendarViewSvc := calendarview.New(repos, hostLoc)
	parserClient := parser.New(cfg.Parser.GeminiAPIKey)

	var notifier *notify.Notifier
	if cfg.SMTP != nil {
		notifier = notify.New(cfg.SMTP)
	}

	syncConfigs := make([]caldav.ProviderConfig, 0, len(cfg.CalDAV))
	for _, p := range cfg.CalDAV {
		syncConfigs = append(syncConfigs, caldav.ProviderConfig{
			Provider: models.CalendarProvider(p.Name),
			BaseURL:  p.URL,
			Creds:    caldav.Credentials{Username: p.Username, Password: p.Password},
		})
	}
	syncSvc := caldav.NewSyncService(repos, hostLoc, syncConfigs)

	ctx, cancelSync := context.WithCancel(context.Background())
	syncSvc.Start(ctx)
	defer func() {
		cancelSync()
		syncSvc.Stop()
	}()

	deps := &handlers.Deps{
		Repos:         repos,
		Booking:       bookingSvc,
		Sessions:      sessions,
		CalendarView:  calendarViewSvc,
		Sync:          syncSvc,
		Parser:        parserClient,
		Notifier:      notifier,
		HostLocation:  hostLoc,
		Clock:         booking.SystemClock,
		AdminPassword: cfg.Admin.Password,
		SecureCookies: cfg.Env != "development",
		Logger:        log.Default(),
	}

	authHandlers, err := handlers.NewAuthHandlers(deps)
	if err != nil {
		log.Fatalf("Failed to initialize auth handlers: %v", err)
	}
	publicHandlers := handlers.NewPublicHandlers(deps)
	adminHandlers := handlers.NewAdminHandlers(deps)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/parse", publicHandlers.Parse)
	mux.HandleFunc("POST /api/slots", publicHandlers.Slots)
	mux.HandleFunc("POST /api/book", publicHandlers.Book)
	mux.HandleFunc("POST /api/bookings/{id}/cancel", publicHandlers.CancelByToken)

	mux.HandleFunc("POST /api/admin/login", authHandlers.Login)

	admin := http.NewServeMux()
	admin.HandleFunc("POST /api/admin/logout", authHandlers.Logout)
	admin.HandleFunc("GET /api/admin/session", authHandlers.Session)
	admin.HandleFunc("GET /api/admin/bookings", adminHandlers.ListBookings)
	admin.HandleFunc("GET /api/admin/bookings/{id}", adminHandlers.GetBooking)
	admin.HandleFunc("POST /api/admin/bookings/{id}/cancel", adminHandlers.CancelBooking)
	admin.HandleFunc("GET /api/admin/dashboard", adminHandlers.Dashboard)
	admin.HandleFunc("GET /api/admin/calendars", adminHandlers.ListCalendars)
	admin.HandleFunc("GET /api/admin/calendars/{id}/history", adminHandlers.CalendarHistory)
	admin.HandleFunc("POST /api/admin/calendars/{id}/sync", adminHandlers.SyncCalendar)
	admin.HandleFunc("GET /api/admin/availability", adminHandlers.GetAvailability)
	admin.HandleFunc("PUT /api/admin/availability", adminHandlers.PutAvailability)
	admin.HandleFunc("GET /api/admin/settings", adminHandlers.GetSettings)
	admin.HandleFunc("PUT /api/admin/settings", adminHandlers.PutSettings)
	admin.HandleFunc("GET /api/admin/calendar-view", adminHandlers.CalendarView)

	mux.Handle("/api/admin/", middleware.RequireAuth(sessions, deps.SecureCookies)(admin))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Printf("Error writing health check response: %v", err)
		}
	})

	handler := middleware.Chain(
		mux,
		middleware.Logger,
		middleware.Recover,
		middleware.RequestID,
	)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
