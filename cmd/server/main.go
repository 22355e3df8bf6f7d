package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"clinicflow/internal/config"
	"clinicflow/internal/database"
	"clinicflow/internal/handlers"
	"clinicflow/internal/models"
	"clinicflow/internal/services"
	"clinicflow/internal/store"

	"github.com/coder/quartz"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize database
	if err := database.InitDB(cfg.DatabaseURL); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	st := store.New(database.GetDB())

	clock := quartz.NewReal()
	loc := cfg.Location()

	// Notification channels: Telegram when a bot token is configured,
	// SendGrid email as the fallback for unlinked patients.
	var telegram *services.TelegramNotifier
	var notifier services.Notifier = services.NoopNotifier{}
	if cfg.BotToken != "" {
		telegram, err = services.NewTelegramNotifier(cfg.BotToken)
		if err != nil {
			log.Fatal("Failed to connect Telegram bot:", err)
		}
		notifier = services.NewCompositeNotifier(
			telegram,
			services.NewEmailNotifier(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName),
		)
	}

	demand := services.NewDemandEngine(st, clock, loc)
	catalog := services.NewMessageCatalog(st, rand.New(rand.NewSource(time.Now().UnixNano())))
	scheduler := services.NewScheduler(st, clock, cfg.SchedulerWorkers, cfg.SchedulerGrace)
	booking := services.NewBookingCoordinator(st, demand, catalog, notifier, scheduler, clock, loc, cfg.ClinicName)
	attendance := services.NewAttendanceService(st, demand, notifier, clock, loc, cfg.PublicBaseURL)
	maintenance := services.NewMaintenance(st, demand, scheduler, clock, loc)

	scheduler.Register(models.JobReminderFire, booking.HandleReminderFire)
	scheduler.Register(models.JobAutoMissCheck, attendance.HandleAutoMiss)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Replay jobs persisted before the last shutdown, then start ticking.
	if err := scheduler.OnBoot(); err != nil {
		log.Fatal("Failed to rehydrate scheduler jobs:", err)
	}
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	if err := maintenance.Start(); err != nil {
		log.Fatal("Failed to start maintenance cron:", err)
	}
	defer maintenance.Stop()

	// Initialize Gin router
	router := gin.Default()
	router.SetTrustedProxies([]string{"127.0.0.1"})
	router.Use(cors.Default())

	h := handlers.New(st, booking, attendance, demand, telegram, loc)

	// Basic routes
	router.GET("/", h.HomeHandler)
	router.GET("/health", h.HealthHandler)

	// Appointment routes
	router.POST("/appointments/add", h.AddAppointments)
	router.DELETE("/appointments/delete/:id", h.DeleteAppointment)
	router.GET("/appointments/available", h.GetAvailableAppointments)
	router.GET("/appointments/booked", h.GetBookedAppointments)
	router.GET("/appointments/all", h.GetAllAppointments)
	router.POST("/appointments/book/:id", h.BookAppointment)
	router.POST("/appointments/status/:id", h.SetAppointmentStatus)

	// User routes
	router.GET("/users", h.GetUsers)
	router.GET("/users/:userName", h.GetUser)
	router.POST("/users/register", h.RegisterUser)
	router.POST("/admin/set-category", h.SetCategory)

	// High-demand admin routes
	router.POST("/high-demand/setup", h.SetupHighDemand)
	router.GET("/high-demand", h.GetHighDemand)

	// Messenger webhook
	router.POST("/webhook", h.Webhook)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s...", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error: HTTP shutdown: %v", err)
	}

	// Run returns after in-flight jobs persist their outcome; anything
	// still pending replays on the next boot.
	<-schedulerDone
	log.Println("Scheduler drained, goodbye")
}
