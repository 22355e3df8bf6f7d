package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment.
type Config struct {
	DatabaseURL   string
	Port          string
	BotToken      string
	Timezone      string
	PublicBaseURL string
	ClinicName    string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	SchedulerWorkers int
	SchedulerGrace   time.Duration

	loc *time.Location
}

// Load reads .env if present and builds the runtime configuration.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Port:              getEnvDefault("PORT", "3000"),
		BotToken:          os.Getenv("BOT_TOKEN"),
		Timezone:          getEnvDefault("TZ", "Asia/Riyadh"),
		PublicBaseURL:     os.Getenv("PUBLIC_BASE_URL"),
		ClinicName:        getEnvDefault("CLINIC_NAME", "Al Shifa Clinic"),
		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail: os.Getenv("SENDGRID_NOTIFICATIONS_FROM_EMAIL"),
		SendGridFromName:  getEnvDefault("SENDGRID_FROM_NAME", "Clinic Reception"),
		SchedulerWorkers:  getEnvInt("SCHEDULER_WORKERS", 4),
		SchedulerGrace:    getEnvDuration("SCHEDULER_GRACE", time.Hour),
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	cfg.loc = loc
	return cfg, nil
}

// Location returns the clinic's wall-clock timezone.
func (c *Config) Location() *time.Location {
	return c.loc
}

func getEnvDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
		log.Printf("Warning: invalid %s=%q, using %d", key, value, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
		log.Printf("Warning: invalid %s=%q, using %s", key, value, fallback)
	}
	return fallback
}
