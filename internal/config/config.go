package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	DBConn   string
	LogLevel string

	// SMTP settings for the notification sender
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	// External insight provider for monthly reports
	InsightsURL string

	// Cron specs for the periodic triggers
	RecurringCron     string
	BudgetAlertCron   string
	MonthlyReportCron string

	// Dispatcher tuning
	WorkerCount        int
	MaxRetries         int
	RetryBaseDelay     time.Duration
	OwnerRatePerMinute int
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		DBConn:   getEnv("DB_CONN", "host=localhost port=5432 user=finance password=finance dbname=finance sslmode=disable"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "noreply@finance-service.local"),

		InsightsURL: getEnv("INSIGHTS_URL", ""),

		RecurringCron:     getEnv("RECURRING_CRON", "0 0 * * *"),
		BudgetAlertCron:   getEnv("BUDGET_ALERT_CRON", "0 */6 * * *"),
		MonthlyReportCron: getEnv("MONTHLY_REPORT_CRON", "0 0 1 * *"),

		WorkerCount:        getEnvInt("WORKER_COUNT", 5),
		MaxRetries:         getEnvInt("MAX_RETRIES", 2),
		RetryBaseDelay:     getEnvDuration("RETRY_BASE_DELAY", time.Second),
		OwnerRatePerMinute: getEnvInt("OWNER_RATE_PER_MINUTE", 10),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.WorkerCount <= 0 {
		return nil, fmt.Errorf("WORKER_COUNT must be positive")
	}
	if cfg.OwnerRatePerMinute <= 0 {
		return nil, fmt.Errorf("OWNER_RATE_PER_MINUTE must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}
