package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// VenueTimezone is the IANA zone calendar dates and HH:MM slots are interpreted in.
	VenueTimezone string

	StaffJWTSecret     string
	CORSAllowedOrigins []string

	// Booking policy
	MinBookingNotice   time.Duration
	AdvanceBookingDays int

	// Reminder worker
	ReminderPollInterval time.Duration
	ReminderBatchSize    int
	ReminderMaxAttempts  int

	// AI assistant
	AssistantLanguage string
	GeminiAPIKey      string
	GeminiModelID     string
	BedrockModelID    string
	AssistantTimeout  time.Duration

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	StaffNotifyEmail  string

	// Transcript archive
	TranscriptArchiveBucket string

	// Web chat widget
	WidgetScriptPath string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		VenueTimezone: getEnv("VENUE_TIMEZONE", "Asia/Ho_Chi_Minh"),

		StaffJWTSecret:     getEnv("STAFF_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		MinBookingNotice:   getEnvAsDuration("MIN_BOOKING_NOTICE", 30*time.Minute),
		AdvanceBookingDays: getEnvAsInt("ADVANCE_BOOKING_DAYS", 60),

		ReminderPollInterval: getEnvAsDuration("REMINDER_POLL_INTERVAL", time.Minute),
		ReminderBatchSize:    getEnvAsInt("REMINDER_BATCH_SIZE", 50),
		ReminderMaxAttempts:  getEnvAsInt("REMINDER_MAX_ATTEMPTS", 3),

		AssistantLanguage: getEnv("ASSISTANT_LANGUAGE", "vi"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:     getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID:    getEnv("BEDROCK_MODEL_ID", ""),
		AssistantTimeout:  getEnvAsDuration("ASSISTANT_TIMEOUT", 20*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Support Desk"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		StaffNotifyEmail:  getEnv("STAFF_NOTIFY_EMAIL", ""),

		TranscriptArchiveBucket: getEnv("TRANSCRIPT_ARCHIVE_BUCKET", ""),

		WidgetScriptPath: getEnv("WIDGET_SCRIPT_PATH", ""),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
