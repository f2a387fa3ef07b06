package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Clinic and conversation
	ClinicName          string
	PreregistrationURL  string
	OnlineBookingURL    string
	BookingTimeSlots    []string
	CostTablePath       string
	CollaboratorTimeout time.Duration
	SessionIdleTTL      time.Duration

	// Language model
	LLMProvider    string
	GeminiAPIKey   string
	GeminiModel    string
	BedrockModelID string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Appointments
	AppointmentStore  string
	DatabaseURL       string
	AppointmentsTable string

	// Conversation log
	ConversationLog         []string
	ConversationLogQueueURL string
	ConversationLogTTL      time.Duration
	ConversationLogQueue    int
	RedisAddr               string
	RedisPassword           string
	RedisTLS                bool

	// Uploads
	UploadBackend          string
	UploadDir              string
	UploadBucket           string
	UploadPublicBaseURL    string
	UploadMaxImageBytes    int64
	UploadMaxDocumentBytes int64

	// Booking confirmation email
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment wins.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "5050"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		ClinicName:          getEnv("CLINIC_NAME", "Dental Office"),
		PreregistrationURL:  getEnv("PREREGISTRATION_URL", ""),
		OnlineBookingURL:    getEnv("ONLINE_BOOKING_URL", ""),
		BookingTimeSlots:    getEnvAsList("BOOKING_TIME_SLOTS", nil),
		CostTablePath:       getEnv("COST_TABLE_PATH", ""),
		CollaboratorTimeout: getEnvAsDuration("COLLABORATOR_TIMEOUT", 20*time.Second),
		SessionIdleTTL:      getEnvAsDuration("SESSION_IDLE_TTL", 2*time.Hour),

		LLMProvider:    lower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AppointmentStore:  lower(getEnv("APPOINTMENT_STORE", "memory")),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		AppointmentsTable: getEnv("APPOINTMENTS_TABLE", "dental_appointments"),

		ConversationLog:         lowerAll(getEnvAsList("CONVERSATION_LOG", nil)),
		ConversationLogQueueURL: getEnv("CONVERSATION_LOG_QUEUE_URL", ""),
		ConversationLogTTL:      getEnvAsDuration("CONVERSATION_LOG_TTL", 7*24*time.Hour),
		ConversationLogQueue:    getEnvAsInt("CONVERSATION_LOG_QUEUE_SIZE", 256),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		RedisTLS:                getEnvAsBool("REDIS_TLS", false),

		UploadBackend:          lower(getEnv("UPLOAD_BACKEND", "disk")),
		UploadDir:              getEnv("UPLOAD_DIR", "uploads"),
		UploadBucket:           getEnv("UPLOAD_BUCKET", ""),
		UploadPublicBaseURL:    getEnv("UPLOAD_PUBLIC_BASE_URL", "/uploads"),
		UploadMaxImageBytes:    int64(getEnvAsInt("UPLOAD_MAX_IMAGE_BYTES", 5<<20)),
		UploadMaxDocumentBytes: int64(getEnvAsInt("UPLOAD_MAX_DOCUMENT_BYTES", 5<<20)),

		EmailProvider:     lower(getEnv("EMAIL_PROVIDER", "stub")),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", ""),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// UsesConversationLog reports whether sink is enabled in CONVERSATION_LOG.
func (c *Config) UsesConversationLog(sink string) bool {
	for _, s := range c.ConversationLog {
		if s == sink {
			return true
		}
	}
	return false
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lowerAll(values []string) []string {
	for i, v := range values {
		values[i] = lower(v)
	}
	return values
}
