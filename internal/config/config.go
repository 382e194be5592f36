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
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Clinic identity
	Timezone         string
	ClinicName       string
	BotName          string
	ClinicPhone      string
	ClinicAddress    string
	AttendantAddress string
	AttendantEmail   string

	// Evolution messaging gateway
	EvolutionAPIURL       string
	EvolutionAPIKey       string
	EvolutionInstance     string
	EvolutionWebhookToken string
	GatewayTimeout        time.Duration

	// Model services
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string
	LLMMaxRounds        int
	LLMHistoryWindow    int
	LLMMaxTokens        int
	LLMTemperature      float64
	LLMTimeout          time.Duration

	// Google Calendar
	GoogleCredentialsJSON string
	GoogleCredentialsFile string
	CalendarTimeout       time.Duration

	// Intake
	DebounceWindow time.Duration
	DedupeTTL      time.Duration

	// Turn processing
	UseMemoryQueue bool
	TurnQueueURL   string
	TurnJobsTable  string
	WorkerCount    int

	ReminderInterval time.Duration

	// Email alerts
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	AdminJWTSecret string
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is honored when present; real environment values win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		Timezone:         getEnv("TIMEZONE", "America/Sao_Paulo"),
		ClinicName:       getEnv("CLINIC_NAME", "Clinic"),
		BotName:          getEnv("BOT_NAME", "Sofia"),
		ClinicPhone:      getEnv("CLINIC_PHONE", ""),
		ClinicAddress:    getEnv("CLINIC_ADDRESS", ""),
		AttendantAddress: digitsOnly(getEnv("ATTENDANT_ADDRESS", "")),
		AttendantEmail:   getEnv("ATTENDANT_EMAIL", ""),

		EvolutionAPIURL:       strings.TrimRight(getEnv("EVOLUTION_API_URL", ""), "/"),
		EvolutionAPIKey:       getEnv("EVOLUTION_API_KEY", ""),
		EvolutionInstance:     getEnv("EVOLUTION_INSTANCE", ""),
		EvolutionWebhookToken: getEnv("EVOLUTION_WEBHOOK_TOKEN", ""),
		GatewayTimeout:        getEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMMaxRounds:        getEnvAsInt("LLM_MAX_ROUNDS", 10),
		LLMHistoryWindow:    getEnvAsInt("LLM_HISTORY_WINDOW", 20),
		LLMMaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),

		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		CalendarTimeout:       getEnvAsDuration("CALENDAR_TIMEOUT", 15*time.Second),

		DebounceWindow: getEnvAsDuration("DEBOUNCE_WINDOW", 10*time.Second),
		DedupeTTL:      getEnvAsDuration("DEDUPE_TTL", 5*time.Minute),

		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", true),
		TurnQueueURL:   getEnv("TURN_QUEUE_URL", ""),
		TurnJobsTable:  getEnv("TURN_JOBS_TABLE", ""),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		ReminderInterval: getEnvAsDuration("REMINDER_INTERVAL", 5*time.Minute),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", ""),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),
	}
}

// Location resolves the clinic time zone, falling back to UTC when the
// configured name is unknown to the host.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
