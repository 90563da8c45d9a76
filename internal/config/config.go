package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	AuthCookieSecure bool
	AuthJWTSecret    string
	AuthSessionTTL   time.Duration

	// CORSAllowedOrigins lists admin UI origins allowed to call the API with credentials.
	CORSAllowedOrigins []string

	AdminEmail        string
	AdminPasswordHash string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration

	SlackWebhookURL string
	SlackChannel    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ReferralStatsCacheTTL time.Duration

	SchedulerEnabled  bool
	SchedulerInterval time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	return Config{
		AppName:          getenv("APP_SERVICE", "futorumeshi"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,
		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthSessionTTL:   getenvDuration("AUTH_SESSION_TTL", 12*time.Hour),

		CORSAllowedOrigins: getenvList("CORS_ALLOWED_ORIGINS"),

		AdminEmail:        strings.ToLower(strings.TrimSpace(getenv("ADMIN_EMAIL", ""))),
		AdminPasswordHash: strings.TrimSpace(getenv("ADMIN_PASSWORD_HASH", "")),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "futorumeshi"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		StripeWebhookSecret:    strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		StripeWebhookTolerance: getenvDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),

		SlackWebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
		SlackChannel:    getenv("SLACK_CHANNEL", "#orders"),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		ReferralStatsCacheTTL: getenvDuration("REFERRAL_STATS_CACHE_TTL", time.Minute),

		SchedulerEnabled:  getenvBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: getenvDuration("SCHEDULER_INTERVAL", time.Minute),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
