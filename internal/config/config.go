package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DBUrl              string
	RedisURL           string
	JWTAccessSecret    string
	JWTRefreshSecret   string
	RTCAppID           string
	RTCAppCertificate  string
	FCMServerKey       string
	SupabaseURL        string
	SupabaseBucket     string
	SupabaseServiceKey string
	AppEnv             string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	accessSecret, exists := os.LookupEnv("JWT_ACCESS_TOKEN_SECRET")
	if !exists || accessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_TOKEN_SECRET is required")
	}
	refreshSecret, exists := os.LookupEnv("JWT_REFRESH_TOKEN_SECRET")
	if !exists || refreshSecret == "" {
		return nil, fmt.Errorf("JWT_REFRESH_TOKEN_SECRET is required")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DBUrl:              getEnv("DB_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTAccessSecret:    accessSecret,
		JWTRefreshSecret:   refreshSecret,
		RTCAppID:           getEnv("RTC_APP_ID", ""),
		RTCAppCertificate:  getEnv("RTC_APP_CERTIFICATE", ""),
		FCMServerKey:       getEnv("FCM_SERVER_KEY", ""),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		AppEnv:             normalizeEnv(getEnv("APP_ENV", "production")),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
