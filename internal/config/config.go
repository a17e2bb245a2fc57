package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the exam API service.
type Config struct {
	AppName    string
	AppEnv     string
	AppPort    string
	AppBaseURL string

	DatabaseURL string
	RedisURL    string

	// TokenSecret signs student magic-link tokens, AdminJWTSecret signs the
	// dashboard bearer tokens. They are deliberately separate keys.
	TokenSecret    string
	AdminJWTSecret string
	TokenTTL       time.Duration
	SlotPrepWindow time.Duration

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string

	OpenAIAPIKey string
	ScoringModel string
	WhisperModel string

	SendGridAPIKey  string
	FromEmail       string
	FromName        string
	InstructorEmail string

	SessionLockTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ORALEX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Oralex API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.base_url", "http://localhost:5173")
	v.SetDefault("token.ttl", "168h")
	v.SetDefault("slot.prep_window", "15m")
	v.SetDefault("cloudinary.folder", "oralex/recordings")
	v.SetDefault("scoring.model", "gpt-4o-mini")
	v.SetDefault("whisper.model", "whisper-1")
	v.SetDefault("session.lock_ttl", "2m")

	tokenTTL, err := time.ParseDuration(v.GetString("token.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid token ttl: %w", err)
	}

	prepWindow, err := time.ParseDuration(v.GetString("slot.prep_window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid slot prep window: %w", err)
	}

	lockTTL, err := time.ParseDuration(v.GetString("session.lock_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid session lock ttl: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		AppBaseURL:          strings.TrimRight(v.GetString("app.base_url"), "/"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		TokenSecret:         v.GetString("token.secret"),
		AdminJWTSecret:      v.GetString("admin.jwt_secret"),
		TokenTTL:            tokenTTL,
		SlotPrepWindow:      prepWindow,
		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    v.GetString("cloudinary.folder"),
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		ScoringModel:        v.GetString("scoring.model"),
		WhisperModel:        v.GetString("whisper.model"),
		SendGridAPIKey:      v.GetString("sendgrid_api_key"),
		FromEmail:           v.GetString("mail.from_email"),
		FromName:            v.GetString("mail.from_name"),
		InstructorEmail:     v.GetString("mail.instructor_email"),
		SessionLockTTL:      lockTTL,
	}

	if cfg.TokenSecret == "" || cfg.AdminJWTSecret == "" {
		return Config{}, fmt.Errorf("token and admin jwt secrets must be provided")
	}

	if cfg.SlotPrepWindow <= 0 {
		cfg.SlotPrepWindow = 15 * time.Minute
	}

	return cfg, nil
}
