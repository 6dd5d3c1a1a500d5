package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/validator"
	"github.com/joho/godotenv"
)

// Config holds the companion server settings
type Config struct {
	Port               string        `validate:"required,numeric"`
	Environment        string        `validate:"oneof=development production test"`
	BackendURL         string        `validate:"omitempty,url"`
	BackendTimeout     time.Duration `validate:"min=1ms"`
	AnswerDuration     int           `validate:"min=1,max=3600"`
	ScannerFPS         int           `validate:"min=1,max=60"`
	ScannerRegion      int           `validate:"min=0,max=4096"`
	AllowedOrigins     []string      `validate:"min=1"`
	SessionIdleTimeout time.Duration `validate:"min=0"`
	Events             EventConfig
}

// LoadConfig reads an optional .env file and the process environment. A
// missing backend address is not an error here; sessions report it on use.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		BackendURL:         getEnv("BACKEND_URL", getEnv("GOOGLE_SCRIPT_URL", "")),
		BackendTimeout:     getDuration("BACKEND_TIMEOUT", 15*time.Second),
		AnswerDuration:     getInt("ANSWER_DURATION_SECONDS", 40),
		ScannerFPS:         getInt("SCANNER_FPS", 10),
		ScannerRegion:      getInt("SCANNER_REGION", 250),
		AllowedOrigins:     getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		Events:             LoadEventConfig(),
	}

	if err := validator.New().ValidateStruct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SheetConfig holds the settings of the reference sheet backend
type SheetConfig struct {
	Port         string        `validate:"required,numeric"`
	Environment  string        `validate:"oneof=development production test"`
	Store        string        `validate:"oneof=xlsx postgres"`
	WorkbookPath string        `validate:"required_if=Store xlsx"`
	DatabaseURL  string        `validate:"required_if=Store postgres"`
	RedisURL     string        `validate:"omitempty,url"`
	CacheTTL     time.Duration `validate:"min=0"`
	PublicURL    string        `validate:"omitempty,url"`
}

func LoadSheetConfig() (*SheetConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &SheetConfig{
		Port:         getEnv("SHEET_PORT", "8090"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		Store:        getEnv("SHEET_STORE", "xlsx"),
		WorkbookPath: getEnv("SHEET_WORKBOOK", "soal.xlsx"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),
		CacheTTL:     getDuration("CACHE_TTL", 5*time.Minute),
		PublicURL:    getEnv("SHEET_PUBLIC_URL", ""),
	}

	if err := validator.New().ValidateStruct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
