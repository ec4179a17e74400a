package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	OCR      OCRConfig
	Rules    RulesConfig
	Model    ModelConfig
	Worker   WorkerConfig
	DataDir  string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr           string
	MaxUploadBytes int64
}

// AuthConfig holds the boundary to the external auth provider. The pipeline
// trusts the resolved subject as an opaque owner key.
type AuthConfig struct {
	UserInfoURL string        // e.g. https://<project>.supabase.co/auth/v1/user
	APIKey      string        // provider api key header, if required
	CacheTTL    time.Duration // how long a resolved subject is cached
	Timeout     time.Duration
}

// OCRConfig holds OCR engine configuration
type OCRConfig struct {
	// Engines is the priority-ordered list of enabled engine names.
	Engines []string
	// CrosscheckEngine, when set, is run in addition to the primary for a
	// consensus agreement check.
	CrosscheckEngine string
	AgreeThreshold   float64
	EngineTimeout    time.Duration

	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string
	PSM           int
	OEM           int

	PaddleVLURL    string
	OCRSpaceURL    string
	OCRSpaceAPIKey string
	VisionAPIKey   string
}

// RulesConfig holds the externally loadable rule tables.
type RulesConfig struct {
	Path  string // JSON rule tables; empty -> embedded defaults
	Watch bool   // hot reload on file change
}

// ModelConfig holds the trained classifier artifact location.
type ModelConfig struct {
	Path         string // JSON artifact; missing file is not an error
	BootstrapCSV string // labeled (text,label) rows for offline training
	HoldoutRatio float64
}

// WorkerConfig holds the job worker pool configuration.
type WorkerConfig struct {
	Count        int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", "./data/resibo.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 12<<20)),
		},
		Auth: AuthConfig{
			UserInfoURL: getEnv("AUTH_USERINFO_URL", ""),
			APIKey:      getEnv("AUTH_API_KEY", ""),
			CacheTTL:    getEnvAsDuration("AUTH_CACHE_TTL", 5*time.Minute),
			Timeout:     getEnvAsDuration("AUTH_TIMEOUT", 10*time.Second),
		},
		OCR: OCRConfig{
			Engines:          getEnvAsList("OCR_ENGINES", []string{"tesseract"}),
			CrosscheckEngine: getEnv("OCR_CROSSCHECK_ENGINE", ""),
			AgreeThreshold:   getEnvAsFloat64("OCR_AGREE_THRESHOLD", 0.82),
			EngineTimeout:    getEnvAsDuration("OCR_ENGINE_TIMEOUT", 60*time.Second),
			Tesseract:        getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang:    getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:      getEnv("TESSDATA_PREFIX", ""),
			PSM:              getEnvAsInt("TESSERACT_PSM", 0),
			OEM:              getEnvAsInt("TESSERACT_OEM", 0),
			PaddleVLURL:      getEnv("PADDLE_VL_URL", ""),
			OCRSpaceURL:      getEnv("OCR_SPACE_URL", "https://api.ocr.space/parse/image"),
			OCRSpaceAPIKey:   getEnv("OCR_SPACE_API_KEY", ""),
			VisionAPIKey:     getEnv("GOOGLE_VISION_API_KEY", ""),
		},
		Rules: RulesConfig{
			Path:  getEnv("RULES_PATH", ""),
			Watch: getEnvAsBool("RULES_WATCH", true),
		},
		Model: ModelConfig{
			Path:         getEnv("MODEL_PATH", "./models/classifier.json"),
			BootstrapCSV: getEnv("BOOTSTRAP_CSV", "./data/bootstrap.csv"),
			HoldoutRatio: getEnvAsFloat64("TRAIN_HOLDOUT_RATIO", 0.2),
		},
		Worker: WorkerConfig{
			Count:        getEnvAsInt("WORKER_COUNT", 2),
			PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
			JobTimeout:   getEnvAsDuration("JOB_TIMEOUT", 2*time.Minute),
		},
		DataDir: getEnv("DATA_DIR", "./data"),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate checks the loaded configuration for unusable values.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if len(c.OCR.Engines) == 0 {
		return NewAppError("CONFIG_ERROR", "OCR_ENGINES must name at least one engine", ErrInvalidInput)
	}
	if c.Worker.Count <= 0 {
		return NewAppError("CONFIG_ERROR", "WORKER_COUNT must be positive", ErrInvalidInput)
	}
	return nil
}
