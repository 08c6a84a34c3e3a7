package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

// Result store backends.
const (
	ResultStorePostgres = "postgres"
	ResultStoreMariaDB  = "mariadb"
	ResultStoreMemory   = "memory"
)

// Object storage backends.
const (
	StorageHTTP  = "http"
	StorageLocal = "local"
)

type Config struct {
	Backend     BackendConfig
	Storage     StorageConfig
	Analyzer    AnalyzerConfig
	OpenAI      OpenAIConfig
	Gemini      GeminiConfig
	Ollama      OllamaConfig
	LlamaCpp    LlamaCppConfig
	Database    DatabaseConfig
	Preferences PreferencesConfig
	Scan        ScanConfig
	Web         WebConfig
	Log         LogConfig
	Prices      PricesConfig
}

// BackendConfig points at the hosted backend that provides identity and object storage.
type BackendConfig struct {
	URL    string
	APIKey string
}

type StorageConfig struct {
	Backend   string // "http" (default) or "local"
	Bucket    string // defaults to face-scans
	Dir       string // root directory for the local backend
	PublicURL string // base URL the local directory is served from
}

type AnalyzerConfig struct {
	Name string // placeholder (default), openai, gemini, ollama, llamacpp
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

type LlamaCppConfig struct {
	URL   string // defaults to http://localhost:8081
	Model string // defaults to llava
}

type DatabaseConfig struct {
	Store        string // postgres (default), mariadb, memory
	URL          string // PostgreSQL connection URL
	MariaDBURL   string // MariaDB DSN (e.g., scan:scan@tcp(mariadb:3306)/scans?parseTime=true)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type PreferencesConfig struct {
	Path string // SQLite file, defaults to face-scan.db
}

type ScanConfig struct {
	DefaultUserID   string        // user id recorded when no session user is known
	PipelineTimeout time.Duration // upper bound for upload + analyze + persist
	IdleTimeout     time.Duration // how long an unused web controller is kept
}

type WebConfig struct {
	Host            string   // defaults to 0.0.0.0
	Port            int      // defaults to 8080
	SessionSecret   string   // HMAC key for session cookies
	Origins         []string // CORS origins allowed besides localhost
	CleanupSchedule string   // cron schedule of the expired session sweep
}

type LogConfig struct {
	Level       int  // logr verbosity, 0 = info, 1 = debug, 2 = trace
	Development bool // human readable console output
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envDuration reads a Go duration string (e.g. "90s") from the environment.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma separated list, skipping empty entries.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// Embedded file, so this only fails on a broken build.
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	return &Config{
		Backend: BackendConfig{
			URL:    os.Getenv("BACKEND_URL"),
			APIKey: os.Getenv("BACKEND_API_KEY"),
		},
		Storage: StorageConfig{
			Backend:   envString("STORAGE_BACKEND", StorageHTTP),
			Bucket:    envString("STORAGE_BUCKET", "face-scans"),
			Dir:       envString("STORAGE_DIR", "uploads"),
			PublicURL: os.Getenv("STORAGE_PUBLIC_URL"),
		},
		Analyzer: AnalyzerConfig{
			Name: envString("ANALYZER", "placeholder"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		LlamaCpp: LlamaCppConfig{
			URL:   os.Getenv("LLAMACPP_URL"),
			Model: os.Getenv("LLAMACPP_MODEL"),
		},
		Database: DatabaseConfig{
			Store:        envString("RESULT_STORE", ResultStorePostgres),
			URL:          os.Getenv("DATABASE_URL"),
			MariaDBURL:   os.Getenv("MARIADB_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Preferences: PreferencesConfig{
			Path: envString("PREFERENCES_PATH", "face-scan.db"),
		},
		Scan: ScanConfig{
			DefaultUserID:   envString("SCAN_DEFAULT_USER", "current_user"),
			PipelineTimeout: envDuration("SCAN_PIPELINE_TIMEOUT", 2*time.Minute),
			IdleTimeout:     envDuration("SCAN_IDLE_TIMEOUT", 30*time.Minute),
		},
		Web: WebConfig{
			Host:            envString("WEB_HOST", "0.0.0.0"),
			Port:            envInt("WEB_PORT", 8080),
			SessionSecret:   os.Getenv("WEB_SESSION_SECRET"),
			Origins:         envList("WEB_ALLOWED_ORIGINS"),
			CleanupSchedule: envString("WEB_SESSION_CLEANUP_SCHEDULE", "*/15 * * * *"),
		},
		Log: LogConfig{
			Level:       envInt("LOG_LEVEL", 0),
			Development: envBool("LOG_DEVELOPMENT"),
		},
		Prices: prices,
	}
}

// GetModelPricing returns pricing for a specific model, or zero pricing when unknown.
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	return ModelPricing{}
}
