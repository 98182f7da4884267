package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Storage     StorageConfig     `yaml:"storage"`
	Upload      UploadConfig      `yaml:"upload"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Eligibility EligibilityConfig `yaml:"eligibility"`
	Copilot     CopilotConfig     `yaml:"copilot"`
	Enrichers   EnricherConfig    `yaml:"enrichers"`
	Jobs        JobsConfig        `yaml:"jobs"`
	WhatsApp    WhatsAppConfig    `yaml:"whatsapp"`
}

type ServerConfig struct {
	Port    string `yaml:"port"`
	Env     string `yaml:"env"`
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig maps a bcrypt-hashed bearer token to an operator identity.
type APIKeyConfig struct {
	OperatorID string `yaml:"operator_id"`
	KeyHash    string `yaml:"key_hash"`
}

type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Root string `yaml:"root"` // local blob store root directory
}

type UploadConfig struct {
	MaxFileBytes  int64 `yaml:"max_file_bytes"`
	MaxCaseBytes  int64 `yaml:"max_case_bytes"`
}

type PipelineConfig struct {
	OCRTimeout      time.Duration `yaml:"ocr_timeout"`
	OCRServiceURL   string        `yaml:"ocr_service_url"` // optional image OCR collaborator
	ClassifierModel string        `yaml:"classifier_model"` // optional model file path
}

type EligibilityConfig struct {
	MaxSkippedFilters int     `yaml:"max_skipped_filters"`
	MinComponents     int     `yaml:"min_components"`
	WeightCIBIL       float64 `yaml:"weight_cibil"`
	WeightTurnover    float64 `yaml:"weight_turnover"`
	WeightVintage     float64 `yaml:"weight_vintage"`
	WeightBanking     float64 `yaml:"weight_banking"`
	WeightFOIR        float64 `yaml:"weight_foir"`
	WeightDocs        float64 `yaml:"weight_docs"`
}

type CopilotConfig struct {
	LLMBaseURL    string        `yaml:"llm_base_url"`
	LLMAPIKey     string        `yaml:"llm_api_key"`
	LLMModel      string        `yaml:"llm_model"`
	LLMTimeout    time.Duration `yaml:"llm_timeout"`
	MemoryWindow  int           `yaml:"memory_window"`
	RatePerMinute int           `yaml:"rate_per_minute"`
}

type EnricherConfig struct {
	GSTINBaseURL    string        `yaml:"gstin_base_url"`
	BankStatsURL    string        `yaml:"bank_stats_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RatePerMinute   int           `yaml:"rate_per_minute"`
}

type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
}

type WhatsAppConfig struct {
	GatewayURL string `yaml:"gateway_url"`
	SessionKey string `yaml:"session_key"`
	Enabled    bool   `yaml:"enabled"`
}

// Load reads the YAML config at path, then applies environment overrides.
// A missing file is not an error: env-only configuration is supported for
// container deployments.
func Load(path string) (*Config, error) {
	// .env is best effort, local development convenience only
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnv()

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database DSN is required (set DATABASE_URL or database.dsn)")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Env: "development"},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30,
		},
		Storage: StorageConfig{Root: "./data/blobs"},
		Upload: UploadConfig{
			MaxFileBytes: 25 << 20,
			MaxCaseBytes: 100 << 20,
		},
		Pipeline: PipelineConfig{OCRTimeout: 120 * time.Second},
		Eligibility: EligibilityConfig{
			MaxSkippedFilters: 2,
			MinComponents:     3,
			WeightCIBIL:       0.25,
			WeightTurnover:    0.20,
			WeightVintage:     0.15,
			WeightBanking:     0.20,
			WeightFOIR:        0.10,
			WeightDocs:        0.10,
		},
		Copilot: CopilotConfig{
			LLMModel:      "gpt-4o-mini",
			LLMTimeout:    30 * time.Second,
			MemoryWindow:  5,
			RatePerMinute: 30,
		},
		Enrichers: EnricherConfig{
			Timeout:       15 * time.Second,
			RatePerMinute: 60,
		},
		Jobs: JobsConfig{
			Workers:      4,
			PollInterval: 2 * time.Second,
			MaxAttempts:  3,
			BackoffBase:  10 * time.Second,
		},
	}
}

func (c *Config) applyEnv() {
	setStr(&c.Server.Port, "PORT")
	setStr(&c.Server.Env, "APP_ENV")
	setStr(&c.Database.DSN, "DATABASE_URL")
	setStr(&c.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Redis.Password, "REDIS_PASSWORD")
	setStr(&c.Storage.Root, "STORAGE_ROOT")
	setStr(&c.Pipeline.OCRServiceURL, "OCR_SERVICE_URL")
	setStr(&c.Pipeline.ClassifierModel, "CLASSIFIER_MODEL")
	setStr(&c.Copilot.LLMBaseURL, "LLM_BASE_URL")
	setStr(&c.Copilot.LLMAPIKey, "LLM_API_KEY")
	setStr(&c.Copilot.LLMModel, "LLM_MODEL")
	setStr(&c.Enrichers.GSTINBaseURL, "GSTIN_BASE_URL")
	setStr(&c.Enrichers.BankStatsURL, "BANK_STATS_URL")
	setStr(&c.WhatsApp.GatewayURL, "WHATSAPP_GATEWAY_URL")
	setStr(&c.WhatsApp.SessionKey, "WHATSAPP_SESSION_KEY")
	if v := os.Getenv("WHATSAPP_ENABLED"); v != "" {
		c.WhatsApp.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("JOB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Jobs.Workers = n
		}
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
