package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// EngineConfig holds the tolerances and thresholds for validation and
// reconciliation. All values have documented defaults; out-of-domain
// values are rejected at load time, never mid-evaluation.
type EngineConfig struct {
	// AmountTolerance is the max absolute difference (currency units) for
	// two amounts to reconcile. Default 0.01.
	AmountTolerance float64 `yaml:"amount_tolerance" mapstructure:"amount_tolerance"`

	// MathCheckTolerance is the allowed rounding slack (currency units)
	// for subtotal + tax == total. Default 0.02.
	MathCheckTolerance float64 `yaml:"math_check_tolerance" mapstructure:"math_check_tolerance"`

	// TextSimilarityThreshold is the minimum similarity ratio for text
	// fields such as vendor names. Default 0.8.
	TextSimilarityThreshold float64 `yaml:"text_similarity_threshold" mapstructure:"text_similarity_threshold"`

	// TaxRateWarningThreshold flags implausible tax/total ratios for
	// review. Default 0.30.
	TaxRateWarningThreshold float64 `yaml:"tax_rate_warning_threshold" mapstructure:"tax_rate_warning_threshold"`

	// LargeAmountThreshold flags unusually large totals as an anomaly
	// heuristic. Default 1,000,000.
	LargeAmountThreshold float64 `yaml:"large_amount_threshold" mapstructure:"large_amount_threshold"`
}

// Validate rejects configuration values outside their valid domain.
func (c EngineConfig) Validate() error {
	if c.AmountTolerance < 0 {
		return eris.Errorf("config: amount_tolerance must be >= 0, got %v", c.AmountTolerance)
	}
	if c.MathCheckTolerance < 0 {
		return eris.Errorf("config: math_check_tolerance must be >= 0, got %v", c.MathCheckTolerance)
	}
	if c.TextSimilarityThreshold < 0 || c.TextSimilarityThreshold > 1 {
		return eris.Errorf("config: text_similarity_threshold must be in [0,1], got %v", c.TextSimilarityThreshold)
	}
	if c.TaxRateWarningThreshold <= 0 {
		return eris.Errorf("config: tax_rate_warning_threshold must be > 0, got %v", c.TaxRateWarningThreshold)
	}
	if c.LargeAmountThreshold <= 0 {
		return eris.Errorf("config: large_amount_threshold must be > 0, got %v", c.LargeAmountThreshold)
	}
	return nil
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ExtractConfig configures LLM field extraction.
type ExtractConfig struct {
	// DefaultConfidence is assigned to extracted fields when the model
	// reports no per-field confidence. Default 0.95.
	DefaultConfidence float64 `yaml:"default_confidence" mapstructure:"default_confidence"`

	// MaxRefinements caps corrective re-extraction passes after failed
	// validation rules. Default 1; 0 disables refinement.
	MaxRefinements int `yaml:"max_refinements" mapstructure:"max_refinements"`

	// RequestsPerSecond rate-limits API calls. Default 2.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`

	MaxTokens int64 `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// IngestConfig configures document reading.
type IngestConfig struct {
	MaxFileSize int64 `yaml:"max_file_size" mapstructure:"max_file_size"`
}

// OCRConfig configures text extraction from PDFs and images.
type OCRConfig struct {
	// Provider selects the OCR backend: "local" shells out to
	// pdftotext and tesseract, "mistral" uses the Mistral OCR API.
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	TesseractPath string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures background health checks and webhook alerts.
type MonitoringConfig struct {
	// WebhookURL receives alert payloads as JSON POSTs. Empty disables
	// alert delivery; checks still run and log.
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`

	// CheckIntervalSecs is the period between alert checks. Default 300.
	CheckIntervalSecs int `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`

	// FailureRateThreshold triggers an alert when the failed fraction of
	// finished invoices exceeds it. Default 0.25.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`

	// MinAverageConfidence triggers an alert when the mean confidence of
	// completed invoices drops below it. Default 0.5.
	MinAverageConfidence float64 `yaml:"min_average_confidence" mapstructure:"min_average_confidence"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("engine.amount_tolerance", 0.01)
	v.SetDefault("engine.math_check_tolerance", 0.02)
	v.SetDefault("engine.text_similarity_threshold", 0.8)
	v.SetDefault("engine.tax_rate_warning_threshold", 0.30)
	v.SetDefault("engine.large_amount_threshold", 1_000_000)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("extract.default_confidence", 0.95)
	v.SetDefault("extract.max_refinements", 1)
	v.SetDefault("extract.requests_per_second", 2)
	v.SetDefault("extract.max_tokens", 2048)
	v.SetDefault("ingest.max_file_size", 50*1024*1024)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "invoices.db")
	v.SetDefault("batch.max_concurrent", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_average_confidence", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
