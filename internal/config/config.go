package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Storage        StorageConfig        `mapstructure:"storage"`
	LLM            LLMConfig            `mapstructure:"llm"`
	OCR            OCRConfig            `mapstructure:"ocr"`
	PDF            PDFConfig            `mapstructure:"pdf"`
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	Classification ClassificationConfig `mapstructure:"classification"`
	Log            LogConfig            `mapstructure:"log"`
	JWTSecret      string               `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files, or ":memory:"
	URL      string `mapstructure:"url"`  // overrides the individual postgres settings when set
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		if d.Path == ":memory:" {
			return ":memory:"
		}
		return d.Path + "/" + d.Name + ".db"
	}
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

type StorageConfig struct {
	LocalPath   string `mapstructure:"local_path"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type OCRConfig struct {
	Tesseract string `mapstructure:"tesseract"`
	Lang      string `mapstructure:"lang"`
	Workers   int    `mapstructure:"workers"`
}

type PDFConfig struct {
	PdfToText string `mapstructure:"pdftotext"`
	PdfToPPM  string `mapstructure:"pdftoppm"`
	DPI       int    `mapstructure:"dpi"`
}

type CatalogConfig struct {
	SubjectsPath   string `mapstructure:"subjects_path"`
	CategoriesPath string `mapstructure:"categories_path"`
	SampleSize     int    `mapstructure:"sample_size"`
}

// ClassificationConfig holds the expression deciding whether an exam gets a
// core topic below its main category. The environment exposes `sufficient`
// (the model's 0/1 answer) and `category` (the chosen main category).
type ClassificationConfig struct {
	CoreTopicRule string `mapstructure:"core_topic_rule"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads app.yaml (or the explicit file when path is non-empty) and
// overlays EXAMBANK_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	setDefaults(v)

	v.SetEnvPrefix("exambank")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "eksamensbanken")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("database.url", "")
	v.SetDefault("storage.local_path", "./uploads")
	v.SetDefault("storage.max_file_size", 52428800)
	v.SetDefault("llm.base_url", "https://api.deepseek.com")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.lang", "nor+eng")
	v.SetDefault("ocr.workers", 4)
	v.SetDefault("pdf.pdftotext", "pdftotext")
	v.SetDefault("pdf.pdftoppm", "pdftoppm")
	v.SetDefault("pdf.dpi", 144)
	v.SetDefault("catalog.subjects_path", "ntnu_emner.json")
	v.SetDefault("catalog.categories_path", "categories.yaml")
	v.SetDefault("catalog.sample_size", 50)
	v.SetDefault("classification.core_topic_rule", "sufficient == 0")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("jwt_secret", "changeme-secret")
}

// ValidateIngest checks the settings the ingest pipeline cannot run without.
func (c *Config) ValidateIngest() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is not set (EXAMBANK_LLM_API_KEY)")
	}
	if c.LLM.BaseURL == "" || c.LLM.Model == "" {
		return fmt.Errorf("llm.base_url and llm.model are required")
	}
	if c.OCR.Workers < 1 {
		return fmt.Errorf("ocr.workers must be at least 1, got %d", c.OCR.Workers)
	}
	return nil
}
