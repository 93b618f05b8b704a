package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Vision    VisionConfig    `yaml:"vision"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type MinIOConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	UseSSL    bool          `yaml:"use_ssl"`
	Buckets   BucketsConfig `yaml:"buckets"`
}

// BucketsConfig names the three rendition buckets, all keyed by content hash.
type BucketsConfig struct {
	Originals    string `yaml:"originals"`
	Thumbnails   string `yaml:"thumbnails"`
	DefaultViews string `yaml:"default_views"`
}

type GeocodingConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url"`
	UserAgent   string        `yaml:"user_agent"`
	MinInterval time.Duration `yaml:"min_interval"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Timeout     time.Duration `yaml:"timeout"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	ONNXLibrary        string  `yaml:"onnx_library"`
	EmbeddingEnabled   bool    `yaml:"embedding_enabled"`
	FacesEnabled       bool    `yaml:"faces_enabled"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	// Timezone applied to EXIF capture timestamps that carry no offset.
	DefaultTimezone string `yaml:"default_timezone"`
}

type IngestConfig struct {
	Extensions  []string `yaml:"extensions"`
	SidecarRoot string   `yaml:"sidecar_root"`
	MetricsAddr string   `yaml:"metrics_addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// Default returns a config with every default applied and no file read.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.MinIO.Buckets.Originals == "" {
		cfg.MinIO.Buckets.Originals = "originals"
	}
	if cfg.MinIO.Buckets.Thumbnails == "" {
		cfg.MinIO.Buckets.Thumbnails = "thumbnails"
	}
	if cfg.MinIO.Buckets.DefaultViews == "" {
		cfg.MinIO.Buckets.DefaultViews = "default-views"
	}
	if cfg.Geocoding.BaseURL == "" {
		cfg.Geocoding.BaseURL = "https://nominatim.openstreetmap.org/reverse"
	}
	if cfg.Geocoding.UserAgent == "" {
		cfg.Geocoding.UserAgent = "photocat/1.0"
	}
	if cfg.Geocoding.MinInterval == 0 {
		// Nominatim usage policy: at most one request per second.
		cfg.Geocoding.MinInterval = time.Second
	}
	if cfg.Geocoding.CacheTTL == 0 {
		cfg.Geocoding.CacheTTL = 24 * time.Hour
	}
	if cfg.Geocoding.Timeout == 0 {
		cfg.Geocoding.Timeout = 10 * time.Second
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.DefaultTimezone == "" {
		cfg.Vision.DefaultTimezone = "Europe/Stockholm"
	}
	if len(cfg.Ingest.Extensions) == 0 {
		cfg.Ingest.Extensions = []string{".jpg", ".jpeg", ".png"}
	}
	for i, ext := range cfg.Ingest.Extensions {
		cfg.Ingest.Extensions[i] = strings.ToLower(strings.TrimSpace(ext))
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PHOTOCAT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PHOTOCAT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PHOTOCAT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PHOTOCAT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PHOTOCAT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PHOTOCAT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("PHOTOCAT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("PHOTOCAT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("PHOTOCAT_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("PHOTOCAT_ONNX_LIBRARY"); v != "" {
		cfg.Vision.ONNXLibrary = v
	}
	if v := os.Getenv("PHOTOCAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
