package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port       string `yaml:"port"`
	LogLevel   string `yaml:"logLevel"`
	DBPath     string `yaml:"dbPath"`
	StorageDir string `yaml:"storageDir"`
	// CatalogPath optionally replaces the built-in document catalog.
	CatalogPath string `yaml:"catalogPath"`

	// Compliance.
	WarnWindowDays int `yaml:"warnWindowDays"`

	// Restore behavior: treat missing referenced files as errors.
	StrictRestoreFiles bool `yaml:"strictRestoreFiles"`

	// Auto-backup after mutating operations.
	AutoBackup     bool `yaml:"autoBackup"`
	AutoBackupKeep int  `yaml:"autoBackupKeep"`

	// Optional MinIO backend for the file store; when the endpoint is
	// empty, files live on local disk under StorageDir.
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	MaxUploadBytes int64 `yaml:"maxUploadBytes"`
}

// Load reads config from path (defaults to config.yaml). A missing file is
// not an error: defaults plus environment overrides apply.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Override with environment variables
	if v := os.Getenv("GYD_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("GYD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GYD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GYD_STORAGE_DIR"); v != "" {
		cfg.StorageDir = v
	}
	if v := os.Getenv("GYD_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("GYD_WARN_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WarnWindowDays = n
		}
	}
	if v := os.Getenv("GYD_STRICT_RESTORE_FILES"); v == "true" {
		cfg.StrictRestoreFiles = true
	}
	if v := os.Getenv("GYD_AUTO_BACKUP"); v != "" {
		cfg.AutoBackup = v == "true"
	}
	if v := os.Getenv("GYD_AUTO_BACKUP_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AutoBackupKeep = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("GYD_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}

	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/app.db"
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = "data/uploads"
	}
	if cfg.WarnWindowDays == 0 {
		cfg.WarnWindowDays = 30
	}
	if cfg.AutoBackupKeep == 0 {
		cfg.AutoBackupKeep = 20
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.WarnWindowDays < 0 {
		return errors.New("config: warnWindowDays must not be negative")
	}
	if cfg.AutoBackupKeep < 0 {
		return errors.New("config: autoBackupKeep must not be negative")
	}
	if cfg.MinioEndpoint != "" {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return errors.New("config: minio credentials are required when minioEndpoint is set")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required when minioEndpoint is set")
		}
	}
	return nil
}
