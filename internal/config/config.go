package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix          = "PERMASHARE"
	defaultHTTPAddress = "0.0.0.0:8080"
	defaultBaseURL     = "http://localhost:8080"
	defaultBackend     = "sqlite"
	defaultSQLitePath  = "permashare.db"
	defaultSweepCron   = "0 3 * * *"
	defaultLogLevel    = "info"
)

// StorageBackend selects the object-store implementation.
type StorageBackend string

const (
	// BackendSQLite keeps objects in a local SQLite file.
	BackendSQLite StorageBackend = "sqlite"
	// BackendS3 targets an S3-compatible bucket (AWS S3, Cloudflare R2, MinIO).
	BackendS3 StorageBackend = "s3"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string
	BaseURL     string
	AuthSecret  string
	LogLevel    string
	SweepCron   string

	StorageBackend StorageBackend
	SQLitePath     string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("base.url", defaultBaseURL)
	configViper.SetDefault("storage.backend", defaultBackend)
	configViper.SetDefault("sqlite.path", defaultSQLitePath)
	configViper.SetDefault("s3.region", "auto")
	configViper.SetDefault("sweep.cron", defaultSweepCron)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		BaseURL:        strings.TrimRight(configViper.GetString("base.url"), "/"),
		AuthSecret:     configViper.GetString("auth.secret"),
		LogLevel:       configViper.GetString("log.level"),
		SweepCron:      configViper.GetString("sweep.cron"),
		StorageBackend: StorageBackend(strings.ToLower(configViper.GetString("storage.backend"))),
		SQLitePath:     configViper.GetString("sqlite.path"),
		S3Bucket:       configViper.GetString("s3.bucket"),
		S3Region:       configViper.GetString("s3.region"),
		S3Endpoint:     configViper.GetString("s3.endpoint"),
		S3AccessKey:    configViper.GetString("s3.access_key"),
		S3SecretKey:    configViper.GetString("s3.secret_key"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return fmt.Errorf("auth.secret is required")
	}
	switch c.StorageBackend {
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case BackendS3:
		if strings.TrimSpace(c.S3Bucket) == "" {
			return fmt.Errorf("s3.bucket is required")
		}
		if strings.TrimSpace(c.S3AccessKey) == "" || strings.TrimSpace(c.S3SecretKey) == "" {
			return fmt.Errorf("s3.access_key and s3.secret_key are required")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q", BackendSQLite, BackendS3)
	}
	return nil
}
