package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageBackendLocal = "local"
	StorageBackendS3    = "s3"

	MetadataStoreFile     = "file"
	MetadataStorePostgres = "postgres"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	S3        S3Config
	Metadata  MetadataConfig
	Database  DatabaseConfig
	Image     ImageConfig
	Directory DirectoryConfig
	Session   SessionConfig
	Log       LogConfig

	// EncryptionKey is the operator supplied image key: 64 hex chars,
	// base64 of 32 bytes, or a passphrase. Empty means a throwaway key.
	EncryptionKey string
}

type ServerConfig struct {
	Port               int
	MaxUploadSize      int64
	CORSAllowedOrigins []string
	RateLimit          int
	// TrustedProxies lists the addresses or CIDR ranges whose forwarding
	// headers (X-Forwarded-For, X-Real-IP, CF-Connecting-IP) are believed.
	TrustedProxies []string
}

type StorageConfig struct {
	Backend string
	Root    string
}

// S3Config points at any S3-compatible endpoint (AWS, MinIO, R2).
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

type MetadataConfig struct {
	Store string
}

type DatabaseConfig struct {
	URL         string
	AutoMigrate bool
}

type ImageConfig struct {
	MaxSize   int64
	Quality   int
	MaxWidth  int
	MaxHeight int
	// MaxPixels caps width*height read from the image header before the
	// bitmap is decoded.
	MaxPixels int
}

type DirectoryConfig struct {
	BaseURL    string
	SearchPath string
	APIKey     string
	Token      string
	Timeout    time.Duration
	Retries    int
}

type SessionConfig struct {
	MaxAge          time.Duration
	CleanupInterval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from an optional .env file, an optional
// config.yaml and the environment, in increasing precedence.
// Environment keys are the upper-cased config keys with "." replaced
// by "_" (server.port -> SERVER_PORT).
func Load(configPaths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_size", 10<<20)
	v.SetDefault("server.cors_allowed_origins", "*")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.trusted_proxies", "")

	v.SetDefault("storage.backend", StorageBackendLocal)
	v.SetDefault("storage.root", "./data/captures")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "auto")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")

	v.SetDefault("metadata.store", MetadataStoreFile)
	v.SetDefault("database.url", "")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("encryption.key", "")

	v.SetDefault("image.max_size", 5<<20)
	v.SetDefault("image.quality", 80)
	v.SetDefault("image.max_width", 1920)
	v.SetDefault("image.max_height", 1080)
	v.SetDefault("image.max_pixels", 40_000_000)

	v.SetDefault("directory.base_url", "")
	v.SetDefault("directory.search_path", "/visitors/search")
	v.SetDefault("directory.api_key", "")
	v.SetDefault("directory.token", "")
	v.SetDefault("directory.timeout", 10*time.Second)
	v.SetDefault("directory.retries", 2)

	v.SetDefault("session.max_age", 30*time.Minute)
	v.SetDefault("session.cleanup_interval", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:               v.GetInt("server.port"),
			MaxUploadSize:      v.GetInt64("server.max_upload_size"),
			CORSAllowedOrigins: splitList(v.GetString("server.cors_allowed_origins")),
			RateLimit:          v.GetInt("server.rate_limit"),
			TrustedProxies:     splitList(v.GetString("server.trusted_proxies")),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(v.GetString("storage.backend")),
			Root:    v.GetString("storage.root"),
		},
		S3: S3Config{
			Endpoint:  v.GetString("s3.endpoint"),
			Region:    v.GetString("s3.region"),
			Bucket:    v.GetString("s3.bucket"),
			AccessKey: v.GetString("s3.access_key"),
			SecretKey: v.GetString("s3.secret_key"),
		},
		Metadata: MetadataConfig{
			Store: strings.ToLower(v.GetString("metadata.store")),
		},
		Database: DatabaseConfig{
			URL:         v.GetString("database.url"),
			AutoMigrate: v.GetBool("database.auto_migrate"),
		},
		Image: ImageConfig{
			MaxSize:   v.GetInt64("image.max_size"),
			Quality:   v.GetInt("image.quality"),
			MaxWidth:  v.GetInt("image.max_width"),
			MaxHeight: v.GetInt("image.max_height"),
			MaxPixels: v.GetInt("image.max_pixels"),
		},
		Directory: DirectoryConfig{
			BaseURL:    strings.TrimRight(v.GetString("directory.base_url"), "/"),
			SearchPath: v.GetString("directory.search_path"),
			APIKey:     v.GetString("directory.api_key"),
			Token:      v.GetString("directory.token"),
			Timeout:    v.GetDuration("directory.timeout"),
			Retries:    v.GetInt("directory.retries"),
		},
		Session: SessionConfig{
			MaxAge:          v.GetDuration("session.max_age"),
			CleanupInterval: v.GetDuration("session.cleanup_interval"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		EncryptionKey: v.GetString("encryption.key"),
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("server.max_upload_size must be positive"))
	}
	for _, proxy := range c.Server.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("server.trusted_proxies entry %q is not an IP or CIDR", proxy))
		}
	}
	if c.Image.MaxSize <= 0 {
		errs = append(errs, errors.New("image.max_size must be positive"))
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		errs = append(errs, fmt.Errorf("image.quality %d must be between 1 and 100", c.Image.Quality))
	}
	if c.Image.MaxWidth <= 0 || c.Image.MaxHeight <= 0 {
		errs = append(errs, errors.New("image.max_width and image.max_height must be positive"))
	}
	if c.Image.MaxPixels <= 0 {
		errs = append(errs, errors.New("image.max_pixels must be positive"))
	}
	if c.Session.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("session.max_age %s must be positive", c.Session.MaxAge))
	}
	if c.Session.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.cleanup_interval %s must be positive", c.Session.CleanupInterval))
	}

	switch c.Storage.Backend {
	case StorageBackendLocal:
		if c.Storage.Root == "" {
			errs = append(errs, errors.New("storage.root is required for the local backend"))
		}
	case StorageBackendS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3.endpoint and s3.bucket are required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	switch c.Metadata.Store {
	case MetadataStoreFile:
	case MetadataStorePostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres metadata store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown metadata.store %q", c.Metadata.Store))
	}

	return errors.Join(errs...)
}

func validProxy(entry string) bool {
	if _, err := netip.ParsePrefix(entry); err == nil {
		return true
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
