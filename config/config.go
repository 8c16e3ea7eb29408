package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Uploads   UploadConfig    `koanf:"uploads"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Logging   LoggingConfig   `koanf:"logging"`
	Seed      SeedConfig      `koanf:"seed"`
}

type ServerConfig struct {
	Port        string `koanf:"port"`
	GinMode     string `koanf:"gin_mode"`
	Environment string `koanf:"environment"`
	Timezone    string `koanf:"timezone"`
	Version     string `koanf:"version"`
}

type DatabaseConfig struct {
	Driver       string `koanf:"driver"` // mysql|postgres
	Host         string `koanf:"host"`
	Port         string `koanf:"port"`
	Name         string `koanf:"name"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	SSLMode      string `koanf:"sslmode"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
	DebugSQL     bool   `koanf:"debug_sql"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
}

type AuthConfig struct {
	JWTSecret      string `koanf:"jwt_secret"`
	JWTExpireHours int    `koanf:"jwt_expire_hours"`
	BcryptRounds   int    `koanf:"bcrypt_rounds"`
}

type UploadConfig struct {
	Path        string `koanf:"path"`
	MaxFileSize int64  `koanf:"max_file_size"`
	MaxFiles    int    `koanf:"max_files"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type RateLimitConfig struct {
	WindowMS    int    `koanf:"window_ms"`
	MaxRequests int    `koanf:"max_requests"`
	RedisURL    string `koanf:"redis_url"`
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

type SMTPConfig struct {
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	User          string `koanf:"user"`
	Pass          string `koanf:"pass"`
	From          string `koanf:"from"`
	SkipTLSVerify bool   `koanf:"skip_tls_verify"`
}

// Enabled reports whether outgoing mail is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json|console
	File   string `koanf:"file"`
}

type SeedConfig struct {
	AdminEmail    string `koanf:"admin_email"`
	AdminPassword string `koanf:"admin_password"`
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// Location resolves the configured dashboard time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Server.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", c.Server.Timezone).Msg("unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:        "5000",
			GinMode:     "debug",
			Environment: "development",
			Timezone:    "UTC",
			Version:     "1.0.0",
		},
		Database: DatabaseConfig{
			Driver:       "mysql",
			Host:         "localhost",
			Port:         "3306",
			Name:         "grievance_db",
			User:         "root",
			SSLMode:      "disable",
			AutoMigrate:  true,
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Auth: AuthConfig{
			JWTExpireHours: 24,
			BcryptRounds:   10,
		},
		Uploads: UploadConfig{
			Path:        "./uploads",
			MaxFileSize: 5 * 1024 * 1024,
			MaxFiles:    5,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		RateLimit: RateLimitConfig{
			WindowMS:    15 * 60 * 1000,
			MaxRequests: 100,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   LogFilePath(),
		},
		Seed: SeedConfig{
			AdminEmail:    "admin@grievance.com",
			AdminPassword: "admin123",
		},
	}
}

// Load reads .env (optional), then layers struct defaults, an optional YAML
// file and the process environment, in that order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitCommaList(k, "cors.allowed_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"server_port": "server.port",
	"gin_mode":    "server.gin_mode",
	"environment": "server.environment",
	"timezone":    "server.timezone",
	"app_version": "server.version",

	"db_driver":         "database.driver",
	"db_host":           "database.host",
	"db_port":           "database.port",
	"db_database":       "database.name",
	"db_username":       "database.user",
	"db_password":       "database.password",
	"db_sslmode":        "database.sslmode",
	"db_auto_migrate":   "database.auto_migrate",
	"debug_sql":         "database.debug_sql",
	"db_max_open_conns": "database.max_open_conns",
	"db_max_idle_conns": "database.max_idle_conns",

	"jwt_secret":       "auth.jwt_secret",
	"jwt_expire_hours": "auth.jwt_expire_hours",
	"bcrypt_rounds":    "auth.bcrypt_rounds",

	"upload_path":   "uploads.path",
	"max_file_size": "uploads.max_file_size",
	"max_files":     "uploads.max_files",

	"frontend_url": "cors.allowed_origins",

	"rate_limit_window_ms":    "rate_limit.window_ms",
	"rate_limit_max_requests": "rate_limit.max_requests",
	"redis_url":               "rate_limit.redis_url",

	"smtp_host":            "smtp.host",
	"smtp_port":            "smtp.port",
	"smtp_user":            "smtp.user",
	"smtp_pass":            "smtp.pass",
	"smtp_from":            "smtp.from",
	"smtp_skip_tls_verify": "smtp.skip_tls_verify",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_file":   "logging.file",

	"seed_admin_email":    "seed.admin_email",
	"seed_admin_password": "seed.admin_password",
}

// envTransformFunc maps known variables onto config paths and drops the rest.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func splitCommaList(k *koanf.Koanf, path string) error {
	raw, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	if err := k.Set(path, values); err != nil {
		return fmt.Errorf("failed to split %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q (want mysql or postgres)", c.Database.Driver))
	}
	if c.Auth.BcryptRounds < 4 || c.Auth.BcryptRounds > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_ROUNDS must be between 4 and 31, got %d", c.Auth.BcryptRounds))
	}
	if c.Auth.JWTExpireHours <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRE_HOURS must be positive"))
	}
	if c.Uploads.MaxFileSize <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE must be positive"))
	}
	if c.Uploads.MaxFiles <= 0 {
		errs = append(errs, errors.New("MAX_FILES must be positive"))
	}
	if c.RateLimit.WindowMS <= 0 || c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, errors.New("rate limit window and max requests must be positive"))
	}
	return errors.Join(errs...)
}
