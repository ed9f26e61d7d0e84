package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Remote store drivers.
const (
	RemotePostgres = "postgres"
	RemoteMongo    = "mongo"
)

// Durable draft storage drivers.
const (
	DraftsFile   = "file"
	DraftsRedis  = "redis"
	DraftsMemory = "memory"
)

type Config struct {
	Env             string
	Port            int
	APIPrefix       string
	ShutdownTimeout time.Duration

	Database  DatabaseConfig
	Redis     RedisConfig
	Mongo     MongoConfig
	Remote    RemoteConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Drafts    DraftsConfig
	AutoSave  AutoSaveConfig
	ViewCache ViewCacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// MongoConfig points at the optional MongoDB sync target.
type MongoConfig struct {
	URI      string
	Database string
}

// RemoteConfig selects which store receives flushed batches.
type RemoteConfig struct {
	Driver string
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DraftsConfig controls where draft collections are mirrored.
type DraftsConfig struct {
	Driver string
	Dir    string
}

// AutoSaveConfig tunes the threshold/debounce scheduler and its dispatch queue.
type AutoSaveConfig struct {
	Enabled   bool
	Threshold int
	Debounce  time.Duration
	Workers   int
	Retries   int
}

// ViewCacheConfig governs caching of remote read views and rosters.
type ViewCacheConfig struct {
	Enabled   bool
	TTL       time.Duration
	RosterTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ShutdownTimeout = parseDuration(v.GetString("SHUTDOWN_TIMEOUT"), 10*time.Second)

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Mongo = MongoConfig{
		URI:      v.GetString("MONGO_URI"),
		Database: v.GetString("MONGO_DATABASE"),
	}

	cfg.Remote = RemoteConfig{Driver: strings.ToLower(v.GetString("REMOTE_DRIVER"))}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Drafts = DraftsConfig{
		Driver: strings.ToLower(v.GetString("DRAFTS_DRIVER")),
		Dir:    v.GetString("DRAFTS_DIR"),
	}

	threshold := v.GetInt("AUTOSAVE_THRESHOLD")
	if threshold <= 0 {
		threshold = 5
	}
	cfg.AutoSave = AutoSaveConfig{
		Enabled:   v.GetBool("AUTOSAVE_ENABLED"),
		Threshold: threshold,
		Debounce:  parseDuration(v.GetString("AUTOSAVE_DEBOUNCE"), 2*time.Second),
		Workers:   v.GetInt("AUTOSAVE_WORKERS"),
		Retries:   v.GetInt("AUTOSAVE_RETRIES"),
	}

	cfg.ViewCache = ViewCacheConfig{
		Enabled:   v.GetBool("ENABLE_VIEW_CACHE"),
		TTL:       parseDuration(v.GetString("VIEW_CACHE_TTL"), time.Minute),
		RosterTTL: parseDuration(v.GetString("ROSTER_CACHE_TTL"), time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "entry_sync")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "entry_sync")
	v.SetDefault("REMOTE_DRIVER", RemotePostgres)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DRAFTS_DRIVER", DraftsFile)
	v.SetDefault("DRAFTS_DIR", "./drafts")

	v.SetDefault("AUTOSAVE_ENABLED", true)
	v.SetDefault("AUTOSAVE_THRESHOLD", 5)
	v.SetDefault("AUTOSAVE_DEBOUNCE", "2s")
	v.SetDefault("AUTOSAVE_WORKERS", 1)
	v.SetDefault("AUTOSAVE_RETRIES", 0)

	v.SetDefault("ENABLE_VIEW_CACHE", true)
	v.SetDefault("VIEW_CACHE_TTL", "1m")
	v.SetDefault("ROSTER_CACHE_TTL", "1m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
