package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	YouTube    YouTubeConfig    `mapstructure:"youtube"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	FileOnly   bool   `mapstructure:"file_only"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// AuthConfig holds the single shared secret checked on protected routes.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN renders the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type YouTubeConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TranscriptConfig points at the caption service that returns plain
// transcript text for a video id.
type TranscriptConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Languages []string      `mapstructure:"languages"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Path        string        `mapstructure:"path"`
	InMemory    bool          `mapstructure:"in_memory"`
	MetadataTTL time.Duration `mapstructure:"metadata_ttl"`
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type QueueConfig struct {
	Mode         string   `mapstructure:"mode"` // local or nsq
	NSQDAddr     string   `mapstructure:"nsqd_addr"`
	LookupdAddrs []string `mapstructure:"lookupd_addrs"`
	Topic        string   `mapstructure:"topic"`
	Channel      string   `mapstructure:"channel"`
	Workers      int      `mapstructure:"workers"`
	MaxAttempts  uint16   `mapstructure:"max_attempts"`
}

type IngestConfig struct {
	MaxVideosPerChannel int           `mapstructure:"max_videos_per_channel"`
	DefaultVideoLimit   int           `mapstructure:"default_video_limit"`
	ChunkSize           int           `mapstructure:"chunk_size"`
	Tokenizer           string        `mapstructure:"tokenizer"` // heuristic or tiktoken
	EmbedPause          time.Duration `mapstructure:"embed_pause"`
	MaxBatchBytes       int           `mapstructure:"max_batch_bytes"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryInitial        time.Duration `mapstructure:"retry_initial"`
	RetryMax            time.Duration `mapstructure:"retry_max"`
	TrustIndexProbe     bool          `mapstructure:"trust_index_probe"`
}

type JobsConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

// Load reads configs/config.yaml (or configPath), a .env file and the
// environment, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "youtube-extraction")
	v.SetDefault("app.env", "local")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "/var/log/youtube-extraction/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/jobs.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "youtube_transcripts")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("youtube.base_url", "https://www.googleapis.com/youtube/v3")
	v.SetDefault("youtube.timeout", 15*time.Second)

	v.SetDefault("transcript.base_url", "http://localhost:8081")
	v.SetDefault("transcript.languages", []string{"en"})
	v.SetDefault("transcript.timeout", 30*time.Second)

	v.SetDefault("cache.path", "./data/cache")
	v.SetDefault("cache.metadata_ttl", 7*24*time.Hour)

	v.SetDefault("storage.type", "s3compatible")
	v.SetDefault("storage.bucket", "transcripts")
	v.SetDefault("storage.prefix", "transcripts")

	v.SetDefault("queue.mode", "local")
	v.SetDefault("queue.nsqd_addr", "127.0.0.1:4150")
	v.SetDefault("queue.topic", "process_channel")
	v.SetDefault("queue.channel", "workers")
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.max_attempts", 1)

	v.SetDefault("ingest.max_videos_per_channel", 1000)
	v.SetDefault("ingest.default_video_limit", 5)
	v.SetDefault("ingest.chunk_size", 200)
	v.SetDefault("ingest.tokenizer", "heuristic")
	v.SetDefault("ingest.embed_pause", 500*time.Millisecond)
	v.SetDefault("ingest.max_batch_bytes", 1<<20)
	v.SetDefault("ingest.retry_attempts", 3)
	v.SetDefault("ingest.retry_initial", 4*time.Second)
	v.SetDefault("ingest.retry_max", 10*time.Second)
	v.SetDefault("ingest.trust_index_probe", false)

	v.SetDefault("jobs.retention", time.Hour)
	v.SetDefault("jobs.purge_interval", 10*time.Minute)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("app.env", "APP_ENV")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("auth.api_key", "YES_API_KEY")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.host", "DATABASE_HOST")
	_ = v.BindEnv("database.user", "DATABASE_USER")
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = v.BindEnv("database.dbname", "DATABASE_DBNAME")
	_ = v.BindEnv("qdrant.host", "QDRANT_HOST")
	_ = v.BindEnv("qdrant.port", "QDRANT_PORT")
	_ = v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	_ = v.BindEnv("qdrant.collection", "QDRANT_COLLECTION")
	_ = v.BindEnv("embedding.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("youtube.api_key", "YOUTUBE_API_KEY")
	_ = v.BindEnv("transcript.base_url", "TRANSCRIPT_BASE_URL")
	_ = v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "S3_BUCKET")
	_ = v.BindEnv("queue.mode", "QUEUE_MODE")
	_ = v.BindEnv("queue.nsqd_addr", "NSQD_ADDR")
}

// Validate reports the first missing value the process cannot run without.
func (c *Config) Validate() error {
	if c.Embedding.APIKey == "" {
		return errors.New("embedding.api_key is required (OPENAI_API_KEY)")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding.dimensions must be positive")
	}
	if c.YouTube.APIKey == "" {
		return errors.New("youtube.api_key is required (YOUTUBE_API_KEY)")
	}
	if c.Ingest.ChunkSize <= 0 {
		return errors.New("ingest.chunk_size must be positive")
	}
	if c.Ingest.MaxBatchBytes <= 0 {
		return errors.New("ingest.max_batch_bytes must be positive")
	}
	switch c.Ingest.Tokenizer {
	case "heuristic", "tiktoken":
	default:
		return fmt.Errorf("ingest.tokenizer: unknown tokenizer %q", c.Ingest.Tokenizer)
	}
	switch c.Queue.Mode {
	case "local":
	case "nsq":
		if c.Queue.NSQDAddr == "" {
			return errors.New("queue.nsqd_addr is required in nsq mode")
		}
	default:
		return fmt.Errorf("queue.mode: unknown mode %q", c.Queue.Mode)
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required when storage is enabled")
	}
	return nil
}
