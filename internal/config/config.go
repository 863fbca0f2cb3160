package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL         string        `env:"DATABASE_URL,required"`
	DatabaseMaxConns    int           `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	DatabaseMinConns    int           `env:"DATABASE_MIN_CONNS" envDefault:"2"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT" envDefault:"2s"`
	RedisURL            string        `env:"REDIS_URL"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"intelliscript"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"intelliscript"`

	DataDir     string `env:"DATA_DIR" envDefault:"./data"`
	WorkDir     string `env:"WORK_DIR"`
	WatchDir    string `env:"WATCH_DIR"`
	ProgressDir string `env:"PROGRESS_DIR" envDefault:"./data/progress"`

	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5m"`
	IdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxUploadMB    int64         `env:"MAX_UPLOAD_MB" envDefault:"500"`
	CORSOrigins    string        `env:"CORS_ORIGINS"`
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"40"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// Speech to text. STTProvider is "whisper" or "deepinfra".
	STTProvider     string        `env:"STT_PROVIDER" envDefault:"whisper"`
	WhisperURL      string        `env:"WHISPER_URL" envDefault:"http://localhost:8000"`
	WhisperModel    string        `env:"WHISPER_MODEL" envDefault:"whisper-1"`
	WhisperAPIKey   string        `env:"WHISPER_API_KEY"`
	WhisperTimeout  time.Duration `env:"WHISPER_TIMEOUT" envDefault:"10m"`
	WhisperLanguage string        `env:"WHISPER_LANGUAGE"`
	WhisperPrompt   string        `env:"WHISPER_PROMPT"`
	DeepInfraURL    string        `env:"DEEPINFRA_URL" envDefault:"https://api.deepinfra.com"`
	DeepInfraAPIKey string        `env:"DEEPINFRA_API_KEY"`
	DeepInfraModel  string        `env:"DEEPINFRA_MODEL" envDefault:"openai/whisper-large-v3-turbo"`

	// Speaker diarization. An empty URL disables speaker attribution.
	PyannoteURL     string        `env:"PYANNOTE_URL"`
	PyannoteTimeout time.Duration `env:"PYANNOTE_TIMEOUT" envDefault:"10m"`

	// Summaries and Q&A. An empty URL and key disables both.
	LLMURL     string        `env:"LLM_URL"`
	LLMAPIKey  string        `env:"LLM_API_KEY"`
	LLMModel   string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout time.Duration `env:"LLM_TIMEOUT" envDefault:"2m"`

	AudioEnhanced     bool          `env:"AUDIO_ENHANCED" envDefault:"false"`
	NoiseReduction    bool          `env:"NOISE_REDUCTION" envDefault:"true"`
	LoudnessTargetI   float64       `env:"LOUDNESS_TARGET_I" envDefault:"-16"`
	LoudnessTargetLRA float64       `env:"LOUDNESS_TARGET_LRA" envDefault:"7"`
	LoudnessTargetTP  float64       `env:"LOUDNESS_TARGET_TP" envDefault:"-1.5"`
	FFmpegPath        string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFmpegTimeout     time.Duration `env:"FFMPEG_TIMEOUT" envDefault:"10m"`

	ChunkGapThreshold time.Duration `env:"CHUNK_GAP_THRESHOLD" envDefault:"300ms"`

	Workers    int           `env:"WORKERS" envDefault:"2"`
	QueueSize  int           `env:"QUEUE_SIZE" envDefault:"100"`
	JobTimeout time.Duration `env:"JOB_TIMEOUT" envDefault:"1h"`

	// SessionRetention deletes sessions older than this. Zero keeps them forever.
	SessionRetention time.Duration `env:"SESSION_RETENTION" envDefault:"0"`

	S3 S3Config `envPrefix:"S3_"`
}

// S3Config configures the S3-compatible object store for audio files.
type S3Config struct {
	Bucket         string        `env:"BUCKET"`
	Endpoint       string        `env:"ENDPOINT"`
	Region         string        `env:"REGION" envDefault:"us-east-1"`
	AccessKey      string        `env:"ACCESS_KEY"`
	SecretKey      string        `env:"SECRET_KEY"`
	Prefix         string        `env:"PREFIX"`
	PresignExpiry  time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
	LocalCache     bool          `env:"LOCAL_CACHE" envDefault:"true"`
	CacheRetention time.Duration `env:"CACHE_RETENTION" envDefault:"0"`
	CacheMaxGB     int           `env:"CACHE_MAX_GB" envDefault:"0"`
	UploadWorkers  int           `env:"UPLOAD_WORKERS" envDefault:"2"`
}

// Enabled reports whether an S3 bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	DatabaseURL   string
	MQTTBrokerURL string
	DataDir       string
	WatchDir      string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that env parsing cannot express.
func (c *Config) Validate() error {
	switch c.STTProvider {
	case "whisper", "deepinfra":
	default:
		return fmt.Errorf("STT_PROVIDER must be whisper or deepinfra, got %q", c.STTProvider)
	}
	if c.STTProvider == "deepinfra" && c.DeepInfraAPIKey == "" {
		return fmt.Errorf("DEEPINFRA_API_KEY is required when STT_PROVIDER=deepinfra")
	}
	// loudnorm accepts I in [-70,-5], LRA in [1,50], TP in [-9,0].
	if c.LoudnessTargetI < -70 || c.LoudnessTargetI > -5 {
		return fmt.Errorf("LOUDNESS_TARGET_I out of range [-70,-5]: %v", c.LoudnessTargetI)
	}
	if c.LoudnessTargetLRA < 1 || c.LoudnessTargetLRA > 50 {
		return fmt.Errorf("LOUDNESS_TARGET_LRA out of range [1,50]: %v", c.LoudnessTargetLRA)
	}
	if c.LoudnessTargetTP < -9 || c.LoudnessTargetTP > 0 {
		return fmt.Errorf("LOUDNESS_TARGET_TP out of range [-9,0]: %v", c.LoudnessTargetTP)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.DatabaseMaxConns < 1 {
		return fmt.Errorf("DATABASE_MAX_CONNS must be at least 1, got %d", c.DatabaseMaxConns)
	}
	if c.DatabaseMinConns < 0 || c.DatabaseMinConns > c.DatabaseMaxConns {
		return fmt.Errorf("DATABASE_MIN_CONNS must be in [0,%d], got %d", c.DatabaseMaxConns, c.DatabaseMinConns)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("MAX_UPLOAD_MB must be at least 1, got %d", c.MaxUploadMB)
	}
	return nil
}

// SummariesEnabled reports whether an LLM endpoint is configured.
func (c *Config) SummariesEnabled() bool {
	return c.LLMURL != "" || c.LLMAPIKey != ""
}
