package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Backend string `env:"TRANSCRIBE_BACKEND" envDefault:"openai"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"whisper-1"`

	ChunkDuration     time.Duration `env:"CHUNK_DURATION" envDefault:"3m"`
	PricePerMinuteUSD float64       `env:"PRICE_PER_MINUTE_USD" envDefault:"0.006"`
	ChunkConcurrency  int           `env:"CHUNK_CONCURRENCY" envDefault:"1"`

	SpeechURL      string        `env:"SPEECH_URL" envDefault:"http://www.google.com/speech-api/v2/recognize"`
	SpeechAPIKey   string        `env:"SPEECH_API_KEY"`
	SpeechLanguage string        `env:"SPEECH_LANGUAGE" envDefault:"pt-BR"`
	SpeechTimeout  time.Duration `env:"SPEECH_TIMEOUT" envDefault:"5m"`

	VoskModelPath  string  `env:"VOSK_MODEL_PATH" envDefault:"./vosk-model-pt-fb-v0.1.1-20220516_2113"`
	VoskSampleRate float64 `env:"VOSK_SAMPLE_RATE" envDefault:"16000"`

	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"512"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	UploadDir     string `env:"UPLOAD_DIR"`
	TranscriptDir string `env:"TRANSCRIPT_DIR" envDefault:"./transcripts"`
	WatchDir      string `env:"WATCH_DIR"`

	S3 S3Config `envPrefix:"S3_"`

	DatabaseURL string `env:"DATABASE_URL"`

	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"scribe"`
	MQTTTopic     string `env:"MQTT_TOPIC" envDefault:"scribe/transcriptions"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the S3-compatible transcript store.
type S3Config struct {
	Bucket    string `env:"BUCKET"`
	Endpoint  string `env:"ENDPOINT"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Prefix    string `env:"PREFIX"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	Backend  string
	HTTPAddr string
	LogLevel string
	WatchDir string
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
	if overrides.Backend != "" {
		cfg.Backend = overrides.Backend
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	return cfg, nil
}
