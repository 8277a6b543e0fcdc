package config

import (
	"fmt"
	"os"
	"time"

	"callscribe/pkg/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "configs/config.yaml"

type Config struct {
	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	} `yaml:"log"`

	Speech struct {
		Endpoint        string        `yaml:"endpoint" env:"SPEECH_ENDPOINT"`
		SubscriptionKey string        `yaml:"subscription_key" env:"SPEECH_SUBSCRIPTION_KEY"`
		Locale          string        `yaml:"locale" env:"SPEECH_LOCALE" env-default:"en-US"`
		UseStereo       bool          `yaml:"use_stereo" env:"SPEECH_USE_STEREO" env-default:"false"`
		PollInterval    time.Duration `yaml:"poll_interval" env:"SPEECH_POLL_INTERVAL" env-default:"15s"`
	} `yaml:"speech"`

	Storage struct {
		Endpoint            string        `yaml:"endpoint" env:"S3_ENDPOINT"`
		Region              string        `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
		AccessKey           string        `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey           string        `yaml:"secret_key" env:"S3_SECRET_KEY"`
		LandingBucket       string        `yaml:"landing_bucket" env:"LANDING_BUCKET" env-default:"landing"`
		TranscriptionBucket string        `yaml:"transcription_bucket" env:"TRANSCRIPTION_BUCKET" env-default:"transcription"`
		SignedURLTTL        time.Duration `yaml:"signed_url_ttl" env:"SIGNED_URL_TTL" env-default:"730h"`
	} `yaml:"storage"`

	Pipeline struct {
		AudioGlob   string        `yaml:"audio_glob" env:"AUDIO_GLOB"`
		Concurrency int           `yaml:"concurrency" env:"PIPELINE_CONCURRENCY" env-default:"1"`
		JobTimeout  time.Duration `yaml:"job_timeout" env:"PIPELINE_JOB_TIMEOUT" env-default:"45m"`
	} `yaml:"pipeline"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"RABBITMQ_URL"`
	} `yaml:"rabbitmq"`

	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	} `yaml:"redis"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_URL"`
	} `yaml:"postgres"`
}

// LoadConfig reads configs/config.yaml when present, then overlays
// environment variables. A missing config file is fine; the pipeline is
// normally configured through the environment alone.
func LoadConfig() (*Config, error) {
	// Load .env file
	_ = godotenv.Load()

	var cfg Config
	if _, err := os.Stat(defaultConfigPath); err == nil {
		if err := cleanenv.ReadConfig(defaultConfigPath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
	}

	logger.Info("Config loaded successfully")
	return &cfg, nil
}

// Validate checks the settings every pipeline run needs. Anything missing
// here is a setup error and aborts before any input is touched.
func (c *Config) Validate() error {
	switch {
	case c.Speech.Endpoint == "":
		return fmt.Errorf("SPEECH_ENDPOINT is required")
	case c.Speech.SubscriptionKey == "":
		return fmt.Errorf("SPEECH_SUBSCRIPTION_KEY is required")
	case c.Storage.Endpoint == "":
		return fmt.Errorf("S3_ENDPOINT is required")
	case c.Storage.LandingBucket == "":
		return fmt.Errorf("LANDING_BUCKET is required")
	case c.Storage.TranscriptionBucket == "":
		return fmt.Errorf("TRANSCRIPTION_BUCKET is required")
	}
	return nil
}
