package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config структура конфига
type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	Server struct {
		Addr     string `yaml:"addr" env:"SERVER_ADDR"`
		VideoDir string `yaml:"video_dir" env:"VIDEO_DIR"`
	} `yaml:"server"`

	Storage struct {
		Dir string `yaml:"dir" env:"STORAGE_DIR"`
	} `yaml:"storage"`

	Minio struct {
		Enabled   bool   `yaml:"enabled" env:"MINIO_ENABLED"`
		Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
	} `yaml:"minio"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_DSN"`
	} `yaml:"postgres"`

	Kafka struct {
		Brokers      []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID      string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		CommandTopic string   `yaml:"command_topic" env:"COMMAND_TOPIC"`
		EventTopic   string   `yaml:"event_topic" env:"EVENT_TOPIC"`
	} `yaml:"kafka"`

	Detection struct {
		Endpoint string        `yaml:"endpoint" env:"DETECTION_ENDPOINT"`
		Timeout  time.Duration `yaml:"timeout" env:"DETECTION_TIMEOUT"`
	} `yaml:"detection"`

	Analysis struct {
		BaseURL     string        `yaml:"base_url" env:"ANALYSIS_BASE_URL"`
		APIKey      string        `yaml:"api_key" env:"OPENAI_API_KEY"`
		Model       string        `yaml:"model" env:"ANALYSIS_MODEL"`
		Temperature float64       `yaml:"temperature" env:"ANALYSIS_TEMPERATURE"`
		MaxTokens   int           `yaml:"max_tokens" env:"ANALYSIS_MAX_TOKENS"`
		Timeout     time.Duration `yaml:"timeout" env:"ANALYSIS_TIMEOUT"`
	} `yaml:"analysis"`

	SMTP struct {
		Host     string `yaml:"host" env:"SMTP_HOST"`
		Port     int    `yaml:"port" env:"SMTP_PORT"`
		Username string `yaml:"username" env:"SMTP_USERNAME"`
		Password string `yaml:"password" env:"SMTP_PASSWORD"`
		From     string `yaml:"from" env:"SMTP_FROM"`
	} `yaml:"smtp"`

	Monitor struct {
		MovementThreshold float64       `yaml:"movement_threshold" env:"MOVEMENT_THRESHOLD"`
		Cooldown          time.Duration `yaml:"cooldown" env:"COOLDOWN"`
		SampleFPS         float64       `yaml:"sample_fps" env:"SAMPLE_FPS"`
		FrameDelay        time.Duration `yaml:"frame_delay" env:"FRAME_DELAY"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
		FFmpegPath        string        `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
	} `yaml:"monitor"`
}

// Default returns the configuration used when neither file nor env set a value.
func Default() *Config {
	cfg := &Config{LogLevel: "info"}

	cfg.Server.Addr = ":8080"
	cfg.Server.VideoDir = "static/videos"
	cfg.Storage.Dir = "static/saves"
	cfg.Minio.Bucket = "evidence"
	cfg.Kafka.GroupID = "threatsnap-group"
	cfg.Kafka.CommandTopic = "threatsnap-commands"
	cfg.Kafka.EventTopic = "threatsnap-events"
	cfg.Detection.Endpoint = "http://localhost:8000"
	cfg.Detection.Timeout = 10 * time.Second
	cfg.Analysis.BaseURL = "https://api.openai.com/v1"
	cfg.Analysis.Model = "gpt-4o"
	cfg.Analysis.Temperature = 0.2
	cfg.Analysis.MaxTokens = 1000
	cfg.Analysis.Timeout = 60 * time.Second
	cfg.SMTP.Port = 587
	cfg.Monitor.MovementThreshold = 40
	cfg.Monitor.Cooldown = 5 * time.Second
	cfg.Monitor.SampleFPS = 10
	cfg.Monitor.FrameDelay = 50 * time.Millisecond
	cfg.Monitor.HeartbeatInterval = 5 * time.Second
	cfg.Monitor.FFmpegPath = "ffmpeg"

	return cfg
}

// LoadConfig reads defaults, then the YAML file (if any), then environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// Читаем YAML
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		// Парсим YAML в структуру
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Парсим переменные окружения с приоритетом
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Monitor.MovementThreshold <= 0 {
		errs = append(errs, errors.New("monitor.movement_threshold must be positive"))
	}
	if c.Monitor.Cooldown < 0 {
		errs = append(errs, errors.New("monitor.cooldown must not be negative"))
	}
	if c.Monitor.SampleFPS <= 0 {
		errs = append(errs, errors.New("monitor.sample_fps must be positive"))
	}
	if c.Monitor.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("monitor.heartbeat_interval must be positive"))
	}
	if c.Minio.Enabled && c.Minio.Endpoint == "" {
		errs = append(errs, errors.New("minio.endpoint is required when minio is enabled"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.CommandTopic == "" && c.Kafka.EventTopic == "" {
		errs = append(errs, errors.New("kafka brokers set but no topics configured"))
	}

	return errors.Join(errs...)
}

// KafkaEnabled reports whether a broker list was configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// SMTPEnabled reports whether outgoing mail can be sent.
func (c *Config) SMTPEnabled() bool {
	return c.SMTP.Host != ""
}
