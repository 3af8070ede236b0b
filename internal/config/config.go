package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Notifier kinds selectable via config.
const (
	NotifierRedis = "redis"
	NotifierAMQP  = "amqp"
	NotifierNone  = "none"
)

// MinioConfig holds optional object-store settings for the concept corpus.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
	Bucket    string `yaml:"bucket"`
	Object    string `yaml:"object"`
}

// Enabled reports whether the object-store source is configured.
func (m MinioConfig) Enabled() bool {
	return strings.TrimSpace(m.Endpoint) != "" && strings.TrimSpace(m.Bucket) != "" && strings.TrimSpace(m.Object) != ""
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL  string `yaml:"databaseURL"`
	EmbeddingDim int    `yaml:"embeddingDim"`

	OllamaBaseURL   string `yaml:"ollamaBaseURL"`
	GenerationModel string `yaml:"generationModel"`
	EmbeddingModel  string `yaml:"embeddingModel"`
	MockAssistant   bool   `yaml:"mockAssistant"`

	ConversationID  string `yaml:"conversationID"`
	AssistantUserID string `yaml:"assistantUserID"`

	TopConcepts            int `yaml:"topConcepts"`
	PollIntervalSeconds    int `yaml:"pollIntervalSeconds"`
	GenerateTimeoutSeconds int `yaml:"generateTimeoutSeconds"`

	Notifier      string `yaml:"notifier"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	AMQPURL       string `yaml:"amqpURL"`

	InternalTokenSecret  string   `yaml:"internalTokenSecret"`
	InternalTokenIssuers []string `yaml:"internalTokenIssuers"`

	MessageLimit         int `yaml:"messageLimit"`
	MessageWindowSeconds int `yaml:"messageWindowSeconds"`

	ConceptsPath string      `yaml:"conceptsPath"`
	Minio        MinioConfig `yaml:"minio"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Override with environment variables.
func applyEnvOverrides(cfg *FileConfig) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.OllamaBaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("INTERNAL_TOKEN_SECRET"); v != "" {
		cfg.InternalTokenSecret = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Minio.SecretKey = v
	}
	if v := os.Getenv("MOCK_ASSISTANT"); v != "" {
		if mock, err := strconv.ParseBool(v); err == nil {
			cfg.MockAssistant = mock
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.OllamaBaseURL == "" {
		cfg.OllamaBaseURL = "http://127.0.0.1:11434"
	}
	if cfg.ConversationID == "" {
		cfg.ConversationID = "main"
	}
	if cfg.AssistantUserID == "" {
		cfg.AssistantUserID = "cheryl"
	}
	if cfg.Notifier == "" {
		cfg.Notifier = NotifierNone
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 30
	}
	if cfg.MessageWindowSeconds <= 0 {
		cfg.MessageWindowSeconds = 60
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if !cfg.MockAssistant {
		if cfg.GenerationModel == "" {
			return errors.New("config: generationModel is required (set in config.yaml)")
		}
		if cfg.EmbeddingModel == "" {
			return errors.New("config: embeddingModel is required (set in config.yaml)")
		}
	}
	switch cfg.Notifier {
	case NotifierNone:
	case NotifierRedis:
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis notifier")
		}
	case NotifierAMQP:
		if cfg.AMQPURL == "" {
			return errors.New("config: amqpURL is required for the amqp notifier")
		}
	default:
		return fmt.Errorf("config: unknown notifier %q (use redis, amqp, or none)", cfg.Notifier)
	}
	if cfg.InternalTokenSecret != "" && len(cfg.InternalTokenIssuers) == 0 {
		return errors.New("config: internalTokenIssuers is required when internalTokenSecret is set")
	}
	if cfg.Minio.Enabled() && cfg.ConceptsPath != "" {
		return errors.New("config: set either conceptsPath or minio corpus settings, not both")
	}
	return nil
}
