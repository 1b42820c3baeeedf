package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/zhouzirui/tutibot/backend/internal/storage"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Responder ResponderConfig
	Speech    SpeechConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port           string   `envconfig:"PORT" default:"8080"`
	CORSOrigins    []string `envconfig:"CORS_ORIGINS" default:"*"`
	UploadMaxBytes int64    `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`
}

// Addr 解析监听地址，允许传入 "8080"、":8080" 或 "host:8080"。
func (c ServerConfig) Addr() (string, error) {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}
	return ":" + port, nil
}

// StorageConfig 描述会话记录的存储后端。
type StorageConfig struct {
	Driver string `envconfig:"STORAGE_DRIVER" default:"file"`
	Path   string `envconfig:"STORAGE_PATH"`
	Key    string `envconfig:"STORAGE_KEY" default:"tutibot_data"`
}

// ResolvedPath 返回 Path，未设置时使用 data/ 下按驱动区分的默认路径。
func (c StorageConfig) ResolvedPath() string {
	if c.Path != "" {
		return c.Path
	}
	switch c.Driver {
	case storage.DriverBolt:
		return filepath.Join("data", "tutibot.bolt")
	case storage.DriverSQLite:
		return filepath.Join("data", "tutibot.sqlite")
	default:
		return filepath.Join("data", "tutibot.json")
	}
}

// ResponderConfig 描述模拟回复的延迟。
type ResponderConfig struct {
	TextDelay  time.Duration `envconfig:"RESPONDER_TEXT_DELAY" default:"1s"`
	ImageDelay time.Duration `envconfig:"RESPONDER_IMAGE_DELAY" default:"1500ms"`
}

// SpeechConfig 描述语音输入相关配置。
type SpeechConfig struct {
	Enabled  bool   `envconfig:"SPEECH_ENABLED" default:"true"`
	Language string `envconfig:"SPEECH_LANGUAGE" default:"ru-RU"`
}

// LogConfig 描述日志配置。
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig 描述按客户端限流的配置。
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Server.Addr(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case storage.DriverMemory, storage.DriverFile, storage.DriverBolt, storage.DriverSQLite:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER value: %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		return fmt.Errorf("STORAGE_KEY must not be empty")
	}
	if c.Responder.TextDelay < 0 || c.Responder.ImageDelay < 0 {
		return fmt.Errorf("responder delays must not be negative")
	}
	if c.RateLimit.RequestsPerSecond < 1 {
		c.RateLimit.RequestsPerSecond = 1
	}
	if c.RateLimit.Burst < c.RateLimit.RequestsPerSecond {
		c.RateLimit.Burst = c.RateLimit.RequestsPerSecond
	}
	if c.Server.UploadMaxBytes <= 0 {
		c.Server.UploadMaxBytes = 10 << 20
	}
	return nil
}
