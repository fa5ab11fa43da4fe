package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// 固定参数
const (
	Columns        = 100
	FrameRate      = 30
	TempFrameName  = "temp_frame.png"
	DefaultEnvFile = ".env"
)

type Config struct {
	InputVideoPath   string
	OutputVideoPath  string
	OutputFramesPath string

	FFmpegPath    string        // 为空时使用 PATH 中的 ffmpeg
	EncodeTimeout time.Duration // 0 表示不设超时
	LogLevel      string
	LogFormat     string // text | json
}

// Load 读取 .env（不存在则忽略）与环境变量，命令行参数随后覆盖
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	timeout, err := getEnvAsDuration("VIDEO2ASCII_ENCODE_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}

	return &Config{
		FFmpegPath:    getEnv("VIDEO2ASCII_FFMPEG", ""),
		EncodeTimeout: timeout,
		LogLevel:      getEnv("VIDEO2ASCII_LOG_LEVEL", "info"),
		LogFormat:     getEnv("VIDEO2ASCII_LOG_FORMAT", "text"),
	}, nil
}

// Validate 检查必填路径与日志设置
func (c *Config) Validate() error {
	var missing []string
	if c.InputVideoPath == "" {
		missing = append(missing, "input video path")
	}
	if c.OutputVideoPath == "" {
		missing = append(missing, "output video path")
	}
	if c.OutputFramesPath == "" {
		missing = append(missing, "output frames path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required %s", strings.Join(missing, ", "))
	}
	if c.EncodeTimeout < 0 {
		return fmt.Errorf("encode timeout must not be negative: %s", c.EncodeTimeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (expected text|json)", c.LogFormat)
	}
	return nil
}

// ConfigureLogging 按配置设置 logrus 的级别与格式
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
