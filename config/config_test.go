package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VIDEO2ASCII_FFMPEG", "")
	t.Setenv("VIDEO2ASCII_ENCODE_TIMEOUT", "")
	t.Setenv("VIDEO2ASCII_LOG_LEVEL", "")
	t.Setenv("VIDEO2ASCII_LOG_FORMAT", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.FFmpegPath)
	assert.Equal(t, time.Duration(0), cfg.EncodeTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("VIDEO2ASCII_FFMPEG", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("VIDEO2ASCII_ENCODE_TIMEOUT", "90s")
	t.Setenv("VIDEO2ASCII_LOG_LEVEL", "debug")
	t.Setenv("VIDEO2ASCII_LOG_FORMAT", "json")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 90*time.Second, cfg.EncodeTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("VIDEO2ASCII_LOG_LEVEL", "")
	// godotenv 不覆盖已存在的变量，这里先清掉
	os.Unsetenv("VIDEO2ASCII_LOG_LEVEL")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("VIDEO2ASCII_LOG_LEVEL=warn\n"), 0o644))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_BadTimeout(t *testing.T) {
	t.Setenv("VIDEO2ASCII_ENCODE_TIMEOUT", "soon")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		InputVideoPath:   "in.mp4",
		OutputVideoPath:  "out.mp4",
		OutputFramesPath: "frames",
		LogLevel:         "info",
		LogFormat:        "text",
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing_input", func(c *Config) { c.InputVideoPath = "" }, true},
		{"missing_output", func(c *Config) { c.OutputVideoPath = "" }, true},
		{"missing_frames", func(c *Config) { c.OutputFramesPath = "" }, true},
		{"negative_timeout", func(c *Config) { c.EncodeTimeout = -time.Second }, true},
		{"bad_level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"bad_format", func(c *Config) { c.LogFormat = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	defer logrus.SetFormatter(logrus.StandardLogger().Formatter)

	cfg := &Config{LogLevel: "debug", LogFormat: "json"}
	require.NoError(t, cfg.ConfigureLogging())

	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)
}
