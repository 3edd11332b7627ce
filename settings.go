package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the tunables read from zipatch.yaml and ZIPATCH_* variables
type Settings struct {
	OpenTries          int     `mapstructure:"open_tries"`
	OpenRetrySeconds   float64 `mapstructure:"open_retry_seconds"`
	LoopCaptureSize    int     `mapstructure:"loop_capture_size"`
	VerifyChecksums    bool    `mapstructure:"verify_checksums"`
	UserAgent          string  `mapstructure:"user_agent"`
	HTTPTimeoutSeconds int     `mapstructure:"http_timeout_seconds"`
	HTTPRetries        int     `mapstructure:"http_retries"`
	DownloadSpeedLimit string  `mapstructure:"download_speed_limit"`
}

// defaultConfigPaths are searched in order for zipatch.yaml
var defaultConfigPaths = []string{".", "$HOME/.zipatch", "/etc/zipatch"}

// LoadSettings reads the settings file, if any, from configPaths and applies env overrides
func LoadSettings(configPaths ...string) (*Settings, error) {
	if len(configPaths) == 0 {
		configPaths = defaultConfigPaths
	}

	v := viper.New()
	v.SetConfigName("zipatch")
	v.SetConfigType("yaml")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	// Set defaults
	v.SetDefault("open_tries", 5)
	v.SetDefault("open_retry_seconds", 1.0)
	v.SetDefault("loop_capture_size", 16384)
	v.SetDefault("verify_checksums", false)
	v.SetDefault("user_agent", "ZiPatchClient")
	v.SetDefault("http_timeout_seconds", 30)
	v.SetDefault("http_retries", 5)
	v.SetDefault("download_speed_limit", "")

	// Allow environment variables
	v.SetEnvPrefix("ZIPATCH")
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &settings, nil
}

// OpenRetryDelay converts the configured retry pause to a duration
func (s *Settings) OpenRetryDelay() time.Duration {
	return time.Duration(s.OpenRetrySeconds * float64(time.Second))
}

// HTTPTimeout is the response header timeout for remote patches
func (s *Settings) HTTPTimeout() time.Duration {
	return time.Duration(s.HTTPTimeoutSeconds) * time.Second
}
