package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "ORTHO"

// legacyEnv maps config keys to the environment variable names used by
// earlier deployments of the service. They are consulted after the prefixed names.
var legacyEnv = map[string]string{
	"remote.host":  "WEBODM_HOST",
	"remote.token": "WEBODM_TOKEN",
}

// setDefaults registers a default for every known key. Registering a key is also
// what makes viper consider the matching environment variable during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.max_upload_bytes", int64(4)<<30)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.output_dir", "outputs")
	v.SetDefault("storage.scratch_dir", "temp")
	v.SetDefault("storage.unrar_path", "unrar")

	v.SetDefault("remote.host", "https://spark1.webodm.net")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.orthophoto_resolution", 5)
	v.SetDefault("remote.submit_timeout", 300*time.Second)
	v.SetDefault("remote.request_timeout", 30*time.Second)

	v.SetDefault("task.poll_interval", 10*time.Second)
	v.SetDefault("task.poll_timeout", time.Duration(0))
	v.SetDefault("task.max_concurrent", 0)
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Optional config.yaml in the working directory
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
