package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"  validate:"required"`
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
	Remote  RemoteConfig  `mapstructure:"remote"  validate:"required"`
	Task    TaskConfig    `mapstructure:"task"    validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// MaxUploadBytes caps the size of a single uploaded archive.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"gt=0"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Address returns the listen address for the HTTP server.
func (s ServerConfig) Address() string {
	return fmt.Sprintf(":%d", s.Port)
}

// StorageConfig contains the on-disk layout used for archives and results.
type StorageConfig struct {
	// UploadDir holds raw uploaded archives named <task_id>.<ext>
	UploadDir string `mapstructure:"upload_dir" validate:"required"`

	// OutputDir holds downloaded result archives named <task_id>.zip
	OutputDir string `mapstructure:"output_dir" validate:"required"`

	// ScratchDir holds one extraction directory per running task
	ScratchDir string `mapstructure:"scratch_dir" validate:"required"`

	// UnrarPath is the external tool used to unpack .rar archives
	UnrarPath string `mapstructure:"unrar_path" validate:"required"`
}

// RemoteConfig contains settings for the remote photogrammetry service.
type RemoteConfig struct {
	Host string `mapstructure:"host" validate:"required,url"`

	// Token may be empty; the remote service then rejects calls on its own.
	Token string `mapstructure:"token"`

	OrthophotoResolution float64       `mapstructure:"orthophoto_resolution" validate:"gt=0"`
	SubmitTimeout        time.Duration `mapstructure:"submit_timeout"        validate:"gt=0"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"       validate:"gt=0"`
}

// TaskConfig contains settings for the background task lifecycle.
type TaskConfig struct {
	// PollInterval is the fixed delay between remote status queries
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`

	// PollTimeout stops polling after this long; zero polls forever
	PollTimeout time.Duration `mapstructure:"poll_timeout" validate:"gte=0"`

	// MaxConcurrent limits how many pipelines run at once; zero means unbounded
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"gte=0"`
}
