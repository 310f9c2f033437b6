package config

import (
	"errors"

	"github.com/spf13/viper"
)

var DefaultRenderHome = "~/.renderiq"

var (
	DefaultNotifyTopic  = "renderiq/notifications/outbox"
	DefaultStreamsTopic = "renderiq/streams"
)

var DefaultAspectRatios = []string{"1:1", "4:3", "3:4", "16:9", "9:16", "21:9"}

var (
	ErrRenderHomeNotSet       = errors.New("render home directory is not set")
	ErrRenderHomeExpandFailed = errors.New("failed to expand render home directory")
)

func setDefaults() {
	viper.SetDefault("port", 8881)
	viper.SetDefault("host", "localhost")
	viper.SetDefault("environment", "dev")
	viper.SetDefault("filesystem_type", FilesystemLocal)

	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.dsn", "file:./data/main.db")

	viper.SetDefault("generator.timeout_seconds", 120)
	viper.SetDefault("generator.max_attempts", 2)

	viper.SetDefault("pipeline.max_prompt_length", 4000)
	viper.SetDefault("pipeline.max_reference_bytes", 10<<20)
	viper.SetDefault("pipeline.allowed_aspect_ratios", DefaultAspectRatios)
	viper.SetDefault("pipeline.skip_validation_for_standard", true)
	viper.SetDefault("pipeline.persist_max_attempts", 3)
	viper.SetDefault("pipeline.processing_max_age_seconds", 600)
	viper.SetDefault("pipeline.sweep_interval_seconds", 60)

	viper.SetDefault("webhook.delivery_timeout_seconds", 10)
	viper.SetDefault("webhook.max_attempts", 3)
	viper.SetDefault("webhook.failure_threshold", 10)
	viper.SetDefault("webhook.poll_interval_seconds", 15)
}
