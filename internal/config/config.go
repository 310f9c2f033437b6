package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FilesystemLocal = "local"
	FilesystemS3    = "s3"
)

const envPrefix = "RENDER"

type Config struct {
	Port           int    `mapstructure:"port"`
	Host           string `mapstructure:"host"`
	Environment    string `mapstructure:"environment"`
	RenderHome     string `mapstructure:"render_home"`
	AssetsDir      string `mapstructure:"assets_dir"`
	TempDir        string `mapstructure:"temp_dir"`
	PublicDir      string `mapstructure:"public_dir"`
	FilesystemType string `mapstructure:"filesystem_type"`

	DB        *DBConfig        `mapstructure:"db"`
	S3        *S3Config        `mapstructure:"s3"`
	Pulsar    *PulsarConfig    `mapstructure:"pulsar"`
	OpenAI    *OpenAIConfig    `mapstructure:"openai"`
	Generator *GeneratorConfig `mapstructure:"generator"`
	Pipeline  *PipelineConfig  `mapstructure:"pipeline"`
	Webhook   *WebhookConfig   `mapstructure:"webhook"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type S3Config struct {
	Folder      string `mapstructure:"folder"`
	Region      string `mapstructure:"region_name"`
	Bucket      string `mapstructure:"bucket_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	VanityUrl   string `mapstructure:"vanity_url"`
	EndpointUrl string `mapstructure:"endpoint_url"`
}

type PulsarConfig struct {
	URL string `mapstructure:"url"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// GeneratorConfig configures the remote model invocation backend.
type GeneratorConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
}

type PipelineConfig struct {
	MaxPromptLength           int      `mapstructure:"max_prompt_length"`
	MaxReferenceBytes         int      `mapstructure:"max_reference_bytes"`
	AllowedAspectRatios       []string `mapstructure:"allowed_aspect_ratios"`
	SkipValidationForStandard bool     `mapstructure:"skip_validation_for_standard"`
	PersistMaxAttempts        int      `mapstructure:"persist_max_attempts"`
	ProcessingMaxAgeSeconds   int      `mapstructure:"processing_max_age_seconds"`
	SweepIntervalSeconds      int      `mapstructure:"sweep_interval_seconds"`
}

type WebhookConfig struct {
	DeliveryTimeoutSeconds int `mapstructure:"delivery_timeout_seconds"`
	MaxAttempts            int `mapstructure:"max_attempts"`
	FailureThreshold       int `mapstructure:"failure_threshold"`
	PollIntervalSeconds    int `mapstructure:"poll_interval_seconds"`
}

var config *Config

func LoadEnvAndConfigFiles() error {
	renderHome, err := getRenderHome()
	if err != nil {
		return err
	}

	viper.Set("render_home", renderHome)
	viper.SetDefault("assets_dir", filepath.Join(renderHome, "assets"))
	viper.SetDefault("temp_dir", filepath.Join(renderHome, "temp"))

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(renderHome, ".env")
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	viper.AutomaticEnv()

	configFile := viper.GetString("config_file")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
		viper.AddConfigPath(renderHome)
	}

	setDefaults()

	if err := loadConfig(); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			fmt.Println("No config file found. Using default config.")
		} else {
			return err
		}
	}

	return nil
}

func loadConfig() error {
	if err := viper.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	config = cfg
	return nil
}

func IsLoaded() bool {
	return config != nil
}

func MustGetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

// Returns the render home directory path, from the first of:
// 1. The `render_home` flag from viper.
// 2. The `RENDER_HOME` environment variable.
// 3. The default home directory.
func getRenderHome() (string, error) {
	renderHome := viper.GetString("render_home")
	if renderHome == "" {
		renderHome = os.Getenv("RENDER_HOME")
		if renderHome == "" {
			renderHome = DefaultRenderHome
		}
	}

	renderHome, err := expandPath(renderHome)
	if err != nil {
		return "", ErrRenderHomeExpandFailed
	}

	return renderHome, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	return filepath.Abs(path)
}
