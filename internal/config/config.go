package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"aienv/pkg/environment"
)

const (
	// FileName is the config file name looked up without extension.
	FileName = "aienv"
	// EnvPrefix prefixes every environment override, e.g. AIENV_ENV_NAME.
	EnvPrefix = "AIENV"
)

// Config is the fully resolved aienv configuration.
type Config struct {
	EnvName   string          `mapstructure:"env_name" validate:"required"`
	Layout    string          `mapstructure:"layout" validate:"omitempty,oneof=windows posix"`
	Verbose   bool            `mapstructure:"verbose"`
	Locator   LocatorConfig   `mapstructure:"locator"`
	Commands  CommandsConfig  `mapstructure:"commands"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Launcher  LauncherConfig  `mapstructure:"launcher"`
	Container ContainerConfig `mapstructure:"container"`
	Apps      []AppConfig     `mapstructure:"apps" validate:"dive"`
}

type LocatorConfig struct {
	// Roots replaces the platform default candidate roots when non-empty.
	Roots []string `mapstructure:"roots"`
	// Override points directly at an installation root (AI_ENV_PATH).
	Override string `mapstructure:"override"`
}

type CommandsConfig struct {
	Timeout               time.Duration `mapstructure:"timeout" validate:"gt=0"`
	PackageManagerTimeout time.Duration `mapstructure:"package_manager_timeout" validate:"gt=0"`
}

type OllamaConfig struct {
	Host        string        `mapstructure:"host" validate:"required,hostname|ip"`
	Port        int           `mapstructure:"port" validate:"min=1,max=65535"`
	Model       string        `mapstructure:"model" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ListTimeout time.Duration `mapstructure:"list_timeout" validate:"gt=0"`
}

type LauncherConfig struct {
	ReadyTimeout time.Duration `mapstructure:"ready_timeout" validate:"gt=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	OpenBrowser  bool          `mapstructure:"open_browser"`
}

type ContainerConfig struct {
	Image string `mapstructure:"image" validate:"required"`
	Name  string `mapstructure:"name" validate:"required"`
}

// AppConfig declares an extra launchable application.
type AppConfig struct {
	Name    string `mapstructure:"name" validate:"required"`
	Command string `mapstructure:"command" validate:"required"`
	Port    int    `mapstructure:"port" validate:"min=0,max=65535"`
	Path    string `mapstructure:"path"`
	Dir     string `mapstructure:"dir"`
}

// OllamaURL returns the base URL of the generative-text server.
func (c *Config) OllamaURL() string {
	return fmt.Sprintf("http://%s:%d", c.Ollama.Host, c.Ollama.Port)
}

// EnvironmentLayout resolves the configured layout, defaulting by OS.
func (c *Config) EnvironmentLayout() environment.Layout {
	if c.Layout == "" {
		return environment.DefaultLayout()
	}
	return environment.LayoutByName(c.Layout)
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env_name", environment.DefaultEnvName)
	v.SetDefault("layout", "")
	v.SetDefault("verbose", false)
	v.SetDefault("locator.roots", []string{})
	v.SetDefault("locator.override", "")
	v.SetDefault("commands.timeout", 30*time.Second)
	v.SetDefault("commands.package_manager_timeout", 15*time.Second)
	v.SetDefault("ollama.host", "localhost")
	v.SetDefault("ollama.port", 11434)
	v.SetDefault("ollama.model", environment.DefaultModelName)
	v.SetDefault("ollama.timeout", 60*time.Second)
	v.SetDefault("ollama.list_timeout", 5*time.Second)
	v.SetDefault("launcher.ready_timeout", 30*time.Second)
	v.SetDefault("launcher.poll_interval", 250*time.Millisecond)
	v.SetDefault("launcher.open_browser", true)
	v.SetDefault("container.image", "ollama/ollama:latest")
	v.SetDefault("container.name", "aienv-ollama")
}

// Default returns the configuration used when no file or override exists.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("invalid built-in defaults: %v", err))
	}
	return &cfg
}

// Load reads configFile, or aienv.yaml from the working directory and
// $HOME/.config/aienv when configFile is empty, applies AIENV_* overrides
// and validates the result. A missing default config file is not an error.
func Load(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configFile)
		}
	}
	return load(viper.New(), configFile)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("locator.override", "AIENV_LOCATOR_OVERRIDE", environment.VarInstallRoot); err != nil {
		return nil, fmt.Errorf("failed to bind override variable: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "aienv"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file - malformed YAML: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, formatValidationError(err)
	}

	return &cfg, nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validation failed: %w", err)
	}

	var messages []string
	for _, e := range validationErrors {
		messages = append(messages, formatFieldError(e))
	}

	if len(messages) == 1 {
		return fmt.Errorf("validation error: %s", messages[0])
	}

	var b strings.Builder
	b.WriteString("validation errors:\n")
	for _, msg := range messages {
		fmt.Fprintf(&b, "  - %s\n", msg)
	}
	return errors.New(b.String())
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("field '%s' must be a positive duration", field)
	case "hostname|ip":
		return fmt.Sprintf("field '%s' must be a host name or IP address", field)
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, e.Tag())
	}
}
