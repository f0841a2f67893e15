// Package config loads campwatch settings from defaults, an optional YAML
// file, a .env file and CAMPWATCH_* environment variables, in increasing
// order of precedence. Command-line flags bound to the same viper instance
// win over all of them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jmylchreest/campwatch/internal/artifacts"
	"github.com/jmylchreest/campwatch/internal/resilience"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CAMPWATCH"

// ErrInvalid marks a configuration that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the application configuration.
type Config struct {
	ArtifactRoot string `mapstructure:"artifact_root" validate:"required"`
	BrowserPath  string `mapstructure:"browser_path"`
	ProxyURL     string `mapstructure:"proxy_url" validate:"omitempty,url"`
	RegistryFile string `mapstructure:"registry_file"`
	DatabaseURL  string `mapstructure:"database_url"`

	Parallel   int  `mapstructure:"parallel" validate:"gte=1,lte=32"`
	Lookahead  int  `mapstructure:"lookahead" validate:"gte=0,lte=365"`
	StayNights int  `mapstructure:"stay_nights" validate:"gte=1,lte=60"`
	Headless   bool `mapstructure:"headless"`
	HTTPOnly   bool `mapstructure:"http_only"`

	RunTimeout     time.Duration `mapstructure:"run_timeout" validate:"gt=0"`
	AdapterTimeout time.Duration `mapstructure:"adapter_timeout" validate:"gt=0"`

	Retry     resilience.RetryPolicy   `mapstructure:"retry"`
	Breaker   resilience.BreakerConfig `mapstructure:"breaker"`
	Challenge ChallengeConfig          `mapstructure:"challenge"`
	Capture   CaptureConfig            `mapstructure:"capture"`
}

// ChallengeConfig bounds anti-bot clearance polling.
type ChallengeConfig struct {
	Budget       time.Duration `mapstructure:"budget" validate:"gt=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0,ltefield=Budget"`
}

// CaptureConfig controls what is kept of intercepted traffic.
type CaptureConfig struct {
	// MaxBody is a human size such as "256KB".
	MaxBody string `mapstructure:"max_body" validate:"required"`
}

// MaxBodyBytes parses MaxBody.
func (c CaptureConfig) MaxBodyBytes() (int64, error) {
	return artifacts.ParseSize(c.MaxBody)
}

// SetDefaults registers every key with its default.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("artifact_root", "artifacts")
	v.SetDefault("browser_path", "")
	v.SetDefault("proxy_url", "")
	v.SetDefault("registry_file", "")
	v.SetDefault("database_url", "")

	v.SetDefault("parallel", 3)
	v.SetDefault("lookahead", 14)
	v.SetDefault("stay_nights", 7)
	v.SetDefault("headless", true)
	v.SetDefault("http_only", false)

	v.SetDefault("run_timeout", 15*time.Minute)
	v.SetDefault("adapter_timeout", 3*time.Minute)

	retry := resilience.DefaultRetryPolicy()
	v.SetDefault("retry.attempts", retry.Attempts)
	v.SetDefault("retry.initial_delay", retry.InitialDelay)
	v.SetDefault("retry.multiplier", retry.Multiplier)
	v.SetDefault("retry.max_delay", retry.MaxDelay)
	v.SetDefault("retry.jitter", retry.Jitter)

	breaker := resilience.DefaultBreakerConfig()
	v.SetDefault("breaker.failure_threshold", breaker.FailureThreshold)
	v.SetDefault("breaker.recovery_timeout", breaker.RecoveryTimeout)

	v.SetDefault("challenge.budget", 30*time.Second)
	v.SetDefault("challenge.poll_interval", time.Second)

	v.SetDefault("capture.max_body", "256KB")
}

// Init prepares v: defaults, .env files, environment binding and the
// config file. cfgFile may be empty, in which case .campwatch.yaml is
// looked up in $HOME and the working directory. envFiles default to .env.
func Init(v *viper.Viper, cfgFile string, envFiles ...string) error {
	SetDefaults(v)

	if err := loadEnvFiles(envFiles); err != nil {
		return err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("browser_path", EnvPrefix+"_BROWSER_PATH", "CHROME_BIN")
	_ = v.BindEnv("proxy_url", EnvPrefix+"_PROXY_URL", "HTTPS_PROXY")
	_ = v.BindEnv("database_url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".campwatch")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("%w: error reading config file: %v", ErrInvalid, err)
		}
	}
	return nil
}

// loadEnvFiles loads .env style files without overriding variables that
// are already set. A missing default .env is not an error.
func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("%w: loading %s: %v", ErrInvalid, filepath.Base(f), err)
		}
	}
	return nil
}

var validate = validator.New()

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and formats.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s%s'", strings.TrimPrefix(e.Namespace(), "Config."), e.Tag(), param(e.Param())))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.Capture.MaxBodyBytes(); err != nil {
		return fmt.Errorf("%w: capture.max_body: %v", ErrInvalid, err)
	}
	return nil
}

func param(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}
