// Package config loads the TOML configuration of the access layer. Values
// may reference environment variables as {{ .ENV.NAME }}; a .env file next
// to the config file or in the working directory supplies defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/tansive/apiaccess/internal/common/apperrors"
)

// ConfigFormatVersion is the current version of the configuration file format
const ConfigFormatVersion = "0.1.0"

// DefaultConfigFile is the default name of the config file
const DefaultConfigFile = "config.toml"

// formatConstraint accepts any format version of the same minor release.
var formatConstraint = func() *semver.Constraints {
	c, err := semver.NewConstraint("~" + ConfigFormatVersion)
	if err != nil {
		panic(err)
	}
	return c
}()

var (
	ErrConfig        apperrors.Error = apperrors.New("configuration error")
	ErrInvalidConfig apperrors.Error = ErrConfig.New("invalid configuration")
)

// APIConfig holds the API endpoints
type APIConfig struct {
	BaseURL       string `toml:"base_url" validate:"required,url"`
	GraphQLPath   string `toml:"graphql_path" validate:"omitempty,startswith=/"`
	AnalyticsPath string `toml:"analytics_path" validate:"omitempty,startswith=/"`
}

// IdentityConfig holds the identity service settings
type IdentityConfig struct {
	BaseURL  string `toml:"base_url" validate:"required,url"`
	LoginURL string `toml:"login_url" validate:"omitempty,url"` // where to send the user after a 401
	CacheTTL string `toml:"cache_ttl" validate:"omitempty,duration"`
}

// GetCacheTTL returns the authorization cache TTL; zero keeps answers for
// the life of the process.
func (i *IdentityConfig) GetCacheTTL() time.Duration {
	d, _ := ParseDuration(i.CacheTTL)
	return d
}

// AnalyticsConfig holds the analytics batching settings
type AnalyticsConfig struct {
	Disabled bool   `toml:"disabled"`
	Window   string `toml:"window" validate:"omitempty,duration"`
}

// GetWindow returns the batching window, zero meaning the default.
func (a *AnalyticsConfig) GetWindow() time.Duration {
	d, _ := ParseDuration(a.Window)
	return d
}

// HTTPConfig holds transport settings
type HTTPConfig struct {
	Timeout            string `toml:"timeout" validate:"omitempty,duration"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// GetTimeout returns the client timeout; zero means none.
func (h *HTTPConfig) GetTimeout() time.Duration {
	d, _ := ParseDuration(h.Timeout)
	return d
}

// StorageConfig selects where the session is kept
type StorageConfig struct {
	Driver    string `toml:"driver" validate:"omitempty,oneof=memory file redis"`
	FilePath  string `toml:"file_path"`
	RedisURL  string `toml:"redis_url" validate:"required_if=Driver redis"`
	RedisTTL  string `toml:"redis_ttl" validate:"omitempty,duration"`
	SessionID string `toml:"session_id"`
}

// GetRedisTTL returns the redis session TTL.
func (s *StorageConfig) GetRedisTTL() time.Duration {
	d, _ := ParseDuration(s.RedisTTL)
	return d
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
}

// ConfigParam holds all configuration parameters
type ConfigParam struct {
	FormatVersion string `toml:"format_version" validate:"required"` // Version of this configuration file format

	API       APIConfig       `toml:"api"`
	Identity  IdentityConfig  `toml:"identity"`
	Analytics AnalyticsConfig `toml:"analytics"`
	HTTP      HTTPConfig      `toml:"http"`
	Storage   StorageConfig   `toml:"storage"`
	Log       LogConfig       `toml:"log"`
}

// ParseDuration parses a Go duration ("90s", "1h30m") or a number of days
// ("7d"). The empty string is zero.
func ParseDuration(input string) (time.Duration, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(input, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid number of days: %s", days)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(input)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration: %s", input)
	}
	return d, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := ParseDuration(fl.Field().String())
		return err == nil
	})
	return v
}

// ValidateConfig checks that cfg is complete and fills in defaults.
func ValidateConfig(cfg *ConfigParam) error {
	if cfg.FormatVersion == "" {
		return ErrInvalidConfig.Msg("format_version is required")
	}
	version, err := semver.NewVersion(cfg.FormatVersion)
	if err != nil || !formatConstraint.Check(version) {
		return ErrInvalidConfig.Msg("unsupported config file format version: " + cfg.FormatVersion)
	}

	if err := newValidator().Struct(cfg); err != nil {
		return ErrInvalidConfig.MsgErr(describeValidation(err), err)
	}

	if cfg.API.GraphQLPath == "" {
		cfg.API.GraphQLPath = "/graphql"
	}
	if cfg.API.AnalyticsPath == "" {
		cfg.API.AnalyticsPath = "/analytics"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Driver == "file" && cfg.Storage.FilePath == "" {
		stateDir, err := defaultStateDir()
		if err != nil {
			return ErrInvalidConfig.MsgErr("unable to determine session file location", err)
		}
		cfg.Storage.FilePath = filepath.Join(stateDir, "session.yaml")
	}
	if cfg.Storage.SessionID == "" {
		cfg.Storage.SessionID = "default"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}

// Parse decodes and validates a configuration. envFiles are passed to
// Preprocess.
func Parse(content []byte, envFiles ...string) (*ConfigParam, error) {
	processed, err := Preprocess(content, envFiles...)
	if err != nil {
		return nil, ErrInvalidConfig.MsgErr("unable to preprocess config", err)
	}
	cfg := &ConfigParam{}
	if _, err := toml.Decode(string(processed), cfg); err != nil {
		return nil, ErrInvalidConfig.MsgErr("error parsing config file", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from a file. An empty filename uses the
// default location.
func LoadConfig(filename string) (*ConfigParam, error) {
	if filename == "" {
		var err error
		filename, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, ErrConfig.MsgErr("error reading config file", err)
	}
	envFiles := []string{filepath.Join(filepath.Dir(filename), ".env")}
	if cwd, err := os.Getwd(); err == nil {
		envFiles = append(envFiles, filepath.Join(cwd, ".env"))
	}
	return Parse(content, envFiles...)
}

// DefaultConfigPath returns the default path for the config file, in the
// OS-specific config directory (e.g. ~/.config/apiaccess on Linux).
func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", ErrConfig.MsgErr("failed to get user config directory", err)
	}
	return filepath.Join(configDir, "apiaccess", DefaultConfigFile), nil
}

func defaultStateDir() (string, error) {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "apiaccess"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".apiaccess"), nil
}
