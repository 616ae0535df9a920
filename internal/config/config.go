// Package config owns the process-wide viper instance. Values come from
// (highest first) explicit Set calls, ILL_* environment variables,
// .illsync/config.yaml and the defaults registered in Initialize.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// DirName is the per-project configuration directory.
const DirName = ".illsync"

// FileName is the configuration file inside DirName.
const FileName = "config.yaml"

// EnvPrefix prefixes every environment override (broker.sigil -> ILL_BROKER_SIGIL).
const EnvPrefix = "ILL"

var v *viper.Viper

// Initialize sets up the viper instance. It is safe to call more than once;
// each call starts from a clean instance.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, k := range Keys {
		if k.Default != "" {
			v.SetDefault(k.Key, k.Default)
		}
	}

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// findConfigFile walks up from cwd looking for .illsync/config.yaml, then
// falls back to $XDG_CONFIG_HOME/illsync/config.yaml (or ~/.config).
func findConfigFile() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; dir = filepath.Dir(dir) {
			p := filepath.Join(dir, DirName, FileName)
			if _, err := os.Stat(p); err == nil {
				return p
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}
	if p := userConfigPath(); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func userConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "illsync", FileName)
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// ResetForTesting drops the current instance so the next Initialize starts fresh.
func ResetForTesting() {
	v = nil
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// Set sets a configuration value for the lifetime of the process.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// Settings is the typed view of the configuration.
type Settings struct {
	Broker       BrokerSettings       `mapstructure:"broker"`
	DB           DBSettings           `mapstructure:"db"`
	Lifecycle    LifecycleSettings    `mapstructure:"lifecycle"`
	Notification NotificationSettings `mapstructure:"notification"`
	Log          LogSettings          `mapstructure:"log"`
	Sweep        SweepSettings        `mapstructure:"sweep"`
}

type BrokerSettings struct {
	BaseURL              string        `mapstructure:"base_url"`
	Sigil                string        `mapstructure:"sigil"`
	APIKey               string        `mapstructure:"api_key"`
	Timeout              time.Duration `mapstructure:"timeout"`
	CatalogURL           string        `mapstructure:"catalog_url"`
	FetchRetryMaxElapsed time.Duration `mapstructure:"fetch_retry_max_elapsed"`
}

type DBSettings struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

type LifecycleSettings struct {
	StrictTransitions bool   `mapstructure:"strict_transitions"`
	AttributeMode     string `mapstructure:"attribute_mode"`
	ClosedItemType    string `mapstructure:"closed_item_type"`
	LoanItemType      string `mapstructure:"loan_item_type"`
}

type NotificationSettings struct {
	Templates    string `mapstructure:"templates"`
	EmailCommand string `mapstructure:"email_command"`
	WebhookURL   string `mapstructure:"webhook_url"`
}

type LogSettings struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type SweepSettings struct {
	Concurrency int      `mapstructure:"concurrency"`
	Directions  []string `mapstructure:"directions"`
}

// Load decodes the current configuration into Settings and validates every
// known key. Initialize must have been called.
func Load() (*Settings, error) {
	if v == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	for _, k := range Keys {
		if err := ValidateKey(k.Key, v.GetString(k.Key)); err != nil {
			return nil, err
		}
	}

	s := &Settings{}
	// AutomaticEnv only answers Get calls, so env-only keys are copied in
	// explicitly before decoding.
	raw := make(map[string]interface{}, len(Keys))
	for _, k := range Keys {
		if v.IsSet(k.Key) {
			raw[k.Key] = v.Get(k.Key)
		}
	}
	flat := viper.New()
	for key, val := range raw {
		flat.Set(key, val)
	}
	if err := flat.Unmarshal(s, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return s, nil
}
