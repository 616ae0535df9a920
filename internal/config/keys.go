package config

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Key describes a known configuration key.
type Key struct {
	Key         string // Full key name (e.g., "broker.sigil")
	Description string // Human-readable description
	Secret      bool   // If true, `config get` masks the value
	Default     string // Default value (empty = no default)
	Validate    func(string) error
}

// EnvVar returns the environment variable that overrides the key.
func (k Key) EnvVar() string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(k.Key))
}

// Keys defines every configuration key illsync reads.
var Keys = []Key{
	// Broker
	{
		Key:         "broker.base_url",
		Description: "Libris ILL API base URL",
		Default:     "https://iller.libris.kb.se/librisfjarrlan/api",
		Validate:    validateURL,
	},
	{
		Key:         "broker.sigil",
		Description: "Library sigil used in broker API paths",
	},
	{
		Key:         "broker.api_key",
		Description: "Broker API key",
		Secret:      true,
	},
	{
		Key:         "broker.timeout",
		Description: "HTTP timeout for broker calls",
		Default:     "30s",
		Validate:    validateDuration,
	},
	{
		Key:         "broker.catalog_url",
		Description: "Catalogue search URL for bibliographic lookups",
		Default:     "https://libris.kb.se/xsearch",
		Validate:    validateURL,
	},
	{
		Key:         "broker.fetch_retry_max_elapsed",
		Description: "Upper bound on retrying transient GET failures",
		Default:     "10s",
		Validate:    validateDuration,
	},
	// Storage
	{
		Key:         "db.backend",
		Description: "Storage backend (memory, sqlite, mysql, postgres)",
		Default:     "sqlite",
		Validate:    oneOf("memory", "sqlite", "mysql", "postgres"),
	},
	{
		Key:         "db.dsn",
		Description: "Data source name for the storage backend",
		Default:     DirName + "/ill.db",
		Secret:      true,
	},
	// Lifecycle
	{
		Key:         "lifecycle.strict_transitions",
		Description: "Refuse actions the status graph does not allow",
		Default:     "true",
		Validate:    validateBool,
	},
	{
		Key:         "lifecycle.attribute_mode",
		Description: "Attribute write mode (upsert, append)",
		Default:     "upsert",
		Validate:    oneOf("upsert", "append"),
	},
	{
		Key:         "lifecycle.closed_item_type",
		Description: "Item type assigned when a loan is closed",
		Default:     "ILL-CLOSED",
	},
	{
		Key:         "lifecycle.loan_item_type",
		Description: "Item type assigned to received loans",
		Default:     "ILL",
	},
	// Notification
	{
		Key:         "notification.templates",
		Description: "Path to a TOML file overriding notice templates",
	},
	{
		Key:         "notification.email_command",
		Description: "Command used to send email notices",
		Default:     "mail",
	},
	{
		Key:         "notification.webhook_url",
		Description: "Webhook receiving every patron notice",
		Validate:    validateURL,
	},
	// Logging
	{
		Key:         "log.level",
		Description: "Log level (debug, info, warn, error)",
		Default:     "info",
		Validate:    validateLogLevel,
	},
	{
		Key:         "log.json",
		Description: "Emit JSON logs",
		Default:     "false",
		Validate:    validateBool,
	},
	// Sweep
	{
		Key:         "sweep.concurrency",
		Description: "Parallel broker fetches during sync",
		Default:     "4",
		Validate:    validatePositiveInt,
	},
	{
		Key:         "sweep.directions",
		Description: "Comma-separated directions swept by sync (in, out); empty means both",
		Validate:    validateDirections,
	},
}

// keyIndex maps key names to their definitions for O(1) lookup.
var keyIndex map[string]*Key

func init() {
	keyIndex = make(map[string]*Key, len(Keys))
	for i := range Keys {
		keyIndex[Keys[i].Key] = &Keys[i]
	}
}

// LookupKey returns the definition for a key, or nil if unknown.
func LookupKey(key string) *Key {
	return keyIndex[key]
}

// IsKnownKey returns true if key is a recognised configuration key.
func IsKnownKey(key string) bool {
	_, ok := keyIndex[key]
	return ok
}

// KeyNames returns all known keys, sorted.
func KeyNames() []string {
	names := make([]string, 0, len(Keys))
	for _, k := range Keys {
		names = append(names, k.Key)
	}
	sort.Strings(names)
	return names
}

// ValidateKey checks that key is known and value passes its validator.
// Empty values are accepted; they mean "use the default".
func ValidateKey(key, value string) error {
	k := LookupKey(key)
	if k == nil {
		return fmt.Errorf("unknown config key %q", key)
	}
	if value != "" && k.Validate != nil {
		if err := k.Validate(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL, got %q", s)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", s)
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("not a duration: %q", s)
	}
	if d < 0 {
		return fmt.Errorf("must not be negative: %s", s)
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateLogLevel(s string) error {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", s)
	}
}

func validateBool(s string) error {
	if _, err := strconv.ParseBool(s); err != nil {
		return fmt.Errorf("invalid boolean %q", s)
	}
	return nil
}

func validateDirections(s string) error {
	for _, d := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(d)) {
		case "in", "out":
		default:
			return fmt.Errorf("invalid direction %q (expected in, out)", d)
		}
	}
	return nil
}

func oneOf(allowed ...string) func(string) error {
	return func(s string) error {
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return fmt.Errorf("%q is not one of %s", s, strings.Join(allowed, ", "))
	}
}
