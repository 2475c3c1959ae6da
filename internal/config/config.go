// Package config loads till's settings from a JSON file and TILL_*
// environment variables, environment taking precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marcus/till/internal/models"
)

// EnvPrefix prefixes every environment override (TILL_REMOTE_ENDPOINT, ...).
const EnvPrefix = "TILL"

const fileName = "till.json"

// ErrUnknownKey is returned by Set for keys that have no default.
var ErrUnknownKey = errors.New("unknown config key")

// Config is the full settings tree.
type Config struct {
	DataDir      string             `mapstructure:"data_dir"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Printer      PrinterConfig      `mapstructure:"printer"`
	Shop         models.ShopMeta    `mapstructure:"shop"`
	API          APIConfig          `mapstructure:"api"`
	Log          LogConfig          `mapstructure:"log"`
}

type RemoteConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	Project             string        `mapstructure:"project"`
	APIKey              string        `mapstructure:"api_key"`
	Database            string        `mapstructure:"database"`
	Session             string        `mapstructure:"session"`
	SalesCollection     string        `mapstructure:"sales_collection"`
	PurchasesCollection string        `mapstructure:"purchases_collection"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

type ConnectivityConfig struct {
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
}

type SyncConfig struct {
	MaxAttempts int  `mapstructure:"max_attempts"`
	OnStart     bool `mapstructure:"on_start"`
}

type PrinterConfig struct {
	Name        string        `mapstructure:"name"`
	Addr        string        `mapstructure:"addr"`
	ChunkSize   int           `mapstructure:"chunk_size"`
	ChunkDelay  time.Duration `mapstructure:"chunk_delay"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Services    []string      `mapstructure:"services"`
}

type APIConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// defaults lists every known key. Keys absent here cannot be set.
func defaults() map[string]any {
	return map[string]any{
		"data_dir":                    defaultDataDir(),
		"remote.endpoint":             "",
		"remote.project":              "",
		"remote.api_key":              "",
		"remote.database":             "",
		"remote.session":              "",
		"remote.sales_collection":     "sales",
		"remote.purchases_collection": "purchases",
		"remote.timeout":              "15s",
		"connectivity.url":            "",
		"connectivity.interval":       "10s",
		"sync.max_attempts":           0,
		"sync.on_start":               true,
		"printer.name":                "MT580P",
		"printer.addr":                "",
		"printer.chunk_size":          50,
		"printer.chunk_delay":         "20ms",
		"printer.dial_timeout":        "5s",
		"printer.services": []string{
			"000018f0-0000-1000-8000-00805f9b34fb",
			"0000ff00-0000-1000-8000-00805f9b34fb",
			"49535343-fe7d-4ae5-8fa9-9fafd205e455",
			"e7810a71-73ae-499d-8c15-faa9aef0c3f2",
		},
		"shop.name":        "",
		"shop.address":     "",
		"shop.phone":       "",
		"shop.email":       "",
		"shop.user_id":     "",
		"api.listen":       "127.0.0.1:8787",
		"api.cors_origins": []string{"http://localhost:5173"},
		"log.level":        "info",
		"log.format":       "text",
	}
}

// Keys returns every settable key, sorted.
func Keys() []string {
	d := defaults()
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "till")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".till"
	}
	return filepath.Join(home, ".local", "share", "till")
}

// DefaultPath returns ~/.config/till/till.json.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return fileName
	}
	return filepath.Join(dir, "till", fileName)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (a missing file is fine) and applies environment overrides.
// An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Set stores value under key in the file at path, leaving other keys as they
// are. Durations and numbers are validated before anything is written.
func Set(path, key, value string) error {
	if path == "" {
		path = DefaultPath()
	}
	key = strings.ToLower(strings.TrimSpace(key))
	def, ok := defaults()[key]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}

	parsed, err := parseValue(def, value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	file := viper.New()
	file.SetConfigFile(path)
	file.SetConfigType("json")
	if err := file.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	file.Set(key, parsed)
	return Save(path, file.AllSettings())
}

func parseValue(def any, value string) (any, error) {
	switch d := def.(type) {
	case int:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("want an integer, got %q", value)
		}
		return n, nil
	case bool:
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("want true or false, got %q", value)
	case []string:
		if value == "" {
			return []string{}, nil
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return slices.DeleteFunc(parts, func(s string) bool { return s == "" }), nil
	case string:
		if isDuration(d) {
			if _, err := time.ParseDuration(value); err != nil {
				return nil, fmt.Errorf("want a duration such as 10s, got %q", value)
			}
		}
	}
	return value, nil
}

func isDuration(s string) bool {
	if s == "" {
		return false
	}
	_, err := time.ParseDuration(s)
	return err == nil
}

// Save writes settings to path using atomic write (temp file + rename).
func Save(path string, settings map[string]any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "till-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}

// Collections maps record kinds to remote collection ids.
func (c *Config) Collections() map[models.Kind]string {
	return map[models.Kind]string{
		models.KindSale:     c.Remote.SalesCollection,
		models.KindPurchase: c.Remote.PurchasesCollection,
	}
}

// RemoteConfigured reports whether enough is set to reach the store.
func (c *Config) RemoteConfigured() bool {
	return c.Remote.Endpoint != "" && c.Remote.Project != "" && c.Remote.Database != ""
}

// ProbeURL is the URL polled for connectivity.
func (c *Config) ProbeURL() string {
	if c.Connectivity.URL != "" {
		return c.Connectivity.URL
	}
	if c.Remote.Endpoint == "" {
		return ""
	}
	return strings.TrimRight(c.Remote.Endpoint, "/") + "/health/version"
}

// Printers maps the configured printer name to its address.
func (c *Config) Printers() map[string]string {
	if c.Printer.Addr == "" {
		return map[string]string{}
	}
	return map[string]string{c.Printer.Name: c.Printer.Addr}
}

// Redacted returns settings safe to print: secrets are masked.
func Redacted(c *Config) map[string]any {
	return map[string]any{
		"data_dir": c.DataDir,
		"remote": map[string]any{
			"endpoint":             c.Remote.Endpoint,
			"project":              c.Remote.Project,
			"api_key":              mask(c.Remote.APIKey),
			"database":             c.Remote.Database,
			"session":              mask(c.Remote.Session),
			"sales_collection":     c.Remote.SalesCollection,
			"purchases_collection": c.Remote.PurchasesCollection,
			"timeout":              c.Remote.Timeout.String(),
		},
		"connectivity": map[string]any{
			"url":      c.ProbeURL(),
			"interval": c.Connectivity.Interval.String(),
		},
		"sync": map[string]any{
			"max_attempts": c.Sync.MaxAttempts,
			"on_start":     c.Sync.OnStart,
		},
		"printer": map[string]any{
			"name":         c.Printer.Name,
			"addr":         c.Printer.Addr,
			"chunk_size":   c.Printer.ChunkSize,
			"chunk_delay":  c.Printer.ChunkDelay.String(),
			"dial_timeout": c.Printer.DialTimeout.String(),
			"services":     c.Printer.Services,
		},
		"shop": map[string]any{
			"name":    c.Shop.Name,
			"address": c.Shop.Address,
			"phone":   c.Shop.Phone,
			"email":   c.Shop.Email,
			"user_id": c.Shop.UserID,
		},
		"api": map[string]any{
			"listen":       c.API.Listen,
			"cors_origins": c.API.CORSOrigins,
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	}
	return s[:4] + "****"
}
