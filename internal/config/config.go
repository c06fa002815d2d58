// Package config loads runtime configuration from defaults, an optional YAML
// file, and environment variables, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort             = 8080
	defaultDBPath           = "./data/inventory.db"
	defaultOperationTimeout = 15 * time.Second
	defaultSessionTTL       = 12 * time.Hour
	defaultNotificationTTL  = 3 * time.Second
)

// Storage backends.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Category registry modes.
const (
	CategoryModeManaged = "managed"
	CategoryModeDerived = "derived"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig    `yaml:"server"`
	Storage       StorageConfig   `yaml:"storage"`
	Firestore     FirestoreConfig `yaml:"firestore"`
	Auth          AuthConfig      `yaml:"auth"`
	Inventory     InventoryConfig `yaml:"inventory"`
	Scanner       ScannerConfig   `yaml:"scanner"`
	LogLevel      string          `yaml:"log_level"`
	NotifyTTL     time.Duration   `yaml:"notification_ttl"`
	NotifyBacklog int             `yaml:"notification_backlog"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	StaticPath string `yaml:"static_path"`
}

// StorageConfig selects the document store driver.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	DBPath  string `yaml:"db_path"`
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	EmulatorHost    string `yaml:"emulator_host"`
	CredentialsFile string `yaml:"credentials_file"`
}

// AuthConfig holds session signing and the admin allow-list.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	AdminEmails []string      `yaml:"admin_emails"`
}

// InventoryConfig tunes the inventory controller.
type InventoryConfig struct {
	CategoryMode     string        `yaml:"category_mode"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// ScannerConfig points the keyboard-wedge scanner at an input device.
// An empty Input disables scanning.
type ScannerConfig struct {
	Input string `yaml:"input"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server:    ServerConfig{Port: defaultPort, StaticPath: "./static"},
		Storage:   StorageConfig{Backend: BackendSQLite, DBPath: defaultDBPath},
		Auth:      AuthConfig{SessionTTL: defaultSessionTTL},
		Inventory: InventoryConfig{CategoryMode: CategoryModeManaged, OperationTimeout: defaultOperationTimeout},
		LogLevel:  "info",
		NotifyTTL: defaultNotificationTTL,
	}
}

// Load builds the configuration. If CONFIG_FILE is set the YAML file at that
// path is applied over the defaults before environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.DBPath == "" {
			errs = append(errs, errors.New("storage.db_path is required for sqlite"))
		}
	case BackendFirestore:
		if c.Firestore.ProjectID == "" && os.Getenv("GOOGLE_CLOUD_PROJECT") == "" {
			errs = append(errs, errors.New("firestore.project_id is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	switch c.Inventory.CategoryMode {
	case CategoryModeManaged, CategoryModeDerived:
	default:
		errs = append(errs, fmt.Errorf("unknown category mode %q", c.Inventory.CategoryMode))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("auth.session_ttl must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Server.StaticPath = getEnv("STATIC_PATH", c.Server.StaticPath)
	c.Storage.Backend = strings.ToLower(getEnv("BACKEND", c.Storage.Backend))
	c.Storage.DBPath = getEnv("DB_PATH", c.Storage.DBPath)
	c.Firestore.ProjectID = getEnv("FIRESTORE_PROJECT_ID", c.Firestore.ProjectID)
	c.Firestore.EmulatorHost = getEnv("FIRESTORE_EMULATOR_HOST", c.Firestore.EmulatorHost)
	c.Firestore.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.Firestore.CredentialsFile)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Inventory.CategoryMode = strings.ToLower(getEnv("CATEGORY_MODE", c.Inventory.CategoryMode))
	c.Scanner.Input = getEnv("SCANNER_INPUT", c.Scanner.Input)

	if v := os.Getenv("ADMIN_EMAILS"); v != "" {
		c.Auth.AdminEmails = splitList(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		if c.Server.Port, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
	}
	if c.Inventory.OperationTimeout, err = getDuration("OPERATION_TIMEOUT", c.Inventory.OperationTimeout); err != nil {
		return err
	}
	if c.Auth.SessionTTL, err = getDuration("SESSION_TTL", c.Auth.SessionTTL); err != nil {
		return err
	}
	if c.NotifyTTL, err = getDuration("NOTIFICATION_TTL", c.NotifyTTL); err != nil {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
