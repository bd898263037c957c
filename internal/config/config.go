package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL          = "http://127.0.0.1:5050"
	DefaultLogLevel        = "info"
	DefaultJournalFileName = ".cosensync.db"
	DefaultStorageBackend  = "local"
	DefaultStorageDir      = "uploads"
	DefaultStorageMount    = "/uploads"

	DefaultMaxUploadBytes     int64 = 20 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024
	DefaultRejectMismatch           = true
	DefaultMaxExportBytes     int64 = 64 * 1024 * 1024

	configFileName           = ".cosensync.toml"
	configDirEnvKey          = "COSENSYNC_CONFIG_DIR"
	trustProjectConfigEnvKey = "COSENSYNC_TRUST_PROJECT_CONFIG"
	envFileEnvKey            = "COSENSYNC_ENV_FILE"
)

// S3Config configures the S3 storage backend.
type S3Config struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint" validate:"omitempty,url"`
	Prefix          string `toml:"prefix"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	PublicBase      string `toml:"public_base" validate:"omitempty,url"`
}

// StorageConfig selects and configures the blob store.
type StorageConfig struct {
	Backend string   `toml:"backend" validate:"oneof=local s3"`
	Dir     string   `toml:"dir" validate:"required_if=Backend local"`
	Mount   string   `toml:"mount" validate:"required,startswith=/"`
	S3      S3Config `toml:"s3"`
}

// UploadConfig limits upload handling.
type UploadConfig struct {
	MaxUploadBytes          int64 `toml:"max_upload_bytes" validate:"gt=0"`
	MultipartMaxMemory      int64 `toml:"multipart_max_memory" validate:"gt=0"`
	RejectMediaTypeMismatch bool  `toml:"reject_media_type_mismatch"`
}

// GCConfig limits garbage collection requests.
type GCConfig struct {
	MaxExportBytes int64 `toml:"max_export_bytes" validate:"gt=0"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Config defines runtime configuration for cosensync.
type Config struct {
	APIURL                   string        `toml:"api_url" validate:"required,url"`
	PublicBaseURL            string        `toml:"public_base_url" validate:"omitempty,url"`
	LogLevel                 string        `toml:"log_level"`
	JournalPath              string        `toml:"journal_path"`
	Storage                  StorageConfig `toml:"storage"`
	Uploads                  UploadConfig  `toml:"uploads"`
	GC                       GCConfig      `toml:"gc"`
	CORS                     CORSConfig    `toml:"cors"`
	TrustedProjectConfigPath string        `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Backend: DefaultStorageBackend,
			Dir:     DefaultStorageDir,
			Mount:   DefaultStorageMount,
		},
		Uploads: UploadConfig{
			MaxUploadBytes:          DefaultMaxUploadBytes,
			MultipartMaxMemory:      DefaultMultipartMaxMemory,
			RejectMediaTypeMismatch: DefaultRejectMismatch,
		},
		GC: GCConfig{
			MaxExportBytes: DefaultMaxExportBytes,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

// loadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are never overwritten.
func loadEnvFile() error {
	path := strings.TrimSpace(os.Getenv(envFileEnvKey))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// Load reads config from trusted files, applies env overrides and validates
// the result.
func Load() (*Config, error) {
	cfg := Default()

	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = parsed
			}
		}
	}

	setString("COSENSYNC_API_URL", &c.APIURL)
	setString("COSENSYNC_PUBLIC_BASE_URL", &c.PublicBaseURL)
	setString("COSENSYNC_JOURNAL", &c.JournalPath)
	setString("COSENSYNC_STORAGE_BACKEND", &c.Storage.Backend)
	setString("COSENSYNC_STORAGE_DIR", &c.Storage.Dir)
	setString("COSENSYNC_STORAGE_MOUNT", &c.Storage.Mount)
	setString("COSENSYNC_S3_BUCKET", &c.Storage.S3.Bucket)
	setString("COSENSYNC_S3_REGION", &c.Storage.S3.Region)
	setString("COSENSYNC_S3_ENDPOINT", &c.Storage.S3.Endpoint)
	setString("COSENSYNC_S3_PREFIX", &c.Storage.S3.Prefix)
	setString("COSENSYNC_S3_ACCESS_KEY_ID", &c.Storage.S3.AccessKeyID)
	setString("COSENSYNC_S3_SECRET_ACCESS_KEY", &c.Storage.S3.SecretAccessKey)
	setString("COSENSYNC_S3_PUBLIC_BASE", &c.Storage.S3.PublicBase)
	setInt64("COSENSYNC_MAX_UPLOAD_BYTES", &c.Uploads.MaxUploadBytes)
	setInt64("COSENSYNC_MAX_EXPORT_BYTES", &c.GC.MaxExportBytes)

	if raw := strings.TrimSpace(os.Getenv("COSENSYNC_REJECT_MEDIA_TYPE_MISMATCH")); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			c.Uploads.RejectMediaTypeMismatch = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("COSENSYNC_CORS_ALLOWED_ORIGINS")); raw != "" {
		c.CORS.AllowedOrigins = splitCSV(raw)
	}
}

func (c *Config) normalize() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Storage.Mount == "" {
		c.Storage.Mount = DefaultStorageMount
	}
	if len(c.Storage.Mount) > 1 {
		c.Storage.Mount = strings.TrimRight(c.Storage.Mount, "/")
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	c.Storage.S3.PublicBase = strings.TrimRight(c.Storage.S3.PublicBase, "/")

	if c.Uploads.MaxUploadBytes <= 0 {
		c.Uploads.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Uploads.MultipartMaxMemory <= 0 {
		c.Uploads.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	if c.GC.MaxExportBytes <= 0 {
		c.GC.MaxExportBytes = DefaultMaxExportBytes
	}
	if c.JournalPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.JournalPath = filepath.Join(cwd, DefaultJournalFileName)
		}
	}
}

var allowedKeys = []string{
	"api_url",
	"public_base_url",
	"log_level",
	"journal_path",
	"storage.backend",
	"storage.dir",
	"storage.mount",
	"storage.s3.bucket",
	"storage.s3.region",
	"storage.s3.endpoint",
	"storage.s3.prefix",
	"storage.s3.access_key_id",
	"storage.s3.secret_access_key",
	"storage.s3.public_base",
	"uploads.max_upload_bytes",
	"uploads.multipart_max_memory",
	"uploads.reject_media_type_mismatch",
	"gc.max_export_bytes",
	"cors.allowed_origins",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "public_base_url":
		return c.PublicBaseURL, nil
	case "log_level":
		return c.LogLevel, nil
	case "journal_path":
		return c.JournalPath, nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "storage.dir":
		return c.Storage.Dir, nil
	case "storage.mount":
		return c.Storage.Mount, nil
	case "storage.s3.bucket":
		return c.Storage.S3.Bucket, nil
	case "storage.s3.region":
		return c.Storage.S3.Region, nil
	case "storage.s3.endpoint":
		return c.Storage.S3.Endpoint, nil
	case "storage.s3.prefix":
		return c.Storage.S3.Prefix, nil
	case "storage.s3.access_key_id":
		return c.Storage.S3.AccessKeyID, nil
	case "storage.s3.secret_access_key":
		if c.Storage.S3.SecretAccessKey == "" {
			return "", nil
		}
		return "********", nil
	case "storage.s3.public_base":
		return c.Storage.S3.PublicBase, nil
	case "uploads.max_upload_bytes":
		return strconv.FormatInt(c.Uploads.MaxUploadBytes, 10), nil
	case "uploads.multipart_max_memory":
		return strconv.FormatInt(c.Uploads.MultipartMaxMemory, 10), nil
	case "uploads.reject_media_type_mismatch":
		return strconv.FormatBool(c.Uploads.RejectMediaTypeMismatch), nil
	case "gc.max_export_bytes":
		return strconv.FormatInt(c.GC.MaxExportBytes, 10), nil
	case "cors.allowed_origins":
		return strings.Join(c.CORS.AllowedOrigins, ","), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_upload_bytes", "uploads.multipart_max_memory", "gc.max_export_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "uploads.reject_media_type_mismatch":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "storage.backend":
		value = strings.ToLower(value)
		if value != "local" && value != "s3" {
			return nil, fmt.Errorf("%s must be local or s3", key)
		}
		return value, nil
	case "storage.mount":
		if !strings.HasPrefix(value, "/") {
			return nil, fmt.Errorf("%s must start with /", key)
		}
		return value, nil
	case "cors.allowed_origins":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
