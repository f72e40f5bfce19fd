package config

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:7480"
	DefaultDBFileName  = ".famvault.db"
	DefaultBlobDirName = ".famvault-blobs"
	DefaultLogLevel    = "info"

	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"

	DefaultAttachmentMaxUploadBytes  ByteSize = 10 << 20
	DefaultAttachmentMultipartMemory ByteSize = 1 << 20
	DefaultAttachmentGCBatchSize              = 500
	DefaultAttachmentGCGracePeriod            = Duration(24 * time.Hour)
	DefaultAttachmentUploadConcurrency        = 16

	configFileName           = ".famvault.toml"
	dotEnvFileName           = ".env"
	configDirEnvKey          = "FAMVAULT_CONFIG_DIR"
	trustProjectConfigEnvKey = "FAMVAULT_TRUST_PROJECT_CONFIG"
)

// S3Config configures the S3-compatible blob backend.
type S3Config struct {
	Endpoint     string   `toml:"endpoint" yaml:"endpoint"`
	Region       string   `toml:"region" yaml:"region"`
	Bucket       string   `toml:"bucket" yaml:"bucket"`
	Prefix       string   `toml:"prefix" yaml:"prefix"`
	AccessKey    string   `toml:"access_key" yaml:"access_key"`
	SecretKey    string   `toml:"secret_key" yaml:"secret_key"`
	Insecure     bool     `toml:"insecure" yaml:"insecure"`
	PathStyle    bool     `toml:"path_style" yaml:"path_style"`
	PartSize     ByteSize `toml:"part_size" yaml:"part_size"`
	CreateBucket bool     `toml:"create_bucket" yaml:"create_bucket"`
}

// BlobsConfig selects where blob bytes are kept.
type BlobsConfig struct {
	Backend string   `toml:"backend" yaml:"backend"`
	Root    string   `toml:"root" yaml:"root"`
	S3      S3Config `toml:"s3" yaml:"s3"`
}

// AttachmentConfig defines runtime configuration for attachment handling.
type AttachmentConfig struct {
	MaxUploadBytes     ByteSize `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
	MultipartMaxMemory ByteSize `toml:"multipart_max_memory" yaml:"multipart_max_memory"`
	AllowedMediaTypes  []string `toml:"allowed_media_types" yaml:"allowed_media_types"`
	PublicSlots        []string `toml:"public_slots" yaml:"public_slots"`
	GCGracePeriod      Duration `toml:"gc_grace_period" yaml:"gc_grace_period"`
	GCBatchSize        int      `toml:"gc_batch_size" yaml:"gc_batch_size"`
	UploadConcurrency  int      `toml:"upload_concurrency" yaml:"upload_concurrency"`
}

// Config defines runtime configuration for famvault.
type Config struct {
	APIURL                   string           `toml:"api_url" yaml:"api_url"`
	APIToken                 string           `toml:"api_token" yaml:"api_token"`
	DBPath                   string           `toml:"db_path" yaml:"db_path"`
	LogLevel                 string           `toml:"log_level" yaml:"log_level"`
	AdminToken               string           `toml:"admin_token" yaml:"admin_token"`
	Blobs                    BlobsConfig      `toml:"blobs" yaml:"blobs"`
	Attachments              AttachmentConfig `toml:"attachments" yaml:"attachments"`
	TrustedProjectConfigPath string           `toml:"-" yaml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Blobs: BlobsConfig{
			Backend: BlobBackendLocal,
		},
		Attachments: AttachmentConfig{
			MaxUploadBytes:     DefaultAttachmentMaxUploadBytes,
			MultipartMaxMemory: DefaultAttachmentMultipartMemory,
			PublicSlots:        []string{"image"},
			GCGracePeriod:      DefaultAttachmentGCGracePeriod,
			GCBatchSize:        DefaultAttachmentGCBatchSize,
			UploadConcurrency:  DefaultAttachmentUploadConcurrency,
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

// loadDotEnv loads ./.env when present. Variables already set win.
func loadDotEnv() error {
	if _, err := os.Stat(dotEnvFileName); err != nil {
		return nil
	}
	if err := godotenv.Load(dotEnvFileName); err != nil {
		return fmt.Errorf("failed to load %s: %w", dotEnvFileName, err)
	}
	return nil
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

// Load reads .env, trusted config files and env overrides, in that order.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	cfg := Default()

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

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	if cfg.Blobs.Root == "" && cfg.DBPath != "" {
		cfg.Blobs.Root = filepath.Join(filepath.Dir(cfg.DBPath), DefaultBlobDirName)
	}

	cfg.normalizeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"FAMVAULT_API_URL":       &c.APIURL,
		"FAMVAULT_API_TOKEN":     &c.APIToken,
		"FAMVAULT_DB":            &c.DBPath,
		"FAMVAULT_LOG_LEVEL":     &c.LogLevel,
		"FAMVAULT_ADMIN_TOKEN":   &c.AdminToken,
		"FAMVAULT_BLOB_BACKEND":  &c.Blobs.Backend,
		"FAMVAULT_BLOB_ROOT":     &c.Blobs.Root,
		"FAMVAULT_S3_ENDPOINT":   &c.Blobs.S3.Endpoint,
		"FAMVAULT_S3_REGION":     &c.Blobs.S3.Region,
		"FAMVAULT_S3_BUCKET":     &c.Blobs.S3.Bucket,
		"FAMVAULT_S3_PREFIX":     &c.Blobs.S3.Prefix,
		"FAMVAULT_S3_ACCESS_KEY": &c.Blobs.S3.AccessKey,
		"FAMVAULT_S3_SECRET_KEY": &c.Blobs.S3.SecretKey,
	}
	for key, dst := range strs {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*dst = value
		}
	}

	bools := map[string]*bool{
		"FAMVAULT_S3_INSECURE":   &c.Blobs.S3.Insecure,
		"FAMVAULT_S3_PATH_STYLE": &c.Blobs.S3.PathStyle,
	}
	for key, dst := range bools {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("%s must be true or false", key)
			}
			*dst = parsed
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FAMVAULT_MAX_UPLOAD")); raw != "" {
		size, err := ParseByteSize(raw)
		if err != nil {
			return fmt.Errorf("FAMVAULT_MAX_UPLOAD: %w", err)
		}
		c.Attachments.MaxUploadBytes = size
	}
	if raw := strings.TrimSpace(os.Getenv("FAMVAULT_GC_GRACE")); raw != "" {
		var grace Duration
		if err := grace.UnmarshalText([]byte(raw)); err != nil {
			return fmt.Errorf("FAMVAULT_GC_GRACE: %w", err)
		}
		c.Attachments.GCGracePeriod = grace
	}
	if raw := strings.TrimSpace(os.Getenv("FAMVAULT_ATTACH_ALLOWED_MEDIA_TYPES")); raw != "" {
		c.Attachments.AllowedMediaTypes = splitCSV(raw)
	}
	if raw, ok := os.LookupEnv("FAMVAULT_PUBLIC_SLOTS"); ok {
		c.Attachments.PublicSlots = splitCSV(raw)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Blobs.Backend {
	case BlobBackendLocal:
		if strings.TrimSpace(c.Blobs.Root) == "" {
			return fmt.Errorf("blobs.root is required for the local backend")
		}
	case BlobBackendS3:
		if strings.TrimSpace(c.Blobs.S3.Bucket) == "" {
			return fmt.Errorf("blobs.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown blobs.backend %q", c.Blobs.Backend)
	}
	for _, slot := range c.Attachments.PublicSlots {
		if slot != "image" && slot != "file" {
			return fmt.Errorf("unknown slot %q in attachments.public_slots", slot)
		}
	}
	return nil
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

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Blobs.Backend = strings.ToLower(strings.TrimSpace(c.Blobs.Backend))
	if c.Blobs.Backend == "" {
		c.Blobs.Backend = BlobBackendLocal
	}
	if c.Attachments.MaxUploadBytes <= 0 {
		c.Attachments.MaxUploadBytes = DefaultAttachmentMaxUploadBytes
	}
	if c.Attachments.MultipartMaxMemory <= 0 {
		c.Attachments.MultipartMaxMemory = DefaultAttachmentMultipartMemory
	}
	if c.Attachments.GCBatchSize <= 0 {
		c.Attachments.GCBatchSize = DefaultAttachmentGCBatchSize
	}
	if c.Attachments.GCGracePeriod <= 0 {
		c.Attachments.GCGracePeriod = DefaultAttachmentGCGracePeriod
	}
	if c.Attachments.UploadConcurrency <= 0 {
		c.Attachments.UploadConcurrency = DefaultAttachmentUploadConcurrency
	}
	c.Attachments.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Attachments.AllowedMediaTypes)
	for i, slot := range c.Attachments.PublicSlots {
		c.Attachments.PublicSlots[i] = strings.ToLower(strings.TrimSpace(slot))
	}
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(parsed))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
