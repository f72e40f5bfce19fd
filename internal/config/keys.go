package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

var allowedKeys = []string{
	"api_url",
	"api_token",
	"db_path",
	"log_level",
	"admin_token",
	"blobs.backend",
	"blobs.root",
	"blobs.s3.endpoint",
	"blobs.s3.region",
	"blobs.s3.bucket",
	"blobs.s3.prefix",
	"blobs.s3.access_key",
	"blobs.s3.secret_key",
	"blobs.s3.insecure",
	"blobs.s3.path_style",
	"blobs.s3.part_size",
	"blobs.s3.create_bucket",
	"attachments.max_upload_bytes",
	"attachments.multipart_max_memory",
	"attachments.allowed_media_types",
	"attachments.public_slots",
	"attachments.gc_grace_period",
	"attachments.gc_batch_size",
	"attachments.upload_concurrency",
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
	case "api_token":
		return c.APIToken, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "admin_token":
		return c.AdminToken, nil
	case "blobs.backend":
		return c.Blobs.Backend, nil
	case "blobs.root":
		return c.Blobs.Root, nil
	case "blobs.s3.endpoint":
		return c.Blobs.S3.Endpoint, nil
	case "blobs.s3.region":
		return c.Blobs.S3.Region, nil
	case "blobs.s3.bucket":
		return c.Blobs.S3.Bucket, nil
	case "blobs.s3.prefix":
		return c.Blobs.S3.Prefix, nil
	case "blobs.s3.access_key":
		return c.Blobs.S3.AccessKey, nil
	case "blobs.s3.secret_key":
		return c.Blobs.S3.SecretKey, nil
	case "blobs.s3.insecure":
		return strconv.FormatBool(c.Blobs.S3.Insecure), nil
	case "blobs.s3.path_style":
		return strconv.FormatBool(c.Blobs.S3.PathStyle), nil
	case "blobs.s3.part_size":
		return strconv.FormatInt(int64(c.Blobs.S3.PartSize), 10), nil
	case "blobs.s3.create_bucket":
		return strconv.FormatBool(c.Blobs.S3.CreateBucket), nil
	case "attachments.max_upload_bytes":
		return strconv.FormatInt(int64(c.Attachments.MaxUploadBytes), 10), nil
	case "attachments.multipart_max_memory":
		return strconv.FormatInt(int64(c.Attachments.MultipartMaxMemory), 10), nil
	case "attachments.allowed_media_types":
		return strings.Join(c.Attachments.AllowedMediaTypes, ","), nil
	case "attachments.public_slots":
		return strings.Join(c.Attachments.PublicSlots, ","), nil
	case "attachments.gc_grace_period":
		return c.Attachments.GCGracePeriod.Std().String(), nil
	case "attachments.gc_batch_size":
		return strconv.Itoa(c.Attachments.GCBatchSize), nil
	case "attachments.upload_concurrency":
		return strconv.Itoa(c.Attachments.UploadConcurrency), nil
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

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "attachments.max_upload_bytes", "attachments.multipart_max_memory", "blobs.s3.part_size":
		size, err := ParseByteSize(value)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("%s must be a positive size", key)
		}
		return int64(size), nil
	case "attachments.gc_batch_size", "attachments.upload_concurrency":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "attachments.gc_grace_period":
		var d Duration
		if err := d.UnmarshalText([]byte(value)); err != nil || d <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration", key)
		}
		return value, nil
	case "blobs.s3.insecure", "blobs.s3.path_style", "blobs.s3.create_bucket":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "attachments.allowed_media_types", "attachments.public_slots":
		return splitCSV(value), nil
	case "blobs.backend":
		value = strings.ToLower(value)
		if value != BlobBackendLocal && value != BlobBackendS3 {
			return nil, fmt.Errorf("blobs.backend must be %q or %q", BlobBackendLocal, BlobBackendS3)
		}
		return value, nil
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
