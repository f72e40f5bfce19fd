package config

import (
	"io"

	"gopkg.in/yaml.v3"
)

const maskedSecret = "********"

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	out := c
	for _, secret := range []*string{&out.APIToken, &out.AdminToken, &out.Blobs.S3.SecretKey, &out.Blobs.S3.AccessKey} {
		if *secret != "" {
			*secret = maskedSecret
		}
	}
	return out
}

// WriteYAML renders the effective config with secrets masked.
func (c Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Redacted()); err != nil {
		return err
	}
	return enc.Close()
}
