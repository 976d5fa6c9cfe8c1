package app

import (
	"github.com/charlesng35/attachvault/internal/attachments"
)

// AttachmentCacheConfig converts the application cache configuration into the
// attachments package representation.
func (c CacheConfig) AttachmentCacheConfig() attachments.Config {
	return attachments.Config{
		MaxCacheBytes:  c.MaxSizeBytes,
		MaxEntryAge:    c.MaxAge,
		MaxAccessCount: c.MaxAccessCount,
		RespectPrivacy: c.RespectPrivacy,
		SignedURLTTL:   c.SignedURLTTL,
		StorageTimeout: c.StorageTimeout,
	}
}

// SigningSecretBytes decodes the optional signed URL secret. An empty secret
// keeps token digests unkeyed.
func (c CacheConfig) SigningSecretBytes() ([]byte, error) {
	if c.SigningSecret == "" {
		return nil, nil
	}
	return DecodeKey(c.SigningSecret)
}
