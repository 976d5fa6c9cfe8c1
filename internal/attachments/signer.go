package attachments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// TokenSigner derives deterministic access tokens for signed URLs. The digest
// covers the attachment id and the expiry timestamp, so issuer and validator
// reproduce it independently without shared mutable state, and a token for one
// attachment reveals nothing about another's.
//
// With an empty secret the token is a plain SHA-256 digest: anyone who knows
// the attachment id can mint a token, and the defense is solely the expiry
// and access budget. Supplying a secret upgrades the digest to HMAC-SHA256,
// making tokens unforgeable without the server key.
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner builds a signer. secret may be nil.
func NewTokenSigner(secret []byte) *TokenSigner {
	return &TokenSigner{secret: append([]byte(nil), secret...)}
}

// Issue returns the access token for (attachmentID, expiresAt).
func (s *TokenSigner) Issue(attachmentID string, expiresAt time.Time) string {
	payload := attachmentID + "\n" + strconv.FormatInt(expiresAt.Unix(), 10)

	if len(s.secret) > 0 {
		mac := hmac.New(sha256.New, s.secret)
		mac.Write([]byte(payload))
		return hex.EncodeToString(mac.Sum(nil))
	}

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Validate checks the first two failure modes of signed URL validation:
// expiry, then digest. The access budget of the stored entry is the caller's
// third check. Comparison is constant time.
func (s *TokenSigner) Validate(attachmentID, token string, expiresAt, now time.Time) bool {
	if now.After(expiresAt) {
		return false
	}

	expected := s.Issue(attachmentID, expiresAt)
	return hmac.Equal([]byte(expected), []byte(token))
}
