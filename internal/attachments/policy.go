package attachments

import "strings"

// Admission reasons reported by the policy evaluator.
const (
	ReasonAdmitted          = "admitted"
	ReasonPrivateWithoutKey = "private attachment without encryption key"
	ReasonTooLarge          = "attachment exceeds per-entry size limit"
	ReasonBlockedMimeType   = "mime type is blocked"
)

// maxEntryShare caps a single entry at 1/10 of the configured cache size so
// one file cannot starve the cache.
const maxEntryShare = 10

// blockedMimeTypes lists executable and installer formats that are never
// admitted, regardless of privacy flags.
var blockedMimeTypes = map[string]struct{}{
	"application/x-executable":                      {},
	"application/x-msdownload":                      {},
	"application/x-msdos-program":                   {},
	"application/x-msi":                             {},
	"application/vnd.microsoft.portable-executable": {},
	"application/x-mach-binary":                     {},
	"application/x-elf":                             {},
	"application/x-apple-diskimage":                 {},
	"application/x-debian-package":                  {},
	"application/x-rpm":                             {},
	"application/vnd.android.package-archive":       {},
}

// Policy decides cache admission. Evaluate is a pure function of the policy
// and the metadata: no clock, no store, no side effects.
type Policy struct {
	// MaxCacheBytes is the configured capacity ceiling for the whole cache.
	MaxCacheBytes int64
	// RespectPrivacy enables the private-without-key rejection rule.
	RespectPrivacy bool
}

// Admission is the outcome of a policy evaluation.
type Admission struct {
	Admitted bool
	Reason   string
}

// Evaluate decides whether the attachment may be cached at all.
func (p Policy) Evaluate(meta Metadata) Admission {
	if p.RespectPrivacy && meta.IsPrivate && meta.EncryptionKeyID == "" {
		return Admission{Reason: ReasonPrivateWithoutKey}
	}

	if p.MaxCacheBytes > 0 && meta.SizeBytes > p.MaxCacheBytes/maxEntryShare {
		return Admission{Reason: ReasonTooLarge}
	}

	if _, blocked := blockedMimeTypes[normalizeMimeType(meta.MimeType)]; blocked {
		return Admission{Reason: ReasonBlockedMimeType}
	}

	return Admission{Admitted: true, Reason: ReasonAdmitted}
}

func normalizeMimeType(mimeType string) string {
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
