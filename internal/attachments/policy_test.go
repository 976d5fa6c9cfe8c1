package attachments

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{MaxCacheBytes: 1000, RespectPrivacy: true}
}

func TestPolicyAdmitsOrdinaryAttachment(t *testing.T) {
	admission := testPolicy().Evaluate(Metadata{
		AttachmentID:   "att-1",
		FileName:       "document.pdf",
		MimeType:       "application/pdf",
		SizeBytes:      99,
		ConversationID: "conv-1",
	})
	require.True(t, admission.Admitted)
	require.Equal(t, ReasonAdmitted, admission.Reason)
}

func TestPolicyRejectsPrivateWithoutKey(t *testing.T) {
	meta := Metadata{
		AttachmentID:   "att-1",
		FileName:       "secret.png",
		MimeType:       "image/png",
		SizeBytes:      10,
		ConversationID: "conv-1",
		IsPrivate:      true,
	}

	admission := testPolicy().Evaluate(meta)
	require.False(t, admission.Admitted)
	require.Equal(t, ReasonPrivateWithoutKey, admission.Reason)

	// With a key handle present the same metadata is admitted.
	meta.EncryptionKeyID = "conv-1"
	require.True(t, testPolicy().Evaluate(meta).Admitted)

	// With privacy enforcement disabled the rule is off entirely.
	lax := Policy{MaxCacheBytes: 1000, RespectPrivacy: false}
	meta.EncryptionKeyID = ""
	require.True(t, lax.Evaluate(meta).Admitted)
}

func TestPolicyRejectsOversizedEntry(t *testing.T) {
	policy := testPolicy() // 10% ceiling = 100 bytes

	admitted := policy.Evaluate(Metadata{
		AttachmentID: "att-1", FileName: "a", MimeType: "image/png",
		SizeBytes: 100, ConversationID: "conv-1",
	})
	require.True(t, admitted.Admitted)

	rejected := policy.Evaluate(Metadata{
		AttachmentID: "att-2", FileName: "b", MimeType: "image/png",
		SizeBytes: 101, ConversationID: "conv-1",
	})
	require.False(t, rejected.Admitted)
	require.Equal(t, ReasonTooLarge, rejected.Reason)
}

func TestPolicyRejectsBlockedMimeTypes(t *testing.T) {
	for _, mimeType := range []string{
		"application/x-executable",
		"application/x-msdownload",
		"APPLICATION/X-MSI",
		"application/x-executable; charset=binary",
	} {
		admission := testPolicy().Evaluate(Metadata{
			AttachmentID: "att-exe", FileName: "malware.exe", MimeType: mimeType,
			SizeBytes: 10, ConversationID: "conv-1",
		})
		require.False(t, admission.Admitted, "mime type %q should be blocked", mimeType)
		require.Equal(t, ReasonBlockedMimeType, admission.Reason)
	}
}

func TestPolicyIsReferentiallyTransparent(t *testing.T) {
	meta := Metadata{
		AttachmentID: "att-1", FileName: "a.pdf", MimeType: "application/pdf",
		SizeBytes: 50, ConversationID: "conv-1",
	}

	first := testPolicy().Evaluate(meta)
	for range 10 {
		require.Equal(t, first, testPolicy().Evaluate(meta))
	}
}
