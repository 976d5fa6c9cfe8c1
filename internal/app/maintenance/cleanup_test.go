package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/attachvault/internal/attachments"
	"github.com/charlesng35/attachvault/internal/database/testutil"
	"github.com/charlesng35/attachvault/internal/messages"
	"github.com/charlesng35/attachvault/internal/vault"
	"github.com/charlesng35/attachvault/pkg/crypto"
)

func testCrypto(t *testing.T) *vault.Crypto {
	t.Helper()
	vc, err := vault.NewCrypto(vault.WithPBKDF2Parameters(crypto.PBKDF2Parameters{
		Iterations: 100_000,
		KeyLength:  32,
	}))
	require.NoError(t, err)
	return vc
}

func TestRunOnceSweepsCacheAndMessages(t *testing.T) {
	ctx := context.Background()
	vc := testCrypto(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	clock := func() time.Time { return current }

	cache, err := attachments.New(testutil.MustOpenTestDB(t), vc, attachments.Config{
		MaxCacheBytes:  10_000,
		MaxEntryAge:    time.Hour,
		MaxAccessCount: 100,
		SignedURLTTL:   15 * time.Minute,
		StorageTimeout: 5 * time.Second,
	}, attachments.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	msgSvc, err := messages.NewService(testutil.MustOpenTestDB(t), vc, time.Hour)
	require.NoError(t, err)

	require.NoError(t, cache.Cache(ctx, "att-1", []byte("x"), attachments.Metadata{
		AttachmentID:   "att-1",
		FileName:       "a.txt",
		MimeType:       "text/plain",
		SizeBytes:      1,
		ConversationID: "conv-1",
	}, nil))
	require.NoError(t, msgSvc.Store(ctx, messages.StoredMessage{
		ConversationID: "conv-1",
		MessageID:      "msg-1",
		Content:        []byte("hello"),
	}))

	cleaner := NewCleaner(cache, msgSvc)

	// Nothing is stale yet.
	require.NoError(t, cleaner.RunOnce(ctx))
	item, err := cache.Get(ctx, "att-1")
	require.NoError(t, err)
	require.NotNil(t, item)

	current = base.Add(2 * time.Hour)
	require.NoError(t, cleaner.RunOnce(ctx))

	item, err = cache.Get(ctx, "att-1")
	require.NoError(t, err)
	require.Nil(t, item)

	// Message cleanup uses the wall clock; the stored message is younger than
	// an hour in real time and must survive.
	msg, err := msgSvc.Get(ctx, "conv-1", "msg-1")
	require.NoError(t, err)
	require.NotNil(t, msg)
}

func TestRunOnceWithNoDependencies(t *testing.T) {
	cleaner := NewCleaner(nil, nil)
	require.NoError(t, cleaner.RunOnce(context.Background()))
	require.NoError(t, cleaner.Start())
	<-cleaner.Stop().Done()
}

func TestStartRegistersCronJob(t *testing.T) {
	cache, err := attachments.New(testutil.MustOpenTestDB(t), testCrypto(t), attachments.Config{
		MaxCacheBytes:  10_000,
		SignedURLTTL:   15 * time.Minute,
		StorageTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	cleaner := NewCleaner(cache, nil, WithCron(c), WithCacheSchedule("@every 1h"))

	require.NoError(t, cleaner.Start())
	require.Len(t, c.Entries(), 1)
	<-cleaner.Stop().Done()
}

func TestWithCacheScheduleRejectsEmptySpec(t *testing.T) {
	cleaner := NewCleaner(nil, nil, WithCacheSchedule(""))
	require.Equal(t, defaultCacheSpec, cleaner.cacheSchedule)
}
