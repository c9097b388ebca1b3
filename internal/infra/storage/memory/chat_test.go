package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

func storedConversation(t *testing.T, store *ConversationStore, id domainchat.ConversationID) *domainchat.Conversation {
	t.Helper()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	conv, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:          id,
		RequesterID: "buyer-1",
		RecipientID: "seller-1",
		ListingID:   "listing-1",
		SellerID:    "seller-1",
		Now:         now,
	})
	require.NoError(t, err)
	stored, created, err := store.GetOrCreate(context.Background(), conv)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func TestConversationStoreGetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore()
	first := storedConversation(t, store, "conv-1")

	duplicate, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:          "conv-other-id",
		RequesterID: "seller-1",
		RecipientID: "buyer-1",
		ListingID:   "listing-1",
		SellerID:    "seller-1",
	})
	require.NoError(t, err)

	stored, created, err := store.GetOrCreate(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, stored.ID, "same triple resolves to the stored thread")

	missing, err := store.ByID(ctx, "conv-other-id")
	assert.Nil(t, missing)
	assert.ErrorIs(t, err, domainchat.ErrConversationNotFound)
}

func TestConversationStoreNextSeq(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore()
	conv := storedConversation(t, store, "conv-1")

	const workers = 20
	seqs := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, _, err := store.NextSeq(ctx, conv.ID, time.Now())
			if err == nil {
				seqs[i] = seq
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, workers)
	for _, seq := range seqs {
		assert.False(t, seen[seq], "sequence %d allocated twice", seq)
		seen[seq] = true
		assert.GreaterOrEqual(t, seq, int64(1))
		assert.LessOrEqual(t, seq, int64(workers))
	}

	_, _, err := store.NextSeq(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, domainchat.ErrConversationNotFound)
}

func TestConversationStoreNextSeqClampsRegressingClock(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore()
	conv := storedConversation(t, store, "conv-1")

	later := time.Date(2026, 3, 14, 12, 0, 5, 0, time.UTC)
	earlier := later.Add(-3 * time.Second)

	seq1, at1, err := store.NextSeq(ctx, conv.ID, later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq1)
	assert.True(t, at1.Equal(later))

	// A clock sample taken before the previous allocation must not produce a
	// timestamp that sorts its message first.
	seq2, at2, err := store.NextSeq(ctx, conv.ID, earlier)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq2)
	assert.True(t, at2.Equal(later), "stale sample clamped to the previous commit time")

	ahead := later.Add(2 * time.Second)
	seq3, at3, err := store.NextSeq(ctx, conv.ID, ahead)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq3)
	assert.True(t, at3.Equal(ahead), "advancing clocks pass through unchanged")
}

func TestMessageLogOrderingWithEqualTimestamps(t *testing.T) {
	ctx := context.Background()
	log := NewMessageLog()
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		msg, err := domainchat.NewMessage(domainchat.CreateMessageParams{
			ID:             domainchat.MessageID(fmt.Sprintf("msg-%d", i)),
			ConversationID: "conv-1",
			SenderID:       "buyer-1",
			RecipientID:    "seller-1",
			Body:           fmt.Sprintf("body %d", i),
			Now:            at,
		})
		require.NoError(t, err)
		msg.Seq = int64(i)
		require.NoError(t, log.Append(ctx, msg))
	}

	page, err := log.ListPage(ctx, "conv-1", 1, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(5), page[0].Seq, "newest first")
	assert.Equal(t, int64(4), page[1].Seq)
	assert.Equal(t, int64(3), page[2].Seq)

	rest, err := log.ListPage(ctx, "conv-1", 2, 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, int64(2), rest[0].Seq)
	assert.Equal(t, int64(1), rest[1].Seq)

	latest, err := log.Latest(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), latest.Seq)
}

func TestMessageLogMarkRead(t *testing.T) {
	ctx := context.Background()
	log := NewMessageLog()
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		recipient := "seller-1"
		if i == 3 {
			recipient = "buyer-1"
		}
		msg, err := domainchat.NewMessage(domainchat.CreateMessageParams{
			ID:             domainchat.MessageID(fmt.Sprintf("msg-%d", i)),
			ConversationID: "conv-1",
			SenderID:       "someone",
			RecipientID:    domainuser.ID(recipient),
			Body:           fmt.Sprintf("body %d", i),
			Now:            at,
		})
		require.NoError(t, err)
		msg.Seq = int64(i)
		require.NoError(t, log.Append(ctx, msg))
	}

	marked, err := log.MarkRead(ctx, "conv-1", "seller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	again, err := log.MarkRead(ctx, "conv-1", "seller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), again, "mark-read is idempotent")

	count, err := log.CountUnread(ctx, "buyer-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMessageLogAppendAttachment(t *testing.T) {
	ctx := context.Background()
	log := NewMessageLog()
	msg, err := domainchat.NewMessage(domainchat.CreateMessageParams{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderID:       "buyer-1",
		RecipientID:    "seller-1",
		Body:           "attachment target",
	})
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, msg))

	updated, err := log.AppendAttachment(ctx, "msg-1", domainchat.Attachment{Key: "uploads/a.jpg"})
	require.NoError(t, err)
	assert.Len(t, updated.Attachments, 1)

	// The returned snapshot is a copy; mutating it must not leak back.
	updated.Attachments[0].Key = "tampered"
	fresh, err := log.ByID(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "uploads/a.jpg", fresh.Attachments[0].Key)

	_, err = log.MarkRead(ctx, "conv-1", "seller-1")
	require.NoError(t, err)
	_, err = log.AppendAttachment(ctx, "msg-1", domainchat.Attachment{Key: "uploads/b.jpg"})
	assert.ErrorIs(t, err, domainchat.ErrMessageAlreadyRead)

	_, err = log.AppendAttachment(ctx, "missing", domainchat.Attachment{Key: "uploads/x.jpg"})
	assert.ErrorIs(t, err, domainchat.ErrMessageNotFound)
}

func TestMessageLogDelete(t *testing.T) {
	ctx := context.Background()
	log := NewMessageLog()
	for i := 1; i <= 2; i++ {
		msg, err := domainchat.NewMessage(domainchat.CreateMessageParams{
			ID:             domainchat.MessageID(fmt.Sprintf("msg-%d", i)),
			ConversationID: "conv-1",
			SenderID:       "buyer-1",
			RecipientID:    "seller-1",
			Body:           fmt.Sprintf("body %d", i),
		})
		require.NoError(t, err)
		msg.Seq = int64(i)
		require.NoError(t, log.Append(ctx, msg))
	}

	require.NoError(t, log.Delete(ctx, "msg-1"))
	assert.ErrorIs(t, log.Delete(ctx, "msg-1"), domainchat.ErrMessageNotFound)

	page, err := log.ListPage(ctx, "conv-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, domainchat.MessageID("msg-2"), page[0].ID)
}
