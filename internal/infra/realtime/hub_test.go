package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
)

func testConversation() *domainchat.Conversation {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	return &domainchat.Conversation{
		ID:             "conv-1",
		BuyerID:        "buyer-1",
		SellerID:       "seller-1",
		ListingID:      "listing-1",
		InitiatorID:    "buyer-1",
		LastActivityAt: now,
		CreatedAt:      now,
	}
}

func testMessage() *domainchat.Message {
	return &domainchat.Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		SenderID:       "buyer-1",
		RecipientID:    "seller-1",
		Body:           "hello",
		Kind:           domainchat.KindText,
		Seq:            1,
		CreatedAt:      time.Date(2026, 3, 14, 12, 0, 1, 0, time.UTC),
	}
}

func receiveFrame(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case payload := <-c.send:
		var f frame
		require.NoError(t, json.Unmarshal(payload, &f))
		return f
	default:
		t.Fatal("expected a frame in the send buffer")
		return frame{}
	}
}

func TestHubRoutesMessageToConversationSubscribers(t *testing.T) {
	hub := NewHub(nil)
	viewer := NewClient(nil, "seller-1", "conv-1")
	inboxOnly := NewClient(nil, "seller-1", "")
	otherThread := NewClient(nil, "buyer-2", "conv-2")
	hub.Subscribe(viewer)
	hub.Subscribe(inboxOnly)
	hub.Subscribe(otherThread)

	hub.MessageCreated(context.Background(), testConversation(), testMessage())

	got := receiveFrame(t, viewer)
	assert.Equal(t, domainchat.EventMessageCreated, got.Type)
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.Equal(t, "msg-1", got.MessageID)

	assert.Empty(t, inboxOnly.send, "user channel does not carry conversation frames")
	assert.Empty(t, otherThread.send)
}

func TestHubMessageDeleted(t *testing.T) {
	hub := NewHub(nil)
	viewer := NewClient(nil, "buyer-1", "conv-1")
	hub.Subscribe(viewer)

	hub.MessageDeleted(context.Background(), "conv-1", "msg-1")

	got := receiveFrame(t, viewer)
	assert.Equal(t, domainchat.EventMessageDeleted, got.Type)
	assert.Equal(t, "msg-1", got.MessageID)
}

func TestHubUserNotification(t *testing.T) {
	hub := NewHub(nil)
	seller := NewClient(nil, "seller-1", "")
	buyer := NewClient(nil, "buyer-1", "")
	hub.Subscribe(seller)
	hub.Subscribe(buyer)

	hub.UserNotified(context.Background(), "seller-1", domainchat.UserEvent{
		Type:           domainchat.EventMessageCreated,
		ConversationID: "conv-1",
		MessageID:      "msg-1",
		SenderID:       "buyer-1",
		Preview:        "hello",
		At:             time.Now().UTC(),
	})

	got := receiveFrame(t, seller)
	assert.Equal(t, "notification", got.Type)
	var event userEventFrame
	require.NoError(t, json.Unmarshal(got.Event, &event))
	assert.Equal(t, "hello", event.Preview)
	assert.Equal(t, "msg-1", event.MessageID)

	assert.Empty(t, buyer.send)
}

func TestHubDropsFramesWhenBufferFull(t *testing.T) {
	hub := NewHub(nil)
	slow := NewClient(nil, "seller-1", "conv-1")
	hub.Subscribe(slow)

	// Publishing must never block, even against a full buffer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sendBufferSize+10; i++ {
			hub.MessageCreated(context.Background(), testConversation(), testMessage())
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, slow.send, sendBufferSize)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	viewer := NewClient(nil, "seller-1", "conv-1")
	hub.Subscribe(viewer)
	hub.Unsubscribe(viewer)

	hub.MessageCreated(context.Background(), testConversation(), testMessage())
	assert.Empty(t, viewer.send)
}
