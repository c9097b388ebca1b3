package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
	"github.com/Lookout84/agromarket/internal/infra/storage/memory"
)

// recorderNotifier captures fan-out calls for assertions.
type recorderNotifier struct {
	mu         sync.Mutex
	messages   []*domainchat.Message
	deleted    []domainchat.MessageID
	userEvents map[domainuser.ID][]domainchat.UserEvent
}

func newRecorderNotifier() *recorderNotifier {
	return &recorderNotifier{userEvents: make(map[domainuser.ID][]domainchat.UserEvent)}
}

func (r *recorderNotifier) MessageCreated(ctx context.Context, conv *domainchat.Conversation, msg *domainchat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorderNotifier) MessageDeleted(ctx context.Context, conversationID domainchat.ConversationID, messageID domainchat.MessageID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, messageID)
}

func (r *recorderNotifier) UserNotified(ctx context.Context, userID domainuser.ID, event domainchat.UserEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userEvents[userID] = append(r.userEvents[userID], event)
}

type fixture struct {
	service  *Service
	users    *memory.UserRepository
	listings *memory.ListingRepository
	notifier *recorderNotifier

	buyer     domainuser.ID
	seller    domainuser.ID
	moderator domainuser.ID
	stranger  domainuser.ID
	listing   domainlistings.ListingID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	users := memory.NewUserRepository()
	listingRepo := memory.NewListingRepository()
	notifier := newRecorderNotifier()

	f := &fixture{
		users:     users,
		listings:  listingRepo,
		notifier:  notifier,
		buyer:     "buyer-1",
		seller:    "seller-1",
		moderator: "moderator-1",
		stranger:  "stranger-1",
		listing:   "listing-1",
	}

	accounts := []*domainuser.User{
		{ID: f.buyer, Email: "buyer@example.com", Name: "Buyer", Roles: []domainuser.Role{domainuser.RoleBuyer}},
		{ID: f.seller, Email: "seller@example.com", Name: "Seller", Roles: []domainuser.Role{domainuser.RoleSeller}},
		{ID: f.moderator, Email: "mod@example.com", Name: "Moderator", Roles: []domainuser.Role{domainuser.RoleModerator}},
		{ID: f.stranger, Email: "stranger@example.com", Name: "Stranger", Roles: []domainuser.Role{domainuser.RoleBuyer}},
	}
	for _, account := range accounts {
		require.NoError(t, users.Save(ctx, account))
	}

	listing, err := domainlistings.NewListing(domainlistings.CreateParams{
		ID:         f.listing,
		SellerID:   f.seller,
		Title:      "John Deere 8R 410",
		Category:   "tractors",
		PriceCents: 18_000_000_00,
		CreatedAt:  now,
	})
	require.NoError(t, err)
	require.NoError(t, listing.Publish(now))
	require.NoError(t, listingRepo.Save(ctx, listing))

	f.service = &Service{
		Conversations: memory.NewConversationStore(),
		Messages:      memory.NewMessageLog(),
		Identities:    IdentityFromUsers{Users: users},
		Listings:      ListingsFromRepository{Listings: listingRepo},
		Notifier:      notifier,
		Clock:         func() time.Time { return now },
	}
	return f
}

func TestGetOrCreateConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("creates once, repeat calls resolve to it", func(t *testing.T) {
		f := newFixture(t)
		conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
		require.NoError(t, err)
		assert.Equal(t, f.buyer, conv.BuyerID)
		assert.Equal(t, f.seller, conv.SellerID)
		assert.Equal(t, f.buyer, conv.InitiatorID)

		again, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
		require.NoError(t, err)
		assert.Equal(t, conv.ID, again.ID)
		assert.Empty(t, f.notifier.messages, "creation itself does not fan out")
	})

	t.Run("both sides land on the same thread", func(t *testing.T) {
		f := newFixture(t)
		fromBuyer, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
		require.NoError(t, err)
		fromSeller, err := f.service.GetOrCreateConversation(ctx, f.seller, f.buyer, f.listing)
		require.NoError(t, err)
		assert.Equal(t, fromBuyer.ID, fromSeller.ID)
	})

	t.Run("concurrent creation converges to one conversation", func(t *testing.T) {
		f := newFixture(t)
		const workers = 16
		ids := make([]domainchat.ConversationID, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				requester, recipient := f.buyer, f.seller
				if i%2 == 1 {
					requester, recipient = f.seller, f.buyer
				}
				conv, err := f.service.GetOrCreateConversation(ctx, requester, recipient, f.listing)
				if err == nil {
					ids[i] = conv.ID
				}
			}(i)
		}
		wg.Wait()
		for i := 1; i < workers; i++ {
			assert.Equal(t, ids[0], ids[i])
		}
	})

	t.Run("rejects self conversation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.buyer, f.listing)
		assert.ErrorIs(t, err, domainchat.ErrSelfConversation)
	})

	t.Run("rejects unknown recipient", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.GetOrCreateConversation(ctx, f.buyer, "ghost", f.listing)
		assert.ErrorIs(t, err, domainchat.ErrRecipientNotFound)
	})

	t.Run("rejects unknown listing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, "missing")
		assert.ErrorIs(t, err, domainchat.ErrListingNotFound)
	})

	t.Run("rejects suspended requester", func(t *testing.T) {
		f := newFixture(t)
		account, err := f.users.ByID(ctx, f.buyer)
		require.NoError(t, err)
		account.Suspend(time.Now())
		require.NoError(t, f.users.Save(ctx, account))

		_, err = f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
		assert.ErrorIs(t, err, domainchat.ErrParticipantIneligible)
	})
}

func sendText(t *testing.T, f *fixture, conv domainchat.ConversationID, sender domainuser.ID, body string) *domainchat.Message {
	t.Helper()
	msg, err := f.service.SendMessage(context.Background(), SendMessageParams{
		ConversationID: conv,
		SenderID:       sender,
		Body:           body,
	})
	require.NoError(t, err)
	return msg
}

func TestSendMessageOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
	require.NoError(t, err)

	// All three share the fixture's frozen clock; seq must break the tie.
	m1 := sendText(t, f, conv.ID, f.buyer, "first")
	m2 := sendText(t, f, conv.ID, f.seller, "second")
	m3 := sendText(t, f, conv.ID, f.buyer, "third")
	assert.Less(t, m1.Seq, m2.Seq)
	assert.Less(t, m2.Seq, m3.Seq)

	messages, err := f.service.GetMessages(ctx, conv.ID, f.buyer, 1, 20)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Body)
	assert.Equal(t, "second", messages[1].Body)
	assert.Equal(t, "third", messages[2].Body)
}

func TestSendMessageOrderingWithRegressingClock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
	require.NoError(t, err)

	// A sender can sample the clock, lose the CPU, and commit after a rival
	// whose sample read later. Model that by handing the first accepted send
	// the later timestamp and the second the earlier one; history must still
	// follow acceptance order.
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	samples := []time.Time{base.Add(2 * time.Second), base}
	f.service.Clock = func() time.Time {
		at := samples[0]
		if len(samples) > 1 {
			samples = samples[1:]
		}
		return at
	}

	first := sendText(t, f, conv.ID, f.buyer, "accepted first")
	second := sendText(t, f, conv.ID, f.seller, "accepted second")
	require.Less(t, first.Seq, second.Seq)
	assert.False(t, second.CreatedAt.Before(first.CreatedAt), "commit timestamps never regress")

	messages, err := f.service.GetMessages(ctx, conv.ID, f.buyer, 1, 20)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "accepted first", messages[0].Body)
	assert.Equal(t, "accepted second", messages[1].Body)
}

func TestSendMessageFanOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
	require.NoError(t, err)

	msg := sendText(t, f, conv.ID, f.buyer, "Does it come with the front loader?")

	require.Len(t, f.notifier.messages, 1)
	assert.Equal(t, msg.ID, f.notifier.messages[0].ID)
	assert.Equal(t, f.seller, msg.RecipientID)

	events := f.notifier.userEvents[f.seller]
	require.Len(t, events, 1)
	assert.Equal(t, domainchat.EventMessageCreated, events[0].Type)
	assert.Equal(t, "Does it come with the front loader?", events[0].Preview)
	assert.Empty(t, f.notifier.userEvents[f.buyer], "sender gets no self notification")
}

func TestSendMessageAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
	require.NoError(t, err)

	_, err = f.service.SendMessage(ctx, SendMessageParams{
		ConversationID: conv.ID,
		SenderID:       f.stranger,
		Body:           "let me in",
	})
	assert.ErrorIs(t, err, domainchat.ErrNotParticipant)

	_, err = f.service.SendMessage(ctx, SendMessageParams{
		ConversationID: "missing",
		SenderID:       f.buyer,
		Body:           "hello?",
	})
	assert.ErrorIs(t, err, domainchat.ErrConversationNotFound)
}

func TestGetMessagesMarksRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
	require.NoError(t, err)

	sendText(t, f, conv.ID, f.buyer, "one")
	sendText(t, f, conv.ID, f.buyer, "two")
	sendText(t, f, conv.ID, f.buyer, "three")

	unread, err := f.service.UnreadCount(ctx, f.seller, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	// The sender reading history does not consume the recipient's unread.
	_, err = f.service.GetMessages(ctx, conv.ID, f.buyer, 1, 20)
	require.NoError(t, err)
	unread, err = f.service.UnreadCount(ctx, f.seller, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	messages, err := f.service.GetMessages(ctx, conv.ID, f.seller, 1, 20)
	require.NoError(t, err)
	for _, msg := range messages {
		assert.True(t, msg.Read, "snapshot must reflect the read flip")
	}
	unread, err = f.service.UnreadCount(ctx, f.seller, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)
}

func TestGetMessagesAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
	require.NoError(t, err)

	_, err = f.service.GetMessages(ctx, conv.ID, f.stranger, 1, 20)
	assert.ErrorIs(t, err, domainchat.ErrNotParticipant)

	_, err = f.service.GetMessages(ctx, "missing", f.buyer, 1, 20)
	assert.ErrorIs(t, err, domainchat.ErrConversationNotFound)
}

func TestUnreadCountAcrossConversations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	secondListing, err := domainlistings.NewListing(domainlistings.CreateParams{
		ID:         "listing-2",
		SellerID:   f.seller,
		Title:      "Claas Lexion 770",
		PriceCents: 9_000_000_00,
	})
	require.NoError(t, err)
	require.NoError(t, secondListing.Publish(time.Now()))
	require.NoError(t, f.listings.Save(ctx, secondListing))

	convA, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
	require.NoError(t, err)
	convB, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, secondListing.ID)
	require.NoError(t, err)
	require.NotEqual(t, convA.ID, convB.ID)

	sendText(t, f, convA.ID, f.buyer, "a1")
	sendText(t, f, convA.ID, f.buyer, "a2")
	sendText(t, f, convA.ID, f.buyer, "a3")
	sendText(t, f, convB.ID, f.buyer, "b1")
	sendText(t, f, convB.ID, f.buyer, "b2")

	total, err := f.service.UnreadCount(ctx, f.seller, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	scoped, err := f.service.UnreadCount(ctx, f.seller, convB.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), scoped)

	_, err = f.service.GetMessages(ctx, convA.ID, f.seller, 1, 20)
	require.NoError(t, err)
	total, err = f.service.UnreadCount(ctx, f.seller, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, err = f.service.UnreadCount(ctx, f.stranger, convA.ID)
	assert.ErrorIs(t, err, domainchat.ErrNotParticipant)
}

func TestListConversations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
	require.NoError(t, err)
	sendText(t, f, conv.ID, f.buyer, "ping")

	summaries, err := f.service.ListConversations(ctx, f.seller, 1, 20)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, conv.ID, summaries[0].Conversation.ID)
	assert.Equal(t, f.buyer, summaries[0].OtherParticipant)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "ping", summaries[0].LastMessage.Body)
	assert.Equal(t, int64(1), summaries[0].Unread)

	none, err := f.service.ListConversations(ctx, f.stranger, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteMessage(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *domainchat.Message) {
		f := newFixture(t)
		conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
		require.NoError(t, err)
		msg := sendText(t, f, conv.ID, f.buyer, "delete me maybe")
		return f, msg
	}

	t.Run("sender may delete", func(t *testing.T) {
		f, msg := setup(t)
		require.NoError(t, f.service.DeleteMessage(ctx, msg.ID, f.buyer))
		assert.Contains(t, f.notifier.deleted, msg.ID)
		err := f.service.DeleteMessage(ctx, msg.ID, f.buyer)
		assert.ErrorIs(t, err, domainchat.ErrMessageNotFound)
	})

	t.Run("moderator may delete", func(t *testing.T) {
		f, msg := setup(t)
		require.NoError(t, f.service.DeleteMessage(ctx, msg.ID, f.moderator))
	})

	t.Run("recipient may not delete", func(t *testing.T) {
		f, msg := setup(t)
		err := f.service.DeleteMessage(ctx, msg.ID, f.seller)
		assert.ErrorIs(t, err, domainchat.ErrDeleteForbidden)
	})

	t.Run("stranger may not delete", func(t *testing.T) {
		f, msg := setup(t)
		err := f.service.DeleteMessage(ctx, msg.ID, f.stranger)
		assert.ErrorIs(t, err, domainchat.ErrDeleteForbidden)
	})

	t.Run("neighbors keep their order", func(t *testing.T) {
		f := newFixture(t)
		conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
		require.NoError(t, err)
		sendText(t, f, conv.ID, f.buyer, "one")
		m2 := sendText(t, f, conv.ID, f.buyer, "two")
		sendText(t, f, conv.ID, f.buyer, "three")

		require.NoError(t, f.service.DeleteMessage(ctx, m2.ID, f.buyer))
		messages, err := f.service.GetMessages(ctx, conv.ID, f.buyer, 1, 20)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, "one", messages[0].Body)
		assert.Equal(t, "three", messages[1].Body)
	})
}

func TestAppendAttachment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
	require.NoError(t, err)
	msg := sendText(t, f, conv.ID, f.buyer, "photos incoming")

	t.Run("sender appends while unread", func(t *testing.T) {
		updated, err := f.service.AppendAttachment(ctx, msg.ID, f.buyer, domainchat.Attachment{Key: "uploads/one.jpg"})
		require.NoError(t, err)
		assert.Len(t, updated.Attachments, 1)
	})

	t.Run("only the sender may append", func(t *testing.T) {
		_, err := f.service.AppendAttachment(ctx, msg.ID, f.seller, domainchat.Attachment{Key: "uploads/two.jpg"})
		assert.ErrorIs(t, err, domainchat.ErrNotParticipant)
	})

	t.Run("limit enforced", func(t *testing.T) {
		for i := 1; i < domainchat.MaxAttachments; i++ {
			_, err := f.service.AppendAttachment(ctx, msg.ID, f.buyer, domainchat.Attachment{Key: fmt.Sprintf("uploads/%d.jpg", i)})
			require.NoError(t, err)
		}
		_, err := f.service.AppendAttachment(ctx, msg.ID, f.buyer, domainchat.Attachment{Key: "uploads/overflow.jpg"})
		assert.ErrorIs(t, err, domainchat.ErrTooManyAttachments)
	})

	t.Run("frozen after the recipient reads", func(t *testing.T) {
		fresh := sendText(t, f, conv.ID, f.buyer, "quick one")
		_, err := f.service.GetMessages(ctx, conv.ID, f.seller, 1, 20)
		require.NoError(t, err)
		_, err = f.service.AppendAttachment(ctx, fresh.ID, f.buyer, domainchat.Attachment{Key: "uploads/late.jpg"})
		assert.ErrorIs(t, err, domainchat.ErrMessageAlreadyRead)
	})
}

func TestBuyerSellerScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	conv, err := f.service.GetOrCreateConversation(ctx, f.buyer, f.seller, f.listing)
	require.NoError(t, err)

	sendText(t, f, conv.ID, f.buyer, "Is the harvester available for inspection?")
	_, err = f.service.SendMessage(ctx, SendMessageParams{
		ConversationID: conv.ID,
		SenderID:       f.buyer,
		Body:           "I can offer this much.",
		Kind:           domainchat.KindOffer,
		Offer:          &domainchat.OfferPayload{PriceCents: 15_000_000_00, ListingID: f.listing},
	})
	require.NoError(t, err)

	unread, err := f.service.UnreadCount(ctx, f.seller, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	messages, err := f.service.GetMessages(ctx, conv.ID, f.seller, 1, 20)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.NotNil(t, messages[1].Offer)
	assert.Equal(t, domainchat.OfferPending, messages[1].Offer.Status)
	assert.Equal(t, "UAH", messages[1].Offer.Currency)

	reply := sendText(t, f, conv.ID, f.seller, "Deal. Come by on Saturday.")
	assert.Equal(t, f.buyer, reply.RecipientID)

	unread, err = f.service.UnreadCount(ctx, f.buyer, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	summaries, err := f.service.ListConversations(ctx, f.buyer, 1, 20)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, reply.ID, summaries[0].LastMessage.ID)
	assert.Equal(t, int64(1), summaries[0].Unread)
}
