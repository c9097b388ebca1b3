package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lookout84/agromarket/internal/domain/listings"
	"github.com/Lookout84/agromarket/internal/domain/user"
)

func TestNormalizeRoles(t *testing.T) {
	seller := user.ID("seller-1")
	buyer := user.ID("buyer-1")

	t.Run("buyer initiates", func(t *testing.T) {
		gotBuyer, gotSeller := NormalizeRoles(buyer, seller, seller)
		assert.Equal(t, buyer, gotBuyer)
		assert.Equal(t, seller, gotSeller)
	})

	t.Run("seller initiates", func(t *testing.T) {
		gotBuyer, gotSeller := NormalizeRoles(seller, buyer, seller)
		assert.Equal(t, buyer, gotBuyer)
		assert.Equal(t, seller, gotSeller)
	})
}

func TestNewConversation(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("normalizes roles regardless of initiator", func(t *testing.T) {
		fromBuyer, err := NewConversation(CreateConversationParams{
			ID:          "conv-1",
			RequesterID: "buyer-1",
			RecipientID: "seller-1",
			ListingID:   "listing-1",
			SellerID:    "seller-1",
			Now:         now,
		})
		require.NoError(t, err)

		fromSeller, err := NewConversation(CreateConversationParams{
			ID:          "conv-2",
			RequesterID: "seller-1",
			RecipientID: "buyer-1",
			ListingID:   "listing-1",
			SellerID:    "seller-1",
			Now:         now,
		})
		require.NoError(t, err)

		assert.Equal(t, fromBuyer.BuyerID, fromSeller.BuyerID)
		assert.Equal(t, fromBuyer.SellerID, fromSeller.SellerID)
		assert.Equal(t, user.ID("buyer-1"), fromBuyer.BuyerID)
		assert.Equal(t, user.ID("seller-1"), fromBuyer.SellerID)
		assert.Equal(t, user.ID("buyer-1"), fromBuyer.InitiatorID)
		assert.Equal(t, user.ID("seller-1"), fromSeller.InitiatorID)
	})

	t.Run("rejects a thread with yourself", func(t *testing.T) {
		_, err := NewConversation(CreateConversationParams{
			ID:          "conv-3",
			RequesterID: "user-1",
			RecipientID: "user-1",
			ListingID:   "listing-1",
			SellerID:    "user-1",
			Now:         now,
		})
		assert.ErrorIs(t, err, ErrSelfConversation)
	})

	t.Run("rejects blank participants", func(t *testing.T) {
		_, err := NewConversation(CreateConversationParams{
			ID:          "conv-4",
			RequesterID: "  ",
			RecipientID: "seller-1",
			ListingID:   "listing-1",
			SellerID:    "seller-1",
			Now:         now,
		})
		assert.ErrorIs(t, err, ErrSelfConversation)
	})
}

func TestConversationParticipants(t *testing.T) {
	conv := &Conversation{
		ID:        "conv-1",
		BuyerID:   "buyer-1",
		SellerID:  "seller-1",
		ListingID: listings.ListingID("listing-1"),
	}

	assert.True(t, conv.Participant("buyer-1"))
	assert.True(t, conv.Participant("seller-1"))
	assert.False(t, conv.Participant("stranger"))
	assert.False(t, conv.Participant(""))

	assert.Equal(t, user.ID("seller-1"), conv.OtherParticipant("buyer-1"))
	assert.Equal(t, user.ID("buyer-1"), conv.OtherParticipant("seller-1"))
	assert.Equal(t, user.ID(""), conv.OtherParticipant("stranger"))
}
