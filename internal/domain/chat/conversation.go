package chat

import (
	"strings"
	"time"

	"github.com/Lookout84/agromarket/internal/domain/listings"
	"github.com/Lookout84/agromarket/internal/domain/user"
)

type ConversationID string

// Conversation is the unique thread between a buyer and a seller about one
// listing. The (buyer, seller, listing) triple is the canonical key: the
// listing's seller always occupies the seller slot, so the same thread is
// found no matter which side starts it.
type Conversation struct {
	ID             ConversationID
	BuyerID        user.ID
	SellerID       user.ID
	ListingID      listings.ListingID
	InitiatorID    user.ID
	LastActivityAt time.Time
	CreatedAt      time.Time
}

type CreateConversationParams struct {
	ID          ConversationID
	RequesterID user.ID
	RecipientID user.ID
	ListingID   listings.ListingID
	SellerID    user.ID
	Now         time.Time
}

// NewConversation builds a conversation with normalized buyer/seller roles.
// SellerID is the listing's recorded seller; if the requester is that seller
// the recipient takes the buyer slot, otherwise the requester does.
func NewConversation(params CreateConversationParams) (*Conversation, error) {
	requester := user.ID(strings.TrimSpace(string(params.RequesterID)))
	recipient := user.ID(strings.TrimSpace(string(params.RecipientID)))
	if requester == "" || recipient == "" || requester == recipient {
		return nil, ErrSelfConversation
	}
	buyer, seller := NormalizeRoles(requester, recipient, params.SellerID)

	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	return &Conversation{
		ID:             params.ID,
		BuyerID:        buyer,
		SellerID:       seller,
		ListingID:      params.ListingID,
		InitiatorID:    requester,
		LastActivityAt: now,
		CreatedAt:      now,
	}, nil
}

// NormalizeRoles maps a (requester, recipient) pair onto the canonical
// (buyer, seller) slots given the listing's seller.
func NormalizeRoles(requester, recipient, listingSeller user.ID) (buyer, seller user.ID) {
	if requester == listingSeller {
		return recipient, requester
	}
	return requester, listingSeller
}

// Participant reports whether id occupies either slot of the thread.
func (c *Conversation) Participant(id user.ID) bool {
	return id != "" && (id == c.BuyerID || id == c.SellerID)
}

// OtherParticipant returns the counterpart of id, or empty if id is not a
// participant.
func (c *Conversation) OtherParticipant(id user.ID) user.ID {
	switch id {
	case c.BuyerID:
		return c.SellerID
	case c.SellerID:
		return c.BuyerID
	default:
		return ""
	}
}

func (c *Conversation) Touch(at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	c.LastActivityAt = at.UTC()
}
