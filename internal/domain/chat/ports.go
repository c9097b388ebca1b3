package chat

import (
	"context"
	"time"

	"github.com/Lookout84/agromarket/internal/domain/listings"
	"github.com/Lookout84/agromarket/internal/domain/user"
)

// ConversationStore owns conversation records keyed by the canonical
// (buyer, seller, listing) triple.
type ConversationStore interface {
	// GetOrCreate persists conv unless a row with the same canonical key
	// already exists, in which case the existing row is returned. Concurrent
	// calls for the same key must converge to a single row; the created flag
	// tells the caller whether its row won.
	GetOrCreate(ctx context.Context, conv *Conversation) (*Conversation, bool, error)

	ByID(ctx context.Context, id ConversationID) (*Conversation, error)

	// ListByUser returns conversations where userID occupies either slot,
	// ordered by last activity descending. page starts at 1.
	ListByUser(ctx context.Context, userID user.ID, page, pageSize int) ([]*Conversation, error)

	// NextSeq atomically advances the conversation's message counter and its
	// last-activity timestamp, returning the new sequence number together
	// with the commit timestamp for the message. The returned time is at
	// least `at` and never earlier than the timestamp handed out with the
	// previous sequence, so sorting by (created_at, seq) always reproduces
	// allocation order even when callers sample their clocks out of order.
	NextSeq(ctx context.Context, id ConversationID, at time.Time) (int64, time.Time, error)

	// Touch updates last activity without consuming a sequence number.
	Touch(ctx context.Context, id ConversationID, at time.Time) error
}

// MessageLog is the append-only ordered message storage. It is the sole
// writer of the read flag.
type MessageLog interface {
	Append(ctx context.Context, msg *Message) error

	ByID(ctx context.Context, id MessageID) (*Message, error)

	// ListPage returns one page of a conversation's log, newest first,
	// ordered by (created_at, seq). page starts at 1.
	ListPage(ctx context.Context, conversationID ConversationID, page, pageSize int) ([]*Message, error)

	// Latest returns the most recent message of a conversation, or nil when
	// the log is empty.
	Latest(ctx context.Context, conversationID ConversationID) (*Message, error)

	// MarkRead flips the read flag on every unread message addressed to
	// recipient in the conversation. Must be a single conditional bulk
	// update so a concurrent append is left untouched. Returns the number
	// of messages flipped.
	MarkRead(ctx context.Context, conversationID ConversationID, recipientID user.ID) (int64, error)

	// AppendAttachment adds a reference to an unread message holding fewer
	// than MaxAttachments, as one conditional update. Returns
	// ErrMessageAlreadyRead or ErrTooManyAttachments when the condition no
	// longer holds.
	AppendAttachment(ctx context.Context, id MessageID, att Attachment) (*Message, error)

	Delete(ctx context.Context, id MessageID) error

	// CountUnread returns unread messages addressed to recipient, across all
	// conversations or scoped to one when conversationID is non-empty.
	CountUnread(ctx context.Context, recipientID user.ID, conversationID ConversationID) (int64, error)
}

// Event types carried by realtime frames and broker records.
const (
	EventMessageCreated = "message.created"
	EventMessageDeleted = "message.deleted"
)

// UserEvent is delivered to a participant's personal channel so clients not
// viewing the conversation can refresh unread badges.
type UserEvent struct {
	Type           string
	ConversationID ConversationID
	MessageID      MessageID
	SenderID       user.ID
	Preview        string
	At             time.Time
}

// Notifier pushes chat events to whoever is listening. Delivery is
// best-effort: implementations log failures and never surface them.
type Notifier interface {
	MessageCreated(ctx context.Context, conv *Conversation, msg *Message)
	MessageDeleted(ctx context.Context, conversationID ConversationID, messageID MessageID)
	UserNotified(ctx context.Context, userID user.ID, event UserEvent)
}

// IdentityDirectory is the narrow identity lookup the chat core consumes.
type IdentityDirectory interface {
	Exists(ctx context.Context, id user.ID) (bool, error)
	Eligible(ctx context.Context, id user.ID) (bool, error)
	CanModerate(ctx context.Context, id user.ID) (bool, error)
}

// ListingDirectory resolves a listing to its seller.
type ListingDirectory interface {
	SellerOf(ctx context.Context, id listings.ListingID) (user.ID, error)
}
