package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	previewRunes    = 120
)

var ErrServiceNotConfigured = errors.New("chat: service dependencies missing")

// Service is the only entry point to the messaging core. It validates
// participants, mutates the conversation store and message log, and fans the
// result out to realtime subscribers. Fan-out is fire-and-forget: once a
// write has committed, delivery problems never surface to the caller.
type Service struct {
	Conversations domainchat.ConversationStore
	Messages      domainchat.MessageLog
	Identities    domainchat.IdentityDirectory
	Listings      domainchat.ListingDirectory
	Notifier      domainchat.Notifier
	Logger        *slog.Logger
	Clock         func() time.Time
}

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	Conversation     *domainchat.Conversation
	OtherParticipant domainuser.ID
	LastMessage      *domainchat.Message
	Unread           int64
}

// GetOrCreateConversation resolves the canonical (buyer, seller, listing)
// thread between requester and recipient, creating it on first contact. The
// operation is idempotent: concurrent calls for the same triple, from either
// side, converge to one stored conversation.
func (s *Service) GetOrCreateConversation(ctx context.Context, requesterID, recipientID domainuser.ID, listingID domainlistings.ListingID) (*domainchat.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	if requesterID == "" || requesterID == recipientID {
		return nil, domainchat.ErrSelfConversation
	}
	eligible, err := s.Identities.Eligible(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("chat: check requester eligibility: %w", err)
	}
	if !eligible {
		return nil, domainchat.ErrParticipantIneligible
	}
	exists, err := s.Identities.Exists(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("chat: check recipient: %w", err)
	}
	if !exists {
		return nil, domainchat.ErrRecipientNotFound
	}
	sellerID, err := s.Listings.SellerOf(ctx, listingID)
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			return nil, domainchat.ErrListingNotFound
		}
		return nil, fmt.Errorf("chat: resolve listing seller: %w", err)
	}

	conv, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:          domainchat.ConversationID(uuid.NewString()),
		RequesterID: requesterID,
		RecipientID: recipientID,
		ListingID:   listingID,
		SellerID:    sellerID,
		Now:         s.now(),
	})
	if err != nil {
		return nil, err
	}
	stored, created, err := s.Conversations.GetOrCreate(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("chat: get or create conversation: %w", err)
	}
	if created {
		// Creation is persistence only; subscribers learn about the thread
		// with its first message.
		s.log().Info("conversation created",
			"conversation_id", stored.ID,
			"listing_id", stored.ListingID,
			"buyer_id", stored.BuyerID,
			"seller_id", stored.SellerID,
		)
	}
	return stored, nil
}

// ListConversations returns the user's inbox ordered by last activity,
// newest first, with the counterpart, the most recent message and the unread
// count attached to each row.
func (s *Service) ListConversations(ctx context.Context, userID domainuser.ID, page, pageSize int) ([]ConversationSummary, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	page, pageSize = normalizePage(page, pageSize)
	conversations, err := s.Conversations.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("chat: list conversations: %w", err)
	}
	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		last, err := s.Messages.Latest(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("chat: load last message: %w", err)
		}
		unread, err := s.Messages.CountUnread(ctx, userID, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("chat: count unread: %w", err)
		}
		summaries = append(summaries, ConversationSummary{
			Conversation:     conv,
			OtherParticipant: conv.OtherParticipant(userID),
			LastMessage:      last,
			Unread:           unread,
		})
	}
	return summaries, nil
}

// GetMessages returns one page of the conversation's history in
// chronological order. Fetching history is the read acknowledgment: when the
// page is non-empty, every unread message addressed to the requester is
// marked read and the conversation's last activity advances.
func (s *Service) GetMessages(ctx context.Context, conversationID domainchat.ConversationID, requesterID domainuser.ID, page, pageSize int) ([]*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conv, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Participant(requesterID) {
		return nil, domainchat.ErrNotParticipant
	}
	page, pageSize = normalizePage(page, pageSize)

	// The log paginates newest-first; the caller sees oldest-first.
	messages, err := s.Messages.ListPage(ctx, conv.ID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	reverse(messages)

	if len(messages) > 0 {
		marked, err := s.Messages.MarkRead(ctx, conv.ID, requesterID)
		if err != nil {
			return nil, fmt.Errorf("chat: mark read: %w", err)
		}
		if err := s.Conversations.Touch(ctx, conv.ID, s.now()); err != nil {
			return nil, fmt.Errorf("chat: touch conversation: %w", err)
		}
		if marked > 0 {
			// Reflect the flip in the snapshot fetched before the update.
			for _, msg := range messages {
				if msg.RecipientID == requesterID {
					msg.Read = true
				}
			}
		}
	}
	return messages, nil
}

type SendMessageParams struct {
	ConversationID domainchat.ConversationID
	SenderID       domainuser.ID
	Body           string
	Kind           domainchat.Kind
	Attachments    []domainchat.Attachment
	Offer          *domainchat.OfferPayload
}

// SendMessage appends to the conversation's log and advances its last
// activity, then pushes the message to the conversation channel and a
// notification to the other participant's personal channel.
func (s *Service) SendMessage(ctx context.Context, params SendMessageParams) (*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conv, err := s.loadConversation(ctx, params.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Participant(params.SenderID) {
		return nil, domainchat.ErrNotParticipant
	}
	eligible, err := s.Identities.Eligible(ctx, params.SenderID)
	if err != nil {
		return nil, fmt.Errorf("chat: check sender eligibility: %w", err)
	}
	if !eligible {
		return nil, domainchat.ErrParticipantIneligible
	}

	now := s.now()
	msg, err := domainchat.NewMessage(domainchat.CreateMessageParams{
		ID:             domainchat.MessageID(uuid.NewString()),
		ConversationID: conv.ID,
		SenderID:       params.SenderID,
		RecipientID:    conv.OtherParticipant(params.SenderID),
		Body:           params.Body,
		Kind:           params.Kind,
		Attachments:    params.Attachments,
		Offer:          params.Offer,
		Now:            now,
	})
	if err != nil {
		return nil, err
	}

	// The log sorts by (created_at, seq); both halves of that key come from
	// the same atomic allocation, so a sender whose clock sample went stale
	// before committing still lands after earlier sequences.
	seq, committedAt, err := s.Conversations.NextSeq(ctx, conv.ID, now)
	if err != nil {
		return nil, fmt.Errorf("chat: next sequence: %w", err)
	}
	msg.Seq = seq
	msg.CreatedAt = committedAt
	if err := s.Messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("chat: append message: %w", err)
	}

	if s.Notifier != nil {
		s.Notifier.MessageCreated(ctx, conv, msg)
		s.Notifier.UserNotified(ctx, msg.RecipientID, domainchat.UserEvent{
			Type:           domainchat.EventMessageCreated,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
			Preview:        preview(msg.Body),
			At:             msg.CreatedAt,
		})
	}
	return msg, nil
}

// DeleteMessage removes one message. Only the sender or a moderator may do
// so; the gap is announced to subscribers but neighboring messages keep
// their order.
func (s *Service) DeleteMessage(ctx context.Context, messageID domainchat.MessageID, requesterID domainuser.ID) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	msg, err := s.Messages.ByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, domainchat.ErrMessageNotFound) {
			return err
		}
		return fmt.Errorf("chat: load message: %w", err)
	}
	if msg.SenderID != requesterID {
		moderator, err := s.Identities.CanModerate(ctx, requesterID)
		if err != nil {
			return fmt.Errorf("chat: check moderator: %w", err)
		}
		if !moderator {
			return domainchat.ErrDeleteForbidden
		}
	}
	if err := s.Messages.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("chat: delete message: %w", err)
	}
	s.log().Info("message deleted", "message_id", messageID, "conversation_id", msg.ConversationID, "requester_id", requesterID)
	if s.Notifier != nil {
		s.Notifier.MessageDeleted(ctx, msg.ConversationID, messageID)
	}
	return nil
}

// UnreadCount returns the number of unread messages addressed to userID,
// scoped to one conversation when conversationID is non-empty, otherwise
// across all of the user's conversations.
func (s *Service) UnreadCount(ctx context.Context, userID domainuser.ID, conversationID domainchat.ConversationID) (int64, error) {
	if err := s.ensureDependencies(); err != nil {
		return 0, err
	}
	if conversationID != "" {
		conv, err := s.loadConversation(ctx, conversationID)
		if err != nil {
			return 0, err
		}
		if !conv.Participant(userID) {
			return 0, domainchat.ErrNotParticipant
		}
	}
	count, err := s.Messages.CountUnread(ctx, userID, conversationID)
	if err != nil {
		return 0, fmt.Errorf("chat: count unread: %w", err)
	}
	return count, nil
}

// AppendAttachment adds an attachment reference to a message the requester
// sent, as long as the other side has not read it yet and the attachment
// limit is not exhausted.
func (s *Service) AppendAttachment(ctx context.Context, messageID domainchat.MessageID, requesterID domainuser.ID, att domainchat.Attachment) (*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	msg, err := s.Messages.ByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, domainchat.ErrMessageNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("chat: load message: %w", err)
	}
	if msg.SenderID != requesterID {
		return nil, domainchat.ErrNotParticipant
	}
	updated, err := s.Messages.AppendAttachment(ctx, messageID, att)
	if err != nil {
		if domainchat.IsValidation(err) || errors.Is(err, domainchat.ErrMessageNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("chat: append attachment: %w", err)
	}
	return updated, nil
}

func (s *Service) loadConversation(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	conv, err := s.Conversations.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, domainchat.ErrConversationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) ensureDependencies() error {
	if s.Conversations == nil || s.Messages == nil || s.Identities == nil || s.Listings == nil {
		return ErrServiceNotConfigured
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewRunes {
		return body
	}
	return string(runes[:previewRunes])
}

func reverse(messages []*domainchat.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
