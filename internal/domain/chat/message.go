package chat

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Lookout84/agromarket/internal/domain/listings"
	"github.com/Lookout84/agromarket/internal/domain/user"
)

const (
	// MaxBodyRunes bounds the message body in Unicode code points.
	MaxBodyRunes = 2000
	// MaxAttachments bounds attachment references per message.
	MaxAttachments = 5
	// DefaultOfferTTL is applied when an offer carries no explicit expiry.
	DefaultOfferTTL = 7 * 24 * time.Hour
)

type MessageID string

type Kind string

const (
	KindText   Kind = "text"
	KindOffer  Kind = "offer"
	KindSystem Kind = "system"
)

type OfferStatus string

const OfferPending OfferStatus = "pending"

// Attachment is a reference to an uploaded object; the blob itself lives in
// object storage.
type Attachment struct {
	Key         string
	Name        string
	ContentType string
}

// OfferPayload carries the structured part of an offer-kind message.
type OfferPayload struct {
	PriceCents int64
	Currency   string
	ListingID  listings.ListingID
	ExpiresAt  time.Time
	Status     OfferStatus
}

// Message is one entry of a conversation's append-only log. After creation
// only the read flag may change, plus attachment appends while still unread.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       user.ID
	RecipientID    user.ID
	Body           string
	Kind           Kind
	Attachments    []Attachment
	Offer          *OfferPayload
	Read           bool
	Seq            int64
	CreatedAt      time.Time
}

type CreateMessageParams struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       user.ID
	RecipientID    user.ID
	Body           string
	Kind           Kind
	Attachments    []Attachment
	Offer          *OfferPayload
	Seq            int64
	Now            time.Time
}

// NewMessage validates and builds a message. Offer-kind messages must carry a
// payload; its expiry defaults to DefaultOfferTTL from creation and its
// status always starts at "pending".
func NewMessage(params CreateMessageParams) (*Message, error) {
	body := strings.TrimSpace(params.Body)
	if body == "" {
		return nil, ErrBodyRequired
	}
	if utf8.RuneCountInString(body) > MaxBodyRunes {
		return nil, ErrBodyTooLong
	}
	if len(params.Attachments) > MaxAttachments {
		return nil, ErrTooManyAttachments
	}

	kind := params.Kind
	if kind == "" {
		kind = KindText
	}
	switch kind {
	case KindText, KindOffer, KindSystem:
	default:
		return nil, ErrInvalidKind
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	attachments := make([]Attachment, 0, len(params.Attachments))
	for _, att := range params.Attachments {
		normalized, err := normalizeAttachment(att)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, normalized)
	}

	var offer *OfferPayload
	if kind == KindOffer {
		if params.Offer == nil {
			return nil, ErrOfferPayloadRequired
		}
		normalized, err := normalizeOffer(*params.Offer, now)
		if err != nil {
			return nil, err
		}
		offer = &normalized
	}

	return &Message{
		ID:             params.ID,
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		RecipientID:    params.RecipientID,
		Body:           body,
		Kind:           kind,
		Attachments:    attachments,
		Offer:          offer,
		Seq:            params.Seq,
		CreatedAt:      now,
	}, nil
}

// AppendAttachment adds one more reference. Allowed only while the message is
// unread; a read message is frozen apart from its flag.
func (m *Message) AppendAttachment(att Attachment) error {
	if m.Read {
		return ErrMessageAlreadyRead
	}
	if len(m.Attachments) >= MaxAttachments {
		return ErrTooManyAttachments
	}
	normalized, err := normalizeAttachment(att)
	if err != nil {
		return err
	}
	m.Attachments = append(m.Attachments, normalized)
	return nil
}

func normalizeAttachment(att Attachment) (Attachment, error) {
	att.Key = strings.TrimSpace(att.Key)
	if att.Key == "" {
		return Attachment{}, ErrAttachmentKeyRequired
	}
	att.Name = strings.TrimSpace(att.Name)
	if att.ContentType == "" {
		att.ContentType = "application/octet-stream"
	}
	return att, nil
}

func normalizeOffer(offer OfferPayload, now time.Time) (OfferPayload, error) {
	if offer.PriceCents <= 0 {
		return OfferPayload{}, ErrOfferPriceInvalid
	}
	if strings.TrimSpace(string(offer.ListingID)) == "" {
		return OfferPayload{}, ErrOfferListingRequired
	}
	if offer.Currency == "" {
		offer.Currency = "UAH"
	}
	if offer.ExpiresAt.IsZero() {
		offer.ExpiresAt = now.Add(DefaultOfferTTL)
	}
	offer.ExpiresAt = offer.ExpiresAt.UTC()
	offer.Status = OfferPending
	return offer, nil
}
