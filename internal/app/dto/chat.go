package dto

import (
	"time"

	chatservice "github.com/Lookout84/agromarket/internal/app/services/chat"
	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
)

type Conversation struct {
	ID             string    `json:"id"`
	BuyerID        string    `json:"buyer_id"`
	SellerID       string    `json:"seller_id"`
	ListingID      string    `json:"listing_id"`
	InitiatorID    string    `json:"initiator_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	Counterpart  string       `json:"counterpart_id"`
	LastMessage  *ChatMessage `json:"last_message,omitempty"`
	Unread       int64        `json:"unread"`
}

type ChatMessage struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	RecipientID    string       `json:"recipient_id"`
	Body           string       `json:"body"`
	Kind           string       `json:"kind"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Offer          *Offer       `json:"offer,omitempty"`
	Read           bool         `json:"read"`
	Seq            int64        `json:"seq"`
	CreatedAt      time.Time    `json:"created_at"`
}

type Attachment struct {
	Key         string `json:"key"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type"`
	URL         string `json:"url,omitempty"`
}

type Offer struct {
	PriceCents int64     `json:"price_cents"`
	Currency   string    `json:"currency"`
	ListingID  string    `json:"listing_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	Status     string    `json:"status"`
}

type MessagePage struct {
	Messages []ChatMessage `json:"messages"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Page          int                   `json:"page"`
	PageSize      int                   `json:"page_size"`
}

type UnreadCount struct {
	Unread int64 `json:"unread"`
}

func FromConversation(conv *domainchat.Conversation) Conversation {
	return Conversation{
		ID:             string(conv.ID),
		BuyerID:        string(conv.BuyerID),
		SellerID:       string(conv.SellerID),
		ListingID:      string(conv.ListingID),
		InitiatorID:    string(conv.InitiatorID),
		LastActivityAt: conv.LastActivityAt,
		CreatedAt:      conv.CreatedAt,
	}
}

func FromConversationSummary(summary chatservice.ConversationSummary) ConversationSummary {
	out := ConversationSummary{
		Conversation: FromConversation(summary.Conversation),
		Counterpart:  string(summary.OtherParticipant),
		Unread:       summary.Unread,
	}
	if summary.LastMessage != nil {
		msg := FromChatMessage(summary.LastMessage)
		out.LastMessage = &msg
	}
	return out
}

func FromChatMessage(msg *domainchat.Message) ChatMessage {
	out := ChatMessage{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		SenderID:       string(msg.SenderID),
		RecipientID:    string(msg.RecipientID),
		Body:           msg.Body,
		Kind:           string(msg.Kind),
		Read:           msg.Read,
		Seq:            msg.Seq,
		CreatedAt:      msg.CreatedAt,
	}
	if len(msg.Attachments) > 0 {
		out.Attachments = make([]Attachment, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			out.Attachments = append(out.Attachments, Attachment{
				Key:         att.Key,
				Name:        att.Name,
				ContentType: att.ContentType,
			})
		}
	}
	if msg.Offer != nil {
		out.Offer = &Offer{
			PriceCents: msg.Offer.PriceCents,
			Currency:   msg.Offer.Currency,
			ListingID:  string(msg.Offer.ListingID),
			ExpiresAt:  msg.Offer.ExpiresAt,
			Status:     string(msg.Offer.Status),
		}
	}
	return out
}

func FromChatMessages(messages []*domainchat.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, FromChatMessage(msg))
	}
	return out
}
