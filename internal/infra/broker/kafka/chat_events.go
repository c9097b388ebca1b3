package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

// ChatEventPublisher mirrors chat events onto a Kafka topic so downstream
// consumers (analytics, notification workers) see the same stream as the
// websocket hub. Publishing is best-effort and asynchronous: a broker outage
// is logged and the event dropped, never surfaced to the sender.
type ChatEventPublisher struct {
	Producer *Producer
	Topic    string
	Logger   *slog.Logger
}

type chatEventRecord struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	SenderID       string    `json:"sender_id,omitempty"`
	RecipientID    string    `json:"recipient_id,omitempty"`
	ListingID      string    `json:"listing_id,omitempty"`
	Kind           string    `json:"kind,omitempty"`
	At             time.Time `json:"at"`
}

func (p *ChatEventPublisher) MessageCreated(ctx context.Context, conv *domainchat.Conversation, msg *domainchat.Message) {
	p.emit(string(conv.ID), chatEventRecord{
		Type:           domainchat.EventMessageCreated,
		ConversationID: string(conv.ID),
		MessageID:      string(msg.ID),
		SenderID:       string(msg.SenderID),
		RecipientID:    string(msg.RecipientID),
		ListingID:      string(conv.ListingID),
		Kind:           string(msg.Kind),
		At:             msg.CreatedAt,
	})
}

func (p *ChatEventPublisher) MessageDeleted(ctx context.Context, conversationID domainchat.ConversationID, messageID domainchat.MessageID) {
	p.emit(string(conversationID), chatEventRecord{
		Type:           domainchat.EventMessageDeleted,
		ConversationID: string(conversationID),
		MessageID:      string(messageID),
		At:             time.Now().UTC(),
	})
}

func (p *ChatEventPublisher) UserNotified(ctx context.Context, userID domainuser.ID, event domainchat.UserEvent) {
	// Personal-channel notifications stay in-process; the broker stream
	// already carries the underlying message event.
}

func (p *ChatEventPublisher) emit(key string, record chatEventRecord) {
	if p == nil || p.Producer == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		p.logError("encode chat event", err)
		return
	}
	go func() {
		if err := p.Producer.Publish(context.Background(), p.Topic, key, payload); err != nil {
			p.logError("publish chat event", err)
		}
	}()
}

func (p *ChatEventPublisher) logError(msg string, err error) {
	if p.Logger != nil {
		p.Logger.Error(msg, "error", err, "topic", p.Topic)
	}
}

var _ domainchat.Notifier = (*ChatEventPublisher)(nil)
