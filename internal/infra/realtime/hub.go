package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

const (
	channelConversation = "conversation"
	channelUser         = "user"
)

type channelKey struct {
	kind string
	id   string
}

// Hub tracks which websocket clients listen on which conversation and user
// channels and pushes chat events to them. Publishing never blocks: each
// client has a bounded send buffer and falls behind silently; a
// disconnected or slow client catches up by re-fetching history.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[channelKey]map[*Client]struct{}
	logger      *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[channelKey]map[*Client]struct{}),
		logger:      logger,
	}
}

// Subscribe attaches the client to its user channel and, when the client is
// viewing a conversation, to that conversation channel as well.
func (h *Hub) Subscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, key := range c.channels() {
		set, ok := h.subscribers[key]
		if !ok {
			set = make(map[*Client]struct{})
			h.subscribers[key] = set
		}
		set[c] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, key := range c.channels() {
		if set, ok := h.subscribers[key]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subscribers, key)
			}
		}
	}
}

// frame is the JSON envelope written to subscribers.
type frame struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	Message        json.RawMessage `json:"message,omitempty"`
	Event          json.RawMessage `json:"event,omitempty"`
	At             time.Time       `json:"at"`
}

type messageFrame struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	Kind           string    `json:"kind"`
	CreatedAt      time.Time `json:"created_at"`
}

type userEventFrame struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	SenderID       string    `json:"sender_id,omitempty"`
	Preview        string    `json:"preview,omitempty"`
	At             time.Time `json:"at"`
}

func (h *Hub) MessageCreated(ctx context.Context, conv *domainchat.Conversation, msg *domainchat.Message) {
	payload, err := json.Marshal(messageFrame{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		SenderID:       string(msg.SenderID),
		Body:           msg.Body,
		Kind:           string(msg.Kind),
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		h.logDrop("encode message frame", err)
		return
	}
	h.publish(channelKey{kind: channelConversation, id: string(conv.ID)}, frame{
		Type:           domainchat.EventMessageCreated,
		ConversationID: string(conv.ID),
		MessageID:      string(msg.ID),
		Message:        payload,
		At:             msg.CreatedAt,
	})
}

func (h *Hub) MessageDeleted(ctx context.Context, conversationID domainchat.ConversationID, messageID domainchat.MessageID) {
	h.publish(channelKey{kind: channelConversation, id: string(conversationID)}, frame{
		Type:           domainchat.EventMessageDeleted,
		ConversationID: string(conversationID),
		MessageID:      string(messageID),
		At:             time.Now().UTC(),
	})
}

func (h *Hub) UserNotified(ctx context.Context, userID domainuser.ID, event domainchat.UserEvent) {
	payload, err := json.Marshal(userEventFrame{
		Type:           event.Type,
		ConversationID: string(event.ConversationID),
		MessageID:      string(event.MessageID),
		SenderID:       string(event.SenderID),
		Preview:        event.Preview,
		At:             event.At,
	})
	if err != nil {
		h.logDrop("encode user event", err)
		return
	}
	h.publish(channelKey{kind: channelUser, id: string(userID)}, frame{
		Type:  "notification",
		Event: payload,
		At:    event.At,
	})
}

func (h *Hub) publish(key channelKey, f frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		h.logDrop("encode frame", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.subscribers[key] {
		if !client.deliver(payload) && h.logger != nil {
			h.logger.Debug("subscriber buffer full, frame dropped",
				"channel_kind", key.kind, "channel_id", key.id, "user_id", client.UserID)
		}
	}
}

func (h *Hub) logDrop(msg string, err error) {
	if h.logger != nil {
		h.logger.Error("realtime delivery failed", "reason", msg, "error", err)
	}
}

var _ domainchat.Notifier = (*Hub)(nil)
