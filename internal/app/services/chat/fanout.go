package chat

import (
	"context"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

// MultiNotifier fans events out to several legs (websocket hub, broker).
// Each leg is best-effort on its own; none can fail the others.
type MultiNotifier []domainchat.Notifier

func (m MultiNotifier) MessageCreated(ctx context.Context, conv *domainchat.Conversation, msg *domainchat.Message) {
	for _, n := range m {
		n.MessageCreated(ctx, conv, msg)
	}
}

func (m MultiNotifier) MessageDeleted(ctx context.Context, conversationID domainchat.ConversationID, messageID domainchat.MessageID) {
	for _, n := range m {
		n.MessageDeleted(ctx, conversationID, messageID)
	}
}

func (m MultiNotifier) UserNotified(ctx context.Context, userID domainuser.ID, event domainchat.UserEvent) {
	for _, n := range m {
		n.UserNotified(ctx, userID, event)
	}
}

var _ domainchat.Notifier = MultiNotifier(nil)
