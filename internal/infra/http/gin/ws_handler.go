package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	chatsvc "github.com/Lookout84/agromarket/internal/app/services/chat"
	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
	"github.com/Lookout84/agromarket/internal/infra/realtime"
)

type WSHTTP interface {
	Connect(c *gin.Context)
}

// WSHandler upgrades authenticated requests to websocket subscriptions. Every
// client gets its personal notification channel; ?conversation_id= adds the
// live feed of one thread the caller participates in.
type WSHandler struct {
	Hub    *realtime.Hub
	Chat   *chatsvc.Service
	Logger *slog.Logger
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS is already wide open on the REST surface; the websocket endpoint
	// follows the same policy.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (h WSHandler) Connect(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime unavailable"})
		return
	}

	conversationID := domainchat.ConversationID(strings.TrimSpace(c.Query("conversation_id")))
	if conversationID != "" && h.Chat != nil {
		// Participant check doubles as existence check.
		if _, err := h.Chat.UnreadCount(c.Request.Context(), domainuser.ID(p.ID), conversationID); err != nil {
			switch {
			case errors.Is(err, domainchat.ErrNotParticipant):
				c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
			case errors.Is(err, domainchat.ErrConversationNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			default:
				if h.Logger != nil {
					h.Logger.Error("ws access check failed", "error", err)
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade failed", "error", err, "user_id", p.ID)
		}
		return
	}

	client := realtime.NewClient(conn, domainuser.ID(p.ID), conversationID)
	h.Hub.Subscribe(client)
	go client.WritePump()
	client.ReadPump(h.Hub)
}

var _ WSHTTP = (*WSHandler)(nil)
