package ginserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Lookout84/agromarket/internal/app/dto"
	chatsvc "github.com/Lookout84/agromarket/internal/app/services/chat"
	listingssvc "github.com/Lookout84/agromarket/internal/app/services/listings"
	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

// ChatHTTP exposes the messaging endpoints.
type ChatHTTP interface {
	CreateListingConversation(c *gin.Context)
	ListMyConversations(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	DeleteMessage(c *gin.Context)
	UnreadCount(c *gin.Context)
	UploadAttachment(c *gin.Context)
}

// attachmentStore stores attachment blobs and resolves their public URLs.
// Message records keep only the object key; URLs are derived per response.
type attachmentStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	ObjectURL(key string) string
}

type ChatHandler struct {
	Chat        *chatsvc.Service
	Listings    *listingssvc.Service
	Attachments attachmentStore
	Logger      *slog.Logger
}

// CreateListingConversation resolves or creates the buyer/seller thread for a
// listing. The seller is derived from the listing; recipient_id is only
// needed when the seller opens the thread toward a specific buyer.
func (h ChatHandler) CreateListingConversation(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Chat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	listingID := strings.TrimSpace(c.Param("id"))
	if listingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing id is required"})
		return
	}
	var req struct {
		RecipientID string `json:"recipient_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}

	recipientID := strings.TrimSpace(req.RecipientID)
	if recipientID == "" {
		if h.Listings == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recipient_id is required"})
			return
		}
		listing, err := h.Listings.ByID(c.Request.Context(), domainlistings.ListingID(listingID))
		if err != nil {
			if errors.Is(err, domainlistings.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
				return
			}
			h.respondChatError(c, err, "load listing")
			return
		}
		recipientID = string(listing.SellerID)
	}

	conv, err := h.Chat.GetOrCreateConversation(
		c.Request.Context(),
		domainuser.ID(p.ID),
		domainuser.ID(recipientID),
		domainlistings.ListingID(listingID),
	)
	if err != nil {
		h.respondChatError(c, err, "create conversation", "listing_id", listingID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.FromConversation(conv))
}

// ListMyConversations returns the current user's inbox.
func (h ChatHandler) ListMyConversations(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Chat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	page := parsePositiveIntStrict(c.Query("page"), 1)
	pageSize := parsePositiveIntStrict(c.Query("page_size"), 20)

	summaries, err := h.Chat.ListConversations(c.Request.Context(), domainuser.ID(p.ID), page, pageSize)
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", p.ID)
		return
	}
	collection := dto.ConversationPage{
		Conversations: make([]dto.ConversationSummary, 0, len(summaries)),
		Page:          page,
		PageSize:      pageSize,
	}
	for _, summary := range summaries {
		row := dto.FromConversationSummary(summary)
		if row.LastMessage != nil {
			h.resolveAttachmentURLs(row.LastMessage)
		}
		collection.Conversations = append(collection.Conversations, row)
	}
	c.JSON(http.StatusOK, collection)
}

// ListMessages returns one page of the conversation's history, oldest first.
// Fetching the page marks messages addressed to the caller as read.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Chat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	page := parsePositiveIntStrict(c.Query("page"), 1)
	pageSize := parsePositiveIntStrict(c.Query("page_size"), 20)

	messages, err := h.Chat.GetMessages(c.Request.Context(), domainchat.ConversationID(conversationID), domainuser.ID(p.ID), page, pageSize)
	if err != nil {
		h.respondChatError(c, err, "list messages", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	rows := dto.FromChatMessages(messages)
	for i := range rows {
		h.resolveAttachmentURLs(&rows[i])
	}
	c.JSON(http.StatusOK, dto.MessagePage{
		Messages: rows,
		Page:     page,
		PageSize: pageSize,
	})
}

type sendMessageRequest struct {
	Body        string `json:"body"`
	Kind        string `json:"kind"`
	Attachments []struct {
		Key         string `json:"key"`
		Name        string `json:"name"`
		ContentType string `json:"content_type"`
	} `json:"attachments"`
	Offer *struct {
		PriceCents int64     `json:"price_cents"`
		Currency   string    `json:"currency"`
		ListingID  string    `json:"listing_id"`
		ExpiresAt  time.Time `json:"expires_at"`
	} `json:"offer"`
}

// SendMessage appends a message to the conversation.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Chat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	params := chatsvc.SendMessageParams{
		ConversationID: domainchat.ConversationID(conversationID),
		SenderID:       domainuser.ID(p.ID),
		Body:           req.Body,
		Kind:           domainchat.Kind(req.Kind),
	}
	for _, att := range req.Attachments {
		params.Attachments = append(params.Attachments, domainchat.Attachment{
			Key:         att.Key,
			Name:        att.Name,
			ContentType: att.ContentType,
		})
	}
	if req.Offer != nil {
		params.Offer = &domainchat.OfferPayload{
			PriceCents: req.Offer.PriceCents,
			Currency:   req.Offer.Currency,
			ListingID:  domainlistings.ListingID(req.Offer.ListingID),
			ExpiresAt:  req.Offer.ExpiresAt,
		}
	}

	msg, err := h.Chat.SendMessage(c.Request.Context(), params)
	if err != nil {
		h.respondChatError(c, err, "send message", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	out := dto.FromChatMessage(msg)
	h.resolveAttachmentURLs(&out)
	c.JSON(http.StatusCreated, out)
}

// DeleteMessage removes a message; only its sender or a moderator may.
func (h ChatHandler) DeleteMessage(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Chat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	messageID := strings.TrimSpace(c.Param("id"))
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message id is required"})
		return
	}
	if err := h.Chat.DeleteMessage(c.Request.Context(), domainchat.MessageID(messageID), domainuser.ID(p.ID)); err != nil {
		h.respondChatError(c, err, "delete message", "message_id", messageID, "user_id", p.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnreadCount reports unread messages for the current user, optionally
// scoped to one conversation via ?conversation_id=.
func (h ChatHandler) UnreadCount(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Chat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
		return
	}
	conversationID := strings.TrimSpace(c.Query("conversation_id"))
	count, err := h.Chat.UnreadCount(c.Request.Context(), domainuser.ID(p.ID), domainchat.ConversationID(conversationID))
	if err != nil {
		h.respondChatError(c, err, "count unread", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.UnreadCount{Unread: count})
}

// UploadAttachment stores an uploaded file and appends its reference to a
// message the caller sent. Allowed only while the message is unread.
func (h ChatHandler) UploadAttachment(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Chat == nil || h.Attachments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attachments unavailable"})
		return
	}
	messageID := strings.TrimSpace(c.Param("id"))
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message id is required"})
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	key := fmt.Sprintf("messages/%s/%s%s", messageID, uuid.NewString(), filepath.Ext(fileHeader.Filename))
	if _, err := h.Attachments.Put(c.Request.Context(), key, file, fileHeader.Size, contentType); err != nil {
		h.respondChatError(c, err, "store attachment", "message_id", messageID)
		return
	}

	msg, err := h.Chat.AppendAttachment(c.Request.Context(), domainchat.MessageID(messageID), domainuser.ID(p.ID), domainchat.Attachment{
		Key:         key,
		Name:        fileHeader.Filename,
		ContentType: contentType,
	})
	if err != nil {
		h.respondChatError(c, err, "append attachment", "message_id", messageID, "user_id", p.ID)
		return
	}
	out := dto.FromChatMessage(msg)
	h.resolveAttachmentURLs(&out)
	c.JSON(http.StatusOK, out)
}

// resolveAttachmentURLs fills in the public URL for each stored object key.
func (h ChatHandler) resolveAttachmentURLs(msg *dto.ChatMessage) {
	if h.Attachments == nil {
		return
	}
	for i := range msg.Attachments {
		msg.Attachments[i].URL = h.Attachments.ObjectURL(msg.Attachments[i].Key)
	}
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	switch {
	case domainchat.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domainchat.ErrNotParticipant),
		errors.Is(err, domainchat.ErrParticipantIneligible),
		errors.Is(err, domainchat.ErrDeleteForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domainchat.ErrConversationNotFound),
		errors.Is(err, domainchat.ErrMessageNotFound),
		errors.Is(err, domainchat.ErrRecipientNotFound),
		errors.Is(err, domainchat.ErrListingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat call failed", append([]any{"action", action, "error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parsePositiveIntStrict(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

var _ ChatHTTP = (*ChatHandler)(nil)
