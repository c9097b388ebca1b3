package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

// MessageRepository is the durable append-only log. Messages never change
// after insert except for the read flag (bulk conditional update) and
// attachment pushes guarded on the unread state.
type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection("messages")}
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "seq", Value: -1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "read", Value: 1}}},
	})
	return err
}

func (r *MessageRepository) Append(ctx context.Context, msg *domainchat.Message) error {
	if _, err := r.col.InsertOne(ctx, newMessageDocument(msg)); err != nil {
		return fmt.Errorf("mongo: insert message: %w", err)
	}
	return nil
}

func (r *MessageRepository) ByID(ctx context.Context, id domainchat.MessageID) (*domainchat.Message, error) {
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrMessageNotFound
		}
		return nil, fmt.Errorf("mongo: load message: %w", err)
	}
	return doc.toEntity(), nil
}

func (r *MessageRepository) ListPage(ctx context.Context, conversationID domainchat.ConversationID, page, pageSize int) ([]*domainchat.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	cursor, err := r.col.Find(ctx, bson.M{"conversation_id": string(conversationID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domainchat.Message
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode message: %w", err)
		}
		out = append(out, doc.toEntity())
	}
	return out, cursor.Err()
}

func (r *MessageRepository) Latest(ctx context.Context, conversationID domainchat.ConversationID) (*domainchat.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}})
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"conversation_id": string(conversationID)}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongo: load latest message: %w", err)
	}
	return doc.toEntity(), nil
}

// MarkRead is one bulk conditional update: rows inserted after the statement
// executes are simply left unread, and a concurrent double-mark is a no-op.
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID domainchat.ConversationID, recipientID domainuser.ID) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{
			"conversation_id": string(conversationID),
			"recipient_id":    string(recipientID),
			"read":            false,
		},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mongo: mark read: %w", err)
	}
	return res.ModifiedCount, nil
}

// AppendAttachment pushes one reference iff the message is still unread and
// holds fewer than MaxAttachments. On a miss the row is re-read to tell the
// caller which condition failed.
func (r *MessageRepository) AppendAttachment(ctx context.Context, id domainchat.MessageID, att domainchat.Attachment) (*domainchat.Message, error) {
	normalized := attachmentDocument{Key: att.Key, Name: att.Name, ContentType: att.ContentType}
	filter := bson.M{
		"_id":  string(id),
		"read": false,
		fmt.Sprintf("attachments.%d", domainchat.MaxAttachments-1): bson.M{"$exists": false},
	}
	update := bson.M{"$push": bson.M{"attachments": normalized}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc messageDocument
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toEntity(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("mongo: append attachment: %w", err)
	}

	current, lookupErr := r.ByID(ctx, id)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if current.Read {
		return nil, domainchat.ErrMessageAlreadyRead
	}
	return nil, domainchat.ErrTooManyAttachments
}

func (r *MessageRepository) Delete(ctx context.Context, id domainchat.MessageID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return fmt.Errorf("mongo: delete message: %w", err)
	}
	if res.DeletedCount == 0 {
		return domainchat.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, recipientID domainuser.ID, conversationID domainchat.ConversationID) (int64, error) {
	filter := bson.M{"recipient_id": string(recipientID), "read": false}
	if conversationID != "" {
		filter["conversation_id"] = string(conversationID)
	}
	count, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo: count unread: %w", err)
	}
	return count, nil
}

type messageDocument struct {
	ID             string               `bson:"_id"`
	ConversationID string               `bson:"conversation_id"`
	SenderID       string               `bson:"sender_id"`
	RecipientID    string               `bson:"recipient_id"`
	Body           string               `bson:"body"`
	Kind           string               `bson:"kind"`
	Attachments    []attachmentDocument `bson:"attachments"`
	Offer          *offerDocument       `bson:"offer,omitempty"`
	Read           bool                 `bson:"read"`
	Seq            int64                `bson:"seq"`
	CreatedAt      int64                `bson:"created_at"`
}

type attachmentDocument struct {
	Key         string `bson:"key"`
	Name        string `bson:"name,omitempty"`
	ContentType string `bson:"content_type"`
}

type offerDocument struct {
	PriceCents int64  `bson:"price_cents"`
	Currency   string `bson:"currency"`
	ListingID  string `bson:"listing_id"`
	ExpiresAt  int64  `bson:"expires_at"`
	Status     string `bson:"status"`
}

func newMessageDocument(msg *domainchat.Message) messageDocument {
	doc := messageDocument{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		SenderID:       string(msg.SenderID),
		RecipientID:    string(msg.RecipientID),
		Body:           msg.Body,
		Kind:           string(msg.Kind),
		Attachments:    make([]attachmentDocument, 0, len(msg.Attachments)),
		Read:           msg.Read,
		Seq:            msg.Seq,
		CreatedAt:      msg.CreatedAt.UnixMilli(),
	}
	for _, att := range msg.Attachments {
		doc.Attachments = append(doc.Attachments, attachmentDocument{
			Key:         att.Key,
			Name:        att.Name,
			ContentType: att.ContentType,
		})
	}
	if msg.Offer != nil {
		doc.Offer = &offerDocument{
			PriceCents: msg.Offer.PriceCents,
			Currency:   msg.Offer.Currency,
			ListingID:  string(msg.Offer.ListingID),
			ExpiresAt:  msg.Offer.ExpiresAt.UnixMilli(),
			Status:     string(msg.Offer.Status),
		}
	}
	return doc
}

func (d messageDocument) toEntity() *domainchat.Message {
	msg := &domainchat.Message{
		ID:             domainchat.MessageID(d.ID),
		ConversationID: domainchat.ConversationID(d.ConversationID),
		SenderID:       domainuser.ID(d.SenderID),
		RecipientID:    domainuser.ID(d.RecipientID),
		Body:           d.Body,
		Kind:           domainchat.Kind(d.Kind),
		Attachments:    make([]domainchat.Attachment, 0, len(d.Attachments)),
		Read:           d.Read,
		Seq:            d.Seq,
		CreatedAt:      timestampToTime(d.CreatedAt),
	}
	for _, att := range d.Attachments {
		msg.Attachments = append(msg.Attachments, domainchat.Attachment{
			Key:         att.Key,
			Name:        att.Name,
			ContentType: att.ContentType,
		})
	}
	if d.Offer != nil {
		msg.Offer = &domainchat.OfferPayload{
			PriceCents: d.Offer.PriceCents,
			Currency:   d.Offer.Currency,
			ListingID:  domainlistings.ListingID(d.Offer.ListingID),
			ExpiresAt:  timestampToTime(d.Offer.ExpiresAt),
			Status:     domainchat.OfferStatus(d.Offer.Status),
		}
	}
	return msg
}
