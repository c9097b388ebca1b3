package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

// ConversationRepository stores conversations keyed by their canonical
// (listing, buyer, seller) triple. A unique compound index makes the
// find-or-create race safe: the losing insert hits a duplicate-key error and
// re-reads the winner's row.
type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection("conversations")}
}

func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}, {Key: "seller_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "last_activity_at", Value: -1}}},
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "last_activity_at", Value: -1}}},
	})
	return err
}

func (r *ConversationRepository) GetOrCreate(ctx context.Context, conv *domainchat.Conversation) (*domainchat.Conversation, bool, error) {
	doc := newConversationDocument(conv)
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, fmt.Errorf("mongo: insert conversation: %w", err)
		}
		// Lost the create race: the canonical key already exists.
		filter := bson.M{
			"listing_id": string(conv.ListingID),
			"buyer_id":   string(conv.BuyerID),
			"seller_id":  string(conv.SellerID),
		}
		var existing conversationDocument
		if err := r.col.FindOne(ctx, filter).Decode(&existing); err != nil {
			return nil, false, fmt.Errorf("mongo: reload conversation after conflict: %w", err)
		}
		return existing.toEntity(), false, nil
	}
	return doc.toEntity(), true, nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, fmt.Errorf("mongo: load conversation: %w", err)
	}
	return doc.toEntity(), nil
}

func (r *ConversationRepository) ListByUser(ctx context.Context, userID domainuser.ID, page, pageSize int) ([]*domainchat.Conversation, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"buyer_id": string(userID)},
		bson.M{"seller_id": string(userID)},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domainchat.Conversation
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode conversation: %w", err)
		}
		out = append(out, doc.toEntity())
	}
	return out, cursor.Err()
}

func (r *ConversationRepository) NextSeq(ctx context.Context, id domainchat.ConversationID, at time.Time) (int64, time.Time, error) {
	// $max keeps last_message_at monotonic, so the returned document carries
	// the commit timestamp for this sequence: the caller's clock sample or
	// the previous message's timestamp, whichever is later. The counter and
	// the timestamp come out of one FindOneAndUpdate, so (created_at, seq)
	// cannot disagree with allocation order.
	ms := at.UTC().UnixMilli()
	update := bson.M{
		"$inc": bson.M{"message_seq": 1},
		"$max": bson.M{
			"last_message_at":  ms,
			"last_activity_at": ms,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc conversationDocument
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": string(id)}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, time.Time{}, domainchat.ErrConversationNotFound
		}
		return 0, time.Time{}, fmt.Errorf("mongo: advance conversation sequence: %w", err)
	}
	return doc.MessageSeq, timestampToTime(doc.LastMessageAt), nil
}

func (r *ConversationRepository) Touch(ctx context.Context, id domainchat.ConversationID, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": string(id)},
		bson.M{"$set": bson.M{"last_activity_at": at.UTC().UnixMilli()}},
	)
	if err != nil {
		return fmt.Errorf("mongo: touch conversation: %w", err)
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

type conversationDocument struct {
	ID             string `bson:"_id"`
	BuyerID        string `bson:"buyer_id"`
	SellerID       string `bson:"seller_id"`
	ListingID      string `bson:"listing_id"`
	InitiatorID    string `bson:"initiator_id"`
	MessageSeq     int64  `bson:"message_seq"`
	LastMessageAt  int64  `bson:"last_message_at"`
	LastActivityAt int64  `bson:"last_activity_at"`
	CreatedAt      int64  `bson:"created_at"`
}

func newConversationDocument(conv *domainchat.Conversation) conversationDocument {
	return conversationDocument{
		ID:             string(conv.ID),
		BuyerID:        string(conv.BuyerID),
		SellerID:       string(conv.SellerID),
		ListingID:      string(conv.ListingID),
		InitiatorID:    string(conv.InitiatorID),
		LastActivityAt: conv.LastActivityAt.UnixMilli(),
		CreatedAt:      conv.CreatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toEntity() *domainchat.Conversation {
	return &domainchat.Conversation{
		ID:             domainchat.ConversationID(d.ID),
		BuyerID:        domainuser.ID(d.BuyerID),
		SellerID:       domainuser.ID(d.SellerID),
		ListingID:      domainlistings.ListingID(d.ListingID),
		InitiatorID:    domainuser.ID(d.InitiatorID),
		LastActivityAt: timestampToTime(d.LastActivityAt),
		CreatedAt:      timestampToTime(d.CreatedAt),
	}
}
