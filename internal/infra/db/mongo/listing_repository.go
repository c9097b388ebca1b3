package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection("listings")}
}

func (r *ListingRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: load listing: %w", err)
	}
	return doc.toEntity(), nil
}

func (r *ListingRepository) BySeller(ctx context.Context, sellerID domainuser.ID) ([]*domainlistings.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"seller_id": string(sellerID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list listings: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*domainlistings.Listing
	for cursor.Next(ctx) {
		var doc listingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode listing: %w", err)
		}
		out = append(out, doc.toEntity())
	}
	return out, cursor.Err()
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	doc := newListingDocument(listing)
	opts := options.Replace().SetUpsert(true)
	if _, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongo: save listing: %w", err)
	}
	return nil
}

type listingDocument struct {
	ID          string   `bson:"_id"`
	SellerID    string   `bson:"seller_id"`
	Title       string   `bson:"title"`
	Description string   `bson:"description,omitempty"`
	Category    string   `bson:"category,omitempty"`
	Brand       string   `bson:"brand,omitempty"`
	Model       string   `bson:"model,omitempty"`
	Year        int      `bson:"year,omitempty"`
	Condition   string   `bson:"condition,omitempty"`
	PriceCents  int64    `bson:"price_cents"`
	Currency    string   `bson:"currency"`
	Region      string   `bson:"region,omitempty"`
	Photos      []string `bson:"photos,omitempty"`
	State       string   `bson:"state"`
	CreatedAt   int64    `bson:"created_at"`
	UpdatedAt   int64    `bson:"updated_at"`
}

func newListingDocument(listing *domainlistings.Listing) listingDocument {
	return listingDocument{
		ID:          string(listing.ID),
		SellerID:    string(listing.SellerID),
		Title:       listing.Title,
		Description: listing.Description,
		Category:    listing.Category,
		Brand:       listing.Brand,
		Model:       listing.Model,
		Year:        listing.Year,
		Condition:   listing.Condition,
		PriceCents:  listing.PriceCents,
		Currency:    listing.Currency,
		Region:      listing.Region,
		Photos:      listing.Photos,
		State:       string(listing.State),
		CreatedAt:   listing.CreatedAt.UnixMilli(),
		UpdatedAt:   listing.UpdatedAt.UnixMilli(),
	}
}

func (d listingDocument) toEntity() *domainlistings.Listing {
	return &domainlistings.Listing{
		ID:          domainlistings.ListingID(d.ID),
		SellerID:    domainuser.ID(d.SellerID),
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Brand:       d.Brand,
		Model:       d.Model,
		Year:        d.Year,
		Condition:   d.Condition,
		PriceCents:  d.PriceCents,
		Currency:    d.Currency,
		Region:      d.Region,
		Photos:      d.Photos,
		State:       domainlistings.State(d.State),
		CreatedAt:   timestampToTime(d.CreatedAt),
		UpdatedAt:   timestampToTime(d.UpdatedAt),
	}
}
