package dto

import (
	"time"

	"github.com/Lookout84/agromarket/internal/domain/listings"
)

type Listing struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Brand       string    `json:"brand,omitempty"`
	Model       string    `json:"model,omitempty"`
	Year        int       `json:"year,omitempty"`
	Condition   string    `json:"condition,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	Region      string    `json:"region,omitempty"`
	Photos      []string  `json:"photos,omitempty"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func FromListing(listing *listings.Listing) Listing {
	return Listing{
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
		CreatedAt:   listing.CreatedAt,
		UpdatedAt:   listing.UpdatedAt,
	}
}

func FromListings(items []*listings.Listing) []Listing {
	out := make([]Listing, 0, len(items))
	for _, item := range items {
		out = append(out, FromListing(item))
	}
	return out
}
