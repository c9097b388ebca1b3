package listings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Lookout84/agromarket/internal/domain/user"
)

var (
	ErrIDRequired     = errors.New("listings: id is required")
	ErrSellerRequired = errors.New("listings: seller is required")
	ErrTitleRequired  = errors.New("listings: title is required")
	ErrPriceInvalid   = errors.New("listings: price must be non-negative")
	ErrInvalidState   = errors.New("listings: invalid state transition")
	ErrNotFound       = errors.New("listings: not found")
)

type ListingID string

type State string

const (
	StateDraft  State = "draft"
	StateActive State = "active"
	StateSold   State = "sold"
)

// Listing is a piece of agricultural equipment offered for sale.
type Listing struct {
	ID          ListingID
	SellerID    user.ID
	Title       string
	Description string
	Category    string
	Brand       string
	Model       string
	Year        int
	Condition   string
	PriceCents  int64
	Currency    string
	Region      string
	Photos      []string
	State       State
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	BySeller(ctx context.Context, sellerID user.ID) ([]*Listing, error)
	Save(ctx context.Context, listing *Listing) error
}

type CreateParams struct {
	ID          ListingID
	SellerID    user.ID
	Title       string
	Description string
	Category    string
	Brand       string
	Model       string
	Year        int
	Condition   string
	PriceCents  int64
	Currency    string
	Region      string
	CreatedAt   time.Time
}

func NewListing(params CreateParams) (*Listing, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(string(params.SellerID)) == "" {
		return nil, ErrSellerRequired
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if params.PriceCents < 0 {
		return nil, ErrPriceInvalid
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "UAH"
	}

	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	return &Listing{
		ID:          ListingID(id),
		SellerID:    params.SellerID,
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		Category:    strings.TrimSpace(params.Category),
		Brand:       strings.TrimSpace(params.Brand),
		Model:       strings.TrimSpace(params.Model),
		Year:        params.Year,
		Condition:   strings.TrimSpace(params.Condition),
		PriceCents:  params.PriceCents,
		Currency:    currency,
		Region:      strings.TrimSpace(params.Region),
		State:       StateDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (l *Listing) Publish(now time.Time) error {
	if l.State == StateSold {
		return ErrInvalidState
	}
	l.State = StateActive
	l.touch(now)
	return nil
}

func (l *Listing) MarkSold(now time.Time) error {
	if l.State != StateActive {
		return ErrInvalidState
	}
	l.State = StateSold
	l.touch(now)
	return nil
}

func (l *Listing) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	l.UpdatedAt = now.UTC()
}
