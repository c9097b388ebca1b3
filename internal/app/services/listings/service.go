package listings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	"github.com/Lookout84/agromarket/internal/domain/user"
)

var (
	ErrServiceNotConfigured = errors.New("listings service: not fully configured")
	ErrNotOwner             = errors.New("listings service: requester does not own the listing")
)

type Service struct {
	Listings domainlistings.Repository
	Users    user.Repository
	Logger   *slog.Logger
	Clock    func() time.Time
}

type CreateParams struct {
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
}

// Create stores a new draft listing owned by the seller.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domainlistings.Listing, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	listing, err := domainlistings.NewListing(domainlistings.CreateParams{
		ID:          domainlistings.ListingID(uuid.NewString()),
		SellerID:    params.SellerID,
		Title:       params.Title,
		Description: params.Description,
		Category:    params.Category,
		Brand:       params.Brand,
		Model:       params.Model,
		Year:        params.Year,
		Condition:   params.Condition,
		PriceCents:  params.PriceCents,
		Currency:    params.Currency,
		Region:      params.Region,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Listings.Save(ctx, listing); err != nil {
		return nil, err
	}
	s.logger().Info("listing created", "listing_id", listing.ID, "seller_id", listing.SellerID)
	return listing, nil
}

func (s *Service) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Listings.ByID(ctx, id)
}

func (s *Service) BySeller(ctx context.Context, sellerID user.ID) ([]*domainlistings.Listing, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Listings.BySeller(ctx, sellerID)
}

// Publish makes a listing visible to buyers. The owner picks up the seller
// role on their first published listing.
func (s *Service) Publish(ctx context.Context, id domainlistings.ListingID, requesterID user.ID) (*domainlistings.Listing, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	listing, err := s.owned(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := listing.Publish(now); err != nil {
		return nil, err
	}
	if err := s.Listings.Save(ctx, listing); err != nil {
		return nil, err
	}
	if s.Users != nil {
		if err := s.grantSellerRole(ctx, requesterID, now); err != nil {
			s.logger().Warn("grant seller role failed", "user_id", requesterID, "error", err)
		}
	}
	s.logger().Info("listing published", "listing_id", listing.ID, "seller_id", listing.SellerID)
	return listing, nil
}

func (s *Service) MarkSold(ctx context.Context, id domainlistings.ListingID, requesterID user.ID) (*domainlistings.Listing, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	listing, err := s.owned(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	if err := listing.MarkSold(s.now()); err != nil {
		return nil, err
	}
	if err := s.Listings.Save(ctx, listing); err != nil {
		return nil, err
	}
	s.logger().Info("listing sold", "listing_id", listing.ID)
	return listing, nil
}

func (s *Service) owned(ctx context.Context, id domainlistings.ListingID, requesterID user.ID) (*domainlistings.Listing, error) {
	listing, err := s.Listings.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != requesterID {
		return nil, ErrNotOwner
	}
	return listing, nil
}

func (s *Service) grantSellerRole(ctx context.Context, id user.ID, now time.Time) error {
	account, err := s.Users.ByID(ctx, id)
	if err != nil {
		return err
	}
	if account.HasRole(user.RoleSeller) {
		return nil
	}
	if err := account.EnsureRole(user.RoleSeller, now); err != nil {
		return err
	}
	if err := s.Users.Save(ctx, account); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Service) ready() error {
	if s.Listings == nil {
		return ErrServiceNotConfigured
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
