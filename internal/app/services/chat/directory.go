package chat

import (
	"context"
	"errors"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

// IdentityFromUsers adapts the user repository to the narrow identity lookup
// the messaging core consumes.
type IdentityFromUsers struct {
	Users domainuser.Repository
}

func (d IdentityFromUsers) Exists(ctx context.Context, id domainuser.ID) (bool, error) {
	_, err := d.Users.ByID(ctx, id)
	if errors.Is(err, domainuser.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d IdentityFromUsers) Eligible(ctx context.Context, id domainuser.ID) (bool, error) {
	u, err := d.Users.ByID(ctx, id)
	if errors.Is(err, domainuser.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !u.Suspended, nil
}

func (d IdentityFromUsers) CanModerate(ctx context.Context, id domainuser.ID) (bool, error) {
	u, err := d.Users.ByID(ctx, id)
	if errors.Is(err, domainuser.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.HasRole(domainuser.RoleModerator), nil
}

// ListingsFromRepository resolves a listing to its seller through the
// listing repository.
type ListingsFromRepository struct {
	Listings domainlistings.Repository
}

func (d ListingsFromRepository) SellerOf(ctx context.Context, id domainlistings.ListingID) (domainuser.ID, error) {
	listing, err := d.Listings.ByID(ctx, id)
	if err != nil {
		return "", err
	}
	return listing.SellerID, nil
}

var (
	_ domainchat.IdentityDirectory = IdentityFromUsers{}
	_ domainchat.ListingDirectory  = ListingsFromRepository{}
)
