package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"github.com/Lookout84/agromarket/internal/app/dto"
	listingssvc "github.com/Lookout84/agromarket/internal/app/services/listings"
	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

type ListingHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	MyListings(c *gin.Context)
	Publish(c *gin.Context)
	MarkSold(c *gin.Context)
}

type ListingHandler struct {
	Service *listingssvc.Service
	Logger  *slog.Logger
}

type createListingRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Brand       string `json:"brand"`
	Model       string `json:"model"`
	Year        int    `json:"year"`
	Condition   string `json:"condition"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	Region      string `json:"region"`
}

func (h ListingHandler) Create(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	listing, err := h.Service.Create(c.Request.Context(), listingssvc.CreateParams{
		SellerID:    domainuser.ID(p.ID),
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Brand:       req.Brand,
		Model:       req.Model,
		Year:        req.Year,
		Condition:   req.Condition,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		Region:      req.Region,
	})
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.FromListing(listing))
}

func (h ListingHandler) Get(c *gin.Context) {
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing id is required"})
		return
	}
	listing, err := h.Service.ByID(c.Request.Context(), domainlistings.ListingID(id))
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromListing(listing))
}

func (h ListingHandler) MyListings(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	items, err := h.Service.BySeller(c.Request.Context(), domainuser.ID(p.ID))
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": dto.FromListings(items)})
}

func (h ListingHandler) Publish(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	listing, err := h.Service.Publish(c.Request.Context(), domainlistings.ListingID(id), domainuser.ID(p.ID))
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromListing(listing))
}

func (h ListingHandler) MarkSold(c *gin.Context) {
	p, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	listing, err := h.Service.MarkSold(c.Request.Context(), domainlistings.ListingID(id), domainuser.ID(p.ID))
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromListing(listing))
}

func (h ListingHandler) respondListingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainlistings.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
	case errors.Is(err, listingssvc.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "not the listing owner"})
	case errors.Is(err, domainlistings.ErrTitleRequired),
		errors.Is(err, domainlistings.ErrPriceInvalid),
		errors.Is(err, domainlistings.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("listing operation failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

var _ ListingHTTP = (*ListingHandler)(nil)
