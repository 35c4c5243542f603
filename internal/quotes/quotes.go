package quotes

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/simbroker/papertrade-api/internal/types"
	"github.com/simbroker/papertrade-api/pkg/response"
	"gorm.io/gorm"
)

// ErrNotAvailable is returned when no quote has ever been delivered for an
// asset. The engine treats it the same as a stale quote: the order waits.
var ErrNotAvailable = errors.New("no quote available")

// Service is the quote cache. An external feed pushes prices in through the
// ingest endpoint; the engine only ever reads the latest quote per asset.
type Service struct {
	db *Database
}

// NewService creates a new quote cache backed by the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// GetLatestQuote returns the freshest known quote for the asset, or
// ErrNotAvailable if none has been delivered yet. Staleness is judged by the
// caller against its own freshness window.
func (s *Service) GetLatestQuote(assetID string) (*types.Quote, error) {
	return s.db.GetQuote(assetID)
}

// SetQuote records a price delivered by the external feed, replacing any
// previous quote for the asset.
func (s *Service) SetQuote(assetID string, price float64, asOf time.Time) error {
	if err := s.db.UpsertQuote(assetID, price, asOf); err != nil {
		return err
	}

	log.Debug().
		Str("asset_id", assetID).
		Float64("price", price).
		Time("as_of", asOf).
		Msg("quote cached")

	return nil
}

// GinHandlers contains HTTP handlers for the quote ingest endpoint
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SetQuoteHandler handles PUT requests from the external quote feed.
// An omitted as_of defaults to the delivery time.
func (h *GinHandlers) SetQuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			AssetID string     `json:"asset_id" binding:"required"`
			Price   float64    `json:"price" binding:"required"`
			AsOf    *time.Time `json:"as_of"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if request.Price <= 0 {
			response.BadRequest(c, "price must be positive")
			return
		}

		asOf := time.Now()
		if request.AsOf != nil {
			asOf = *request.AsOf
		}

		if err := h.service.SetQuote(request.AssetID, request.Price, asOf); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"message": "quote recorded"})
	}
}
