package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/simbroker/papertrade-api/internal/types"
	"github.com/simbroker/papertrade-api/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrNotCancellable = errors.New("order is no longer cancellable")
)

// Service handles order entry: creation, lookup and external cancellation.
// Once an order is PENDING, every further transition belongs to the engine;
// the only write this service performs after creation is the conditional
// PENDING -> CANCELLED transition.
type Service struct {
	db *Database
}

// NewService creates a new order-entry service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateOrder validates and persists a new order in PENDING, with idempotency
// support: resubmitting the same key returns the original order.
func (s *Service) CreateOrder(req *CreateOrderRequest, idempotencyKey string) (*types.Order, error) {
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err == nil && record != nil && record.ResourceID != "" && record.ExpiresAt.After(time.Now()) {
		existing, err := s.db.GetOrder(record.ResourceID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrOrderNotFound
		}
		return existing, nil
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	order := &types.Order{
		OrderID:    "ORD_" + uuid.New().String(),
		AccountID:  req.AccountID,
		AssetID:    req.AssetID,
		Side:       req.Side,
		Kind:       req.Kind,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		Status:     types.StatusPending,
		Version:    1,
		ExpiresAt:  req.ExpiresAt,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	// Market orders expire same-day unless the client says otherwise.
	if order.Kind == types.KindMarket && order.ExpiresAt == nil {
		endOfDay := endOfTradingDay(time.Now())
		order.ExpiresAt = &endOfDay
	}

	if err := s.db.CreateOrderWithIdempotency(order, idempotencyKey); err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("account_id", order.AccountID).
		Str("asset_id", order.AssetID).
		Str("side", order.Side).
		Str("kind", order.Kind).
		Float64("quantity", order.Quantity).
		Msg("order created")

	return order, nil
}

// GetOrder retrieves an order scoped to the requesting account.
func (s *Service) GetOrder(orderID, accountID string) (*types.Order, error) {
	return s.db.GetOrderByOrderIDAndAccountID(orderID, accountID)
}

// ListOrders retrieves all orders for an account, newest first.
func (s *Service) ListOrders(accountID string) ([]types.Order, error) {
	return s.db.ListAccountOrders(accountID)
}

// CancelOrder cancels a PENDING order. An order the engine has already
// claimed or resolved is no longer cancellable.
func (s *Service) CancelOrder(orderID, accountID string) (*types.Order, error) {
	order, err := s.db.GetOrderByOrderIDAndAccountID(orderID, accountID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != types.StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrNotCancellable, order.Status)
	}

	if err := s.db.CancelPending(order); err != nil {
		if errors.Is(err, types.ErrVersionMismatch) {
			// The engine advanced the order between our read and the write.
			return nil, fmt.Errorf("%w: order was advanced concurrently", ErrNotCancellable)
		}
		return nil, err
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("account_id", order.AccountID).
		Msg("order cancelled")

	return s.db.GetOrder(orderID)
}

func validateRequest(req *CreateOrderRequest) error {
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return fmt.Errorf("invalid side %q", req.Side)
	}
	if req.Kind != types.KindMarket && req.Kind != types.KindLimit {
		return fmt.Errorf("invalid kind %q", req.Kind)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if req.Kind == types.KindLimit {
		if req.LimitPrice == nil || *req.LimitPrice <= 0 {
			return fmt.Errorf("limit orders require a positive limit price")
		}
	} else if req.LimitPrice != nil {
		return fmt.Errorf("market orders must not carry a limit price")
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		return fmt.Errorf("expiry must be in the future")
	}
	return nil
}

func endOfTradingDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())
}

// GinHandlers contains HTTP handlers for order-entry endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for order-entry endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOrderHandler handles POST requests to place new orders.
// Requires an idempotency key in headers.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CreateOrder(&req, idempotencyKey)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		response.Success(c, order)
	}
}

// GetOrderHandler handles GET requests for a single order.
// URL parameter: order_id; account scoping comes from the X-Account-ID header.
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetHeader("X-Account-ID")
		if accountID == "" {
			response.BadRequest(c, "X-Account-ID header is required")
			return
		}

		orderID := c.Param("order_id")
		order, err := h.service.GetOrder(orderID, accountID)
		if err != nil || order == nil {
			response.NotFound(c, "Order not found")
			return
		}

		response.Success(c, order)
	}
}

// ListOrdersHandler handles GET requests for an account's orders.
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetHeader("X-Account-ID")
		if accountID == "" {
			response.BadRequest(c, "X-Account-ID header is required")
			return
		}

		orders, err := h.service.ListOrders(accountID)
		response.Handle(c, orders, err)
	}
}

// CancelOrderHandler handles DELETE requests to cancel pending orders.
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetHeader("X-Account-ID")
		if accountID == "" {
			response.BadRequest(c, "X-Account-ID header is required")
			return
		}

		orderID := c.Param("order_id")
		order, err := h.service.CancelOrder(orderID, accountID)
		if err != nil {
			switch {
			case errors.Is(err, ErrOrderNotFound):
				response.NotFound(c, "Order not found")
			case errors.Is(err, ErrNotCancellable):
				response.Conflict(c, err.Error())
			default:
				response.Handle(c, nil, err)
			}
			return
		}

		response.Success(c, order)
	}
}
