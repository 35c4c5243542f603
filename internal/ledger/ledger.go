package ledger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/simbroker/papertrade-api/pkg/response"
	"gorm.io/gorm"
)

// Service handles simulated account cash and position management
type Service struct {
	db *Database
}

// NewService creates a new ledger service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// GetDatabase exposes the ledger's database wrapper for the engine wiring.
func (s *Service) GetDatabase() *Database {
	return s.db
}

// CreateAccount opens a new simulated trading account with the given
// starting cash balance.
func (s *Service) CreateAccount(initialCash float64) (*Account, error) {
	account := &Account{
		AccountID:   "ACC_" + uuid.New().String(),
		CashBalance: initialCash,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.db.CreateAccount(account); err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", account.AccountID).
		Float64("cash_balance", account.CashBalance).
		Msg("account created")

	return account, nil
}

// GetAccount returns the account with its open positions.
func (s *Service) GetAccount(accountID string) (*AccountResponse, error) {
	account, err := s.db.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	positions, err := s.db.GetPositions(accountID)
	if err != nil {
		return nil, err
	}

	return &AccountResponse{
		AccountID:   account.AccountID,
		CashBalance: account.CashBalance,
		Positions:   positions,
	}, nil
}

// Deposit credits simulated cash to an account.
func (s *Service) Deposit(accountID string, amount float64) error {
	if err := s.db.Deposit(accountID, amount); err != nil {
		return err
	}

	log.Info().
		Str("account_id", accountID).
		Float64("amount", amount).
		Msg("cash deposited")

	return nil
}

// GinHandlers contains HTTP handlers for account endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for account endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateAccountHandler handles POST requests to open accounts
func (h *GinHandlers) CreateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			InitialCash float64 `json:"initial_cash"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if request.InitialCash < 0 {
			response.BadRequest(c, "initial cash cannot be negative")
			return
		}

		account, err := h.service.CreateAccount(request.InitialCash)
		response.Handle(c, account, err)
	}
}

// GetAccountHandler handles GET requests for account balances and positions
func (h *GinHandlers) GetAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Param("account_id")

		account, err := h.service.GetAccount(accountID)
		if err == ErrAccountNotFound {
			response.NotFound(c, "Account not found")
			return
		}
		response.Handle(c, account, err)
	}
}

// DepositHandler handles POST requests to credit cash to an account
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.Param("account_id")

		var request struct {
			Amount float64 `json:"amount" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if request.Amount <= 0 {
			response.BadRequest(c, "deposit amount must be positive")
			return
		}

		if err := h.service.Deposit(accountID, request.Amount); err != nil {
			if err == ErrAccountNotFound {
				response.NotFound(c, "Account not found")
				return
			}
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"message": "deposit applied"})
	}
}
