package handlers

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"go-ledger/internal/engine"
	"go-ledger/internal/services"
	"go-ledger/internal/utils"
)

// StakingHandler handles staking API requests
type StakingHandler struct {
	stakingService *services.StakingService
}

// NewStakingHandler creates a new StakingHandler instance
func NewStakingHandler(stakingService *services.StakingService) *StakingHandler {
	return &StakingHandler{stakingService: stakingService}
}

// DepositRequest is the body of POST /api/staking/deposit
type DepositRequest struct {
	Caller  string `json:"caller" binding:"required"`
	Account string `json:"account"` // defaults to caller
	Amount  string `json:"amount" binding:"required"`
}

// WithdrawRequest is the body of POST /api/staking/withdraw
type WithdrawRequest struct {
	Caller    string `json:"caller" binding:"required"`
	Recipient string `json:"recipient"` // defaults to caller
	Amount    string `json:"amount" binding:"required"`
}

// AccountRequest is the body of restake and claim requests
type AccountRequest struct {
	Caller string `json:"caller" binding:"required"`
}

// respondEngineError maps a service error to the stable error code and the
// right HTTP status: validation errors are the caller's fault, ledger
// failures are upstream, everything else is internal.
func respondEngineError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case engine.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrLedgerTransfer):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    engine.Code(err),
	})
}

func parseAddress(c *gin.Context, field, value string) (common.Address, bool) {
	if !common.IsHexAddress(value) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   field + " must be a hex address",
			"code":    "INVALID_ADDRESS",
		})
		return common.Address{}, false
	}
	return common.HexToAddress(value), true
}

// DepositHandler handles POST /api/staking/deposit
func (h *StakingHandler) DepositHandler(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	caller, ok := parseAddress(c, "caller", req.Caller)
	if !ok {
		return
	}
	account := caller
	if req.Account != "" {
		if account, ok = parseAddress(c, "account", req.Account); !ok {
			return
		}
	}
	amount := utils.ParseAmount(req.Amount)
	if amount == nil {
		respondEngineError(c, engine.ErrInsufficientDeposit)
		return
	}

	result, err := h.stakingService.Deposit(c.Request.Context(), caller, account, amount)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// WithdrawHandler handles POST /api/staking/withdraw
func (h *StakingHandler) WithdrawHandler(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	caller, ok := parseAddress(c, "caller", req.Caller)
	if !ok {
		return
	}
	recipient := caller
	if req.Recipient != "" {
		if recipient, ok = parseAddress(c, "recipient", req.Recipient); !ok {
			return
		}
	}
	amount := utils.ParseAmount(req.Amount)
	if amount == nil {
		respondEngineError(c, engine.ErrInsufficientWithdraw)
		return
	}

	result, err := h.stakingService.Withdraw(c.Request.Context(), caller, recipient, amount)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// RestakeHandler handles POST /api/staking/restake
func (h *StakingHandler) RestakeHandler(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	caller, ok := parseAddress(c, "caller", req.Caller)
	if !ok {
		return
	}

	result, err := h.stakingService.Restake(c.Request.Context(), caller)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// ClaimHandler handles POST /api/staking/claim
func (h *StakingHandler) ClaimHandler(c *gin.Context) {
	var req AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	caller, ok := parseAddress(c, "caller", req.Caller)
	if !ok {
		return
	}

	paid, err := h.stakingService.ClaimRewards(c.Request.Context(), caller)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"account":     caller.Hex(),
			"reward_paid": paid.String(),
		},
	})
}

// GetStakeInfoHandler handles GET /api/staking/:account
func (h *StakingHandler) GetStakeInfoHandler(c *gin.Context) {
	account, ok := parseAddress(c, "account", c.Param("account"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.stakingService.GetStakeInfo(account),
	})
}
