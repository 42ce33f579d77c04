package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-ledger/internal/services"
	"go-ledger/internal/utils"
)

// AdminPolicyHandler handles policy parameter and pool administration
type AdminPolicyHandler struct {
	policyService *services.PolicyService
	swapService   *services.SwapService
}

// NewAdminPolicyHandler creates a new AdminPolicyHandler instance
func NewAdminPolicyHandler(policyService *services.PolicyService, swapService *services.SwapService) *AdminPolicyHandler {
	return &AdminPolicyHandler{
		policyService: policyService,
		swapService:   swapService,
	}
}

// SetRewardRateRequest is the body of POST /api/admin/policy/reward-rate
type SetRewardRateRequest struct {
	RateBps uint64 `json:"rate_bps" binding:"required"`
}

// CreatePoolRequest is the body of POST /api/admin/pools
type CreatePoolRequest struct {
	BaseToken    string `json:"base_token" binding:"required"`
	QuoteToken   string `json:"quote_token" binding:"required"`
	ReserveBase  string `json:"reserve_base" binding:"required"`
	ReserveQuote string `json:"reserve_quote" binding:"required"`
	FeeBps       uint64 `json:"fee_bps"`
	SpreadBps    uint64 `json:"spread_bps"`
	VaultAddress string `json:"vault_address" binding:"required"`
}

// GetPolicyHandler handles GET /api/admin/policy
func (h *AdminPolicyHandler) GetPolicyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.policyService.Snapshot(),
	})
}

// SetRewardRateHandler handles POST /api/admin/policy/reward-rate
func (h *AdminPolicyHandler) SetRewardRateHandler(c *gin.Context) {
	var req SetRewardRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	changedBy := c.GetString("admin_username")
	if err := h.policyService.SetRewardRate(c.Request.Context(), req.RateBps, changedBy); err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.policyService.Snapshot(),
	})
}

// CreatePoolHandler handles POST /api/admin/pools
func (h *AdminPolicyHandler) CreatePoolHandler(c *gin.Context) {
	var req CreatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	vault, ok := parseAddress(c, "vault_address", req.VaultAddress)
	if !ok {
		return
	}
	reserveBase := utils.ParseAmount(req.ReserveBase)
	reserveQuote := utils.ParseAmount(req.ReserveQuote)
	if reserveBase == nil || reserveQuote == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "reserves must be non-negative base-10 integers",
			"code":    "INVALID_AMOUNT",
		})
		return
	}

	view, err := h.swapService.CreatePool(c.Request.Context(),
		req.BaseToken, req.QuoteToken, reserveBase, reserveQuote,
		req.FeeBps, req.SpreadBps, vault)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view})
}
