package handlers

import (
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-ledger/internal/services"
	"go-ledger/internal/utils"
)

// SwapHandler handles AMM quoting and execution API requests
type SwapHandler struct {
	swapService *services.SwapService
}

// NewSwapHandler creates a new SwapHandler instance
func NewSwapHandler(swapService *services.SwapService) *SwapHandler {
	return &SwapHandler{swapService: swapService}
}

// QuoteRequest is the body of POST /api/swap/quote
type QuoteRequest struct {
	Pair     string `json:"pair" binding:"required"`
	TokenIn  string `json:"token_in" binding:"required"`
	AmountIn string `json:"amount_in" binding:"required"`
}

// ExecuteRequest is the body of POST /api/swap/execute
type ExecuteRequest struct {
	Trader       string `json:"trader" binding:"required"`
	Pair         string `json:"pair" binding:"required"`
	TokenIn      string `json:"token_in" binding:"required"`
	AmountIn     string `json:"amount_in" binding:"required"`
	MinAmountOut string `json:"min_amount_out"`
}

// RouteRequest is the body of POST /api/swap/route
type RouteRequest struct {
	Pair          string `json:"pair" binding:"required"`
	ExternalPrice string `json:"external_price"` // at 1e8 scale; empty = pool only
}

// LiquidityRequest is the body of POST /api/pools/:pair/liquidity
type LiquidityRequest struct {
	Funder      string `json:"funder" binding:"required"`
	AmountBase  string `json:"amount_base" binding:"required"`
	AmountQuote string `json:"amount_quote" binding:"required"`
}

// QuoteHandler handles POST /api/swap/quote
func (h *SwapHandler) QuoteHandler(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	amount := utils.ParseAmount(req.AmountIn)
	if amount == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "amount_in must be a non-negative base-10 integer",
			"code":    "INVALID_AMOUNT",
		})
		return
	}

	quote, err := h.swapService.Quote(req.Pair, req.TokenIn, amount)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": quote})
}

// ExecuteHandler handles POST /api/swap/execute
func (h *SwapHandler) ExecuteHandler(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	trader, ok := parseAddress(c, "trader", req.Trader)
	if !ok {
		return
	}
	amount := utils.ParseAmount(req.AmountIn)
	if amount == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "amount_in must be a non-negative base-10 integer",
			"code":    "INVALID_AMOUNT",
		})
		return
	}
	var minOut *big.Int
	if req.MinAmountOut != "" {
		if minOut = utils.ParseAmount(req.MinAmountOut); minOut == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "min_amount_out must be a non-negative base-10 integer",
				"code":    "INVALID_AMOUNT",
			})
			return
		}
	}

	result, err := h.swapService.ExecuteSwap(c.Request.Context(), trader, req.Pair, req.TokenIn, amount, minOut)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// RouteHandler handles POST /api/swap/route
func (h *SwapHandler) RouteHandler(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	var external *big.Int
	if req.ExternalPrice != "" {
		if external = utils.ParseAmount(req.ExternalPrice); external == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "external_price must be a non-negative base-10 integer",
				"code":    "INVALID_AMOUNT",
			})
			return
		}
	}

	result, err := h.swapService.RouteQuote(c.Request.Context(), req.Pair, external)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// ListPoolsHandler handles GET /api/pools
func (h *SwapHandler) ListPoolsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.swapService.ListPools(),
	})
}

// GetRatesHandler handles GET /api/pools/:base/:quote/rates
func (h *SwapHandler) GetRatesHandler(c *gin.Context) {
	pair := c.Param("base") + "/" + c.Param("quote")
	rates, err := h.swapService.GetRates(pair)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rates})
}

// AddLiquidityHandler handles POST /api/pools/:base/:quote/liquidity
func (h *SwapHandler) AddLiquidityHandler(c *gin.Context) {
	var req LiquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	funder, ok := parseAddress(c, "funder", req.Funder)
	if !ok {
		return
	}
	amountBase := utils.ParseAmount(req.AmountBase)
	amountQuote := utils.ParseAmount(req.AmountQuote)
	if amountBase == nil || amountQuote == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "amounts must be non-negative base-10 integers",
			"code":    "INVALID_AMOUNT",
		})
		return
	}

	pair := c.Param("base") + "/" + c.Param("quote")
	view, err := h.swapService.AddLiquidity(c.Request.Context(), funder, pair, amountBase, amountQuote)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view})
}
