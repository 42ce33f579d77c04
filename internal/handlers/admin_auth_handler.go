package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"go-ledger/internal/config"
)

// AdminAuthHandler issues admin JWT tokens for the policy endpoints.
type AdminAuthHandler struct {
	cfg    config.AdminConfig
	logger *logrus.Logger
}

// AdminLoginRequest is the body of POST /api/admin/login. TOTPCode is
// required only when a TOTP secret is configured.
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code"`
}

// AdminJWTClaims are the claims carried by admin tokens.
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewAdminAuthHandler creates a new AdminAuthHandler instance
func NewAdminAuthHandler(cfg config.AdminConfig, logger *logrus.Logger) *AdminAuthHandler {
	if cfg.JWTSecret == "" || cfg.PasswordBcrypt == "" {
		logger.Warn("Admin JWT secret or password hash not configured, admin login will reject all requests")
	}
	return &AdminAuthHandler{cfg: cfg, logger: logger}
}

// LoginHandler handles POST /api/admin/login
func (h *AdminAuthHandler) LoginHandler(c *gin.Context) {
	if h.cfg.JWTSecret == "" || h.cfg.PasswordBcrypt == "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Server misconfiguration: admin credentials not set",
		})
		return
	}

	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// Generic message on every credential failure.
	if req.Username != "admin" ||
		bcrypt.CompareHashAndPassword([]byte(h.cfg.PasswordBcrypt), []byte(req.Password)) != nil {
		h.logger.WithFields(logrus.Fields{
			"username": req.Username,
			"ip":       c.ClientIP(),
		}).Warn("Admin login failed - invalid credentials")
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Invalid credentials",
		})
		return
	}

	if h.cfg.TOTPSecret != "" && !totp.Validate(req.TOTPCode, h.cfg.TOTPSecret) {
		h.logger.WithFields(logrus.Fields{"ip": c.ClientIP()}).Warn("Admin login failed - invalid TOTP code")
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Invalid TOTP code",
		})
		return
	}

	token, err := h.generateToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"expires_in": h.cfg.TokenTTLHours * 3600,
	})
}

func (h *AdminAuthHandler) generateToken(username string) (string, error) {
	now := time.Now()
	claims := AdminJWTClaims{
		Username: username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(h.cfg.TokenTTLHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "go-ledger-admin",
			Subject:   username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateAdminToken parses and verifies an admin JWT against secret.
func ValidateAdminToken(secret, tokenString string) (*AdminJWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := token.Claims.(*AdminJWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
