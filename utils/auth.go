package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"zinga/config"
	"zinga/models"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID    = "userID"
	ContextUserEmail = "userEmail"
	ContextUserRole  = "userRole"
)

// --- Password Hashing ---

// HashPassword generates a bcrypt hash for the given password.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPasswordHash compares a plain text password with a stored bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsPasswordHash reports whether s is already a bcrypt hash. Documents written
// by the old admin UI hold plaintext passwords.
func IsPasswordHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// --- JWT Handling ---

// Claims defines the structure of the JWT claims.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWT creates a signed token for the given user.
func GenerateJWT(user *models.User, cfg *config.Config) (string, error) {
	if cfg.JwtSecret == "" {
		return "", errors.New("JWT secret is not configured")
	}

	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "zinga",
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(cfg.JwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT parses and validates a token string and returns its claims.
func ValidateJWT(tokenString string, cfg *config.Config) (*Claims, error) {
	if cfg.JwtSecret == "" {
		return nil, errors.New("JWT secret is not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.JwtSecret), nil
	}, jwt.WithIssuer("zinga"))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token has expired")
		}
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// AuthMiddleware validates the bearer token and stores the caller's identity
// in the gin context. When adminOnly is set, tokens without the admin role are
// refused with 403.
func AuthMiddleware(cfg *config.Config, adminOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			GinUnauthorized(c, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			GinBadRequest(c, "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := ValidateJWT(parts[1], cfg)
		if err != nil {
			GinUnauthorized(c, fmt.Sprintf("Invalid token: %v", err))
			return
		}
		if adminOnly && claims.Role != models.RoleAdmin {
			GinForbidden(c, "Admin role required.")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// Actor names the caller for the audit trail: the token email when the request
// was authenticated, the client IP otherwise.
func Actor(c *gin.Context) string {
	if email := c.GetString(ContextUserEmail); email != "" {
		return email
	}
	return c.ClientIP()
}
