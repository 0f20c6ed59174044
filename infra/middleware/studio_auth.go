package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio_server/core/port/out"
	"studio_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/golang-jwt/jwt/v5"
)

const blacklistPrefix = "token:blacklist:"

// TokenBlacklist tracks revoked token ids in the shared cache.
type TokenBlacklist struct {
	cache out.Cache
}

// NewTokenBlacklist returns nil when cache is nil; a nil blacklist revokes nothing.
func NewTokenBlacklist(cache out.Cache) *TokenBlacklist {
	if cache == nil {
		logger.Warn("cache not provided, token blacklist disabled")
		return nil
	}
	return &TokenBlacklist{cache: cache}
}

// Revoke blacklists tokenID until expiry.
func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, expiry time.Duration) error {
	if b == nil {
		return nil
	}
	return b.cache.SetJSON(ctx, blacklistPrefix+tokenID, true, expiry)
}

// IsRevoked fails open: a cache error never locks users out.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) bool {
	if b == nil {
		return false
	}
	revoked, err := b.cache.Exists(ctx, blacklistPrefix+tokenID)
	if err != nil {
		logger.WithError(err).Warn("token blacklist lookup failed")
		return false
	}
	return revoked
}

// JWTAuth validates HS256 bearer tokens. The subject becomes user_id and the optional
// "name" claim becomes user_name, which personalizes prompts.
func JWTAuth(secret string, blacklist *TokenBlacklist) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := bearerToken(c)
		// EventSource cannot set headers, so the stream accepts ?token=
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			return unauthorized(c, "UNAUTHORIZED", "missing authorization")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			if secret == "" {
				return nil, fmt.Errorf("JWT secret not configured")
			}
			return []byte(secret), nil
		}, jwt.WithExpirationRequired(), jwt.WithIssuedAt(), jwt.WithLeeway(time.Minute))
		if err != nil || !token.Valid {
			logger.WithError(err).Warn("JWT validation failed")
			code := "INVALID_TOKEN"
			if errors.Is(err, jwt.ErrTokenExpired) {
				code = "TOKEN_EXPIRED"
			}
			return unauthorized(c, code, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return unauthorized(c, "INVALID_TOKEN", "invalid claims")
		}

		if jti, ok := claims["jti"].(string); ok && jti != "" {
			if blacklist.IsRevoked(c.UserContext(), jti) {
				return unauthorized(c, "TOKEN_REVOKED", "token has been revoked")
			}
		}

		userID, _ := claims["sub"].(string)
		if strings.TrimSpace(userID) == "" {
			return unauthorized(c, "INVALID_TOKEN", "missing user id in token")
		}
		name, _ := claims["name"].(string)

		c.Locals("user_id", userID)
		c.Locals("user_name", name)
		c.Locals("claims", claims)
		return c.Next()
	}
}

// DevAuth trusts the X-User-ID header. Development only.
func DevAuth(defaultUserID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// header values alias the request buffer; the id outlives the request as a session key
		userID := utils.CopyString(c.Get("X-User-ID", defaultUserID))
		if userID == "" {
			return unauthorized(c, "UNAUTHORIZED", "missing X-User-ID")
		}
		c.Locals("user_id", userID)
		c.Locals("user_name", utils.CopyString(c.Get("X-User-Name")))
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func unauthorized(c *fiber.Ctx, code, message string) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		Success:   false,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Error:     ErrorDetail{Code: code, Message: message},
	})
}
