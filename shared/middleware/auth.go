package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/models"
	"github.com/pavitra93/gym-tenant-system/shared/utils"
)

const userInfoKey = "user_info"

// TokenCache stores verified claims keyed by token hash.
type TokenCache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

// Claims are the identity provider's token claims. The tenant and role
// live in custom attributes.
type Claims struct {
	Email    string `json:"email"`
	TenantID string `json:"custom:tenant_id"`
	Role     string `json:"custom:role"`
	jwt.RegisteredClaims
}

// AuthConfig configures token verification. At least one of Secret
// (HS256) or Keys (RS256 via JWKS) must be set.
type AuthConfig struct {
	Secret   []byte
	Keys     *KeySet
	Cache    TokenCache
	CacheTTL time.Duration
	Logger   logrus.FieldLogger
}

// AuthMiddleware handles JWT token validation
type AuthMiddleware struct {
	secret   []byte
	keys     *KeySet
	cache    TokenCache
	cacheTTL time.Duration
	log      logrus.FieldLogger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(cfg AuthConfig) (*AuthMiddleware, error) {
	if len(cfg.Secret) == 0 && cfg.Keys == nil {
		return nil, errors.New("auth: either a shared secret or a JWKS key set is required")
	}
	am := &AuthMiddleware{
		secret:   cfg.Secret,
		keys:     cfg.Keys,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		log:      cfg.Logger,
	}
	if am.log == nil {
		am.log = logrus.StandardLogger()
	}
	if am.cacheTTL <= 0 {
		am.cacheTTL = 5 * time.Minute
	}
	return am, nil
}

// RequireAuth verifies the bearer token and stores the caller in the
// context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			utils.UnauthorizedResponse(c, "Authorization token required")
			c.Abort()
			return
		}

		claims, err := am.verify(c.Request.Context(), tokenString)
		if err != nil {
			am.log.WithError(err).Debug("Rejected bearer token")
			utils.UnauthorizedResponse(c, "Invalid token")
			c.Abort()
			return
		}

		info, err := userInfo(claims)
		if err != nil {
			am.log.WithError(err).WithField("sub", claims.Subject).Info("Token carries unusable claims")
			utils.UnauthorizedResponse(c, "Invalid token claims")
			c.Abort()
			return
		}

		c.Set(userInfoKey, info)
		c.Set("user_id", info.Subject)
		c.Set("role", string(info.Role))
		if info.GymID != nil {
			c.Set("tenant_id", info.GymID.String())
		}
		c.Next()
	}
}

func (am *AuthMiddleware) verify(ctx context.Context, tokenString string) (*Claims, error) {
	cacheKey := utils.TokenKey(tokenString)
	if am.cache != nil {
		var cached Claims
		if hit, err := am.cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit {
			if cached.ExpiresAt == nil || cached.ExpiresAt.After(time.Now()) {
				return &cached, nil
			}
		}
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return am.keyFor(ctx, token)
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	if am.cache != nil {
		ttl := am.cacheTTL
		if remaining := time.Until(claims.ExpiresAt.Time); remaining < ttl {
			ttl = remaining
		}
		if ttl > 0 {
			if err := am.cache.SetJSON(ctx, cacheKey, claims, ttl); err != nil {
				am.log.WithError(err).Debug("Failed to cache token claims")
			}
		}
	}
	return claims, nil
}

func (am *AuthMiddleware) keyFor(ctx context.Context, token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(am.secret) == 0 {
			return nil, errors.New("HMAC tokens are not accepted")
		}
		return am.secret, nil
	case *jwt.SigningMethodRSA:
		if am.keys == nil {
			return nil, errors.New("RSA tokens are not accepted")
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid not found in token header")
		}
		return am.keys.Key(ctx, kid)
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

func userInfo(claims *Claims) (*models.UserInfo, error) {
	role := models.UserRole(claims.Role)
	switch role {
	case models.RoleAdmin, models.RoleGymOwner, models.RoleStaff:
	default:
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}

	info := &models.UserInfo{Subject: claims.Subject, Email: claims.Email, Role: role}
	if claims.TenantID != "" {
		id, err := uuid.Parse(claims.TenantID)
		if err != nil {
			return nil, fmt.Errorf("invalid tenant id: %w", err)
		}
		info.GymID = &id
	}
	if info.GymID == nil && role != models.RoleAdmin {
		return nil, errors.New("non-admin token without tenant")
	}
	return info, nil
}

// RequireRole allows only the listed roles.
func (am *AuthMiddleware) RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, ok := GetUserInfo(c)
		if !ok {
			utils.UnauthorizedResponse(c, "User role not found in context")
			c.Abort()
			return
		}
		for _, r := range roles {
			if info.Role == r {
				c.Next()
				return
			}
		}
		utils.ForbiddenResponse(c, "Insufficient permissions")
		c.Abort()
	}
}

// RequireTenantAccess lets admins reach any tenant and everyone else only
// the tenant named in their token.
func (am *AuthMiddleware) RequireTenantAccess() gin.HandlerFunc {
	return am.tenantGuard(func(info *models.UserInfo, gymID uuid.UUID) bool {
		return info.CanAccessGym(gymID)
	})
}

// RequireTenantOwnerOrAdmin lets gym owners manage their own tenant.
func (am *AuthMiddleware) RequireTenantOwnerOrAdmin() gin.HandlerFunc {
	return am.tenantGuard(func(info *models.UserInfo, gymID uuid.UUID) bool {
		return info.CanManageGym(gymID)
	})
}

func (am *AuthMiddleware) tenantGuard(allowed func(*models.UserInfo, uuid.UUID) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, ok := GetUserInfo(c)
		if !ok {
			utils.UnauthorizedResponse(c, "Tenant information not found")
			c.Abort()
			return
		}
		gymID, err := TenantParam(c)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid tenant id")
			c.Abort()
			return
		}
		if !allowed(info, gymID) {
			am.log.WithFields(logrus.Fields{
				"sub":    info.Subject,
				"role":   info.Role,
				"gym_id": gymID,
			}).Info("Cross-tenant access denied")
			utils.ForbiddenResponse(c, "Access denied to this tenant")
			c.Abort()
			return
		}
		c.Next()
	}
}

// TenantParam reads the tenant id from the route.
func TenantParam(c *gin.Context) (uuid.UUID, error) {
	raw := c.Param("tenant_id")
	if raw == "" {
		raw = c.Param("id")
	}
	return uuid.Parse(raw)
}

// GetUserInfo returns the authenticated caller.
func GetUserInfo(c *gin.Context) (*models.UserInfo, bool) {
	v, ok := c.Get(userInfoKey)
	if !ok {
		return nil, false
	}
	info, ok := v.(*models.UserInfo)
	return info, ok
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return authHeader
}
