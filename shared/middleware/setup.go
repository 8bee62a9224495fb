package middleware

import (
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/gym-tenant-system/shared/config"
)

// AuthFromConfig builds the auth middleware every service uses. cache may
// be nil.
func AuthFromConfig(cfg *config.AppConfig, cache TokenCache) (*AuthMiddleware, error) {
	ac := AuthConfig{
		Secret:   []byte(cfg.JWTSecret),
		CacheTTL: cfg.AuthCacheTTL,
		Logger:   logrus.StandardLogger(),
	}
	if cfg.JWKSURL != "" {
		ac.Keys = NewKeySet(cfg.JWKSURL, nil)
	}
	if cache != nil {
		ac.Cache = cache
	}
	return NewAuthMiddleware(ac)
}
