package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nurpe/contractor-ledger/internal/auth"
	"github.com/nurpe/contractor-ledger/internal/model"
	"github.com/nurpe/contractor-ledger/internal/service"
)

const principalKey = "principal"

type ProfileResolver interface {
	Profile(ctx context.Context, id int64) (*model.Profile, error)
}

// Auth resolves the caller to a profile from a bearer token or the profile
// header and stores it on the context.
func Auth(parser *auth.Parser, header string, profiles ProfileResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolveProfileID(c, parser, header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		profile, err := profiles.Profile(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown profile"})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(principalKey, *profile)
		c.Next()
	}
}

func MustPrincipal(c *gin.Context) (model.Profile, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return model.Profile{}, false
	}
	profile, ok := value.(model.Profile)
	return profile, ok
}

// resolveProfileID ignores bearer tokens when no signing secret is configured.
func resolveProfileID(c *gin.Context, parser *auth.Parser, header string) (int64, error) {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok && parser.TokensEnabled() {
		return parser.ParseToken(strings.TrimSpace(token))
	}
	return parser.ParseProfileID(c.GetHeader(header))
}
