package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/mediavault/internal/authorization"
	obscontext "github.com/smallbiznis/mediavault/internal/observability/context"
	"github.com/smallbiznis/mediavault/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	contextUserIDKey = "user_id"
	contextRoleKey   = "role"

	bearerPrefix = "bearer "
)

var errMissingSubject = errors.New("token has no subject")

// AuthRequired accepts an HMAC-signed bearer token. The subject is the user id
// and the configured roles claim carries the user's roles.
func (s *Server) AuthRequired() gin.HandlerFunc {
	secret := []byte(s.cfg.Auth.JWTSecret)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if s.cfg.Auth.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Auth.JWTIssuer))
	}
	if s.cfg.Auth.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.Auth.JWTAudience))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" || len(secret) == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims := jwt.MapClaims{}
		_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err == nil {
			err = validateSubject(claims)
		}
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("bearer token rejected", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, _ := claims.GetSubject()
		role := authorization.HighestRole(rolesFromClaims(claims, s.cfg.Auth.RolesClaim))
		if role == "" {
			role = authorization.RoleMember
		}

		c.Set(contextUserIDKey, userID)
		c.Set(contextRoleKey, role)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

func validateSubject(claims jwt.MapClaims) error {
	sub, err := claims.GetSubject()
	if err != nil {
		return err
	}
	if strings.TrimSpace(sub) == "" {
		return errMissingSubject
	}
	return nil
}

// rolesFromClaims accepts a JSON array or a space/comma separated string.
func rolesFromClaims(claims jwt.MapClaims, key string) []string {
	if key == "" {
		key = "roles"
	}
	switch v := claims[key].(type) {
	case []interface{}:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if role, ok := item.(string); ok {
				roles = append(roles, role)
			}
		}
		return roles
	case string:
		return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	default:
		return nil
	}
}

func userIDFromContext(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetString(contextUserIDKey))
	return userID, userID != ""
}

func roleFromContext(c *gin.Context) string {
	return c.GetString(contextRoleKey)
}

// RateLimit applies the per-user token bucket for endpoint. A nil limiter disables it.
func (s *Server) RateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		userID, ok := userIDFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.Allow(ctx, endpoint, userID)
		if err != nil {
			// a broken limiter must not take the endpoint down with it
			logger.FromContext(ctx).Warn("rate limit check failed", zap.String("endpoint", endpoint), zap.Error(err))
			c.Next()
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "user-rate")
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
