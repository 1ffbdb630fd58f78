package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	obscontext "github.com/smallbiznis/catering/internal/observability/context"
)

const (
	contextUserIDKey  = "user_id"
	contextRoleIDsKey = "role_ids"
)

var errMissingSecret = errors.New("jwt secret is not configured")

// Claims carries the identity issued by the upstream session layer.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string  `json:"user_id"`
	RoleIDs []int64 `json:"role_ids"`
}

// TokenVerifier validates HS256 bearer tokens. It never issues tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(strings.TrimSpace(secret)),
		issuer: strings.TrimSpace(issuer),
	}
}

func (v *TokenVerifier) Verify(raw string) (*Claims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errMissingSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if strings.TrimSpace(claims.UserID) == "" {
		claims.UserID = strings.TrimSpace(claims.Subject)
	}
	if claims.UserID == "" {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}
	return claims, nil
}

func (s *Server) BearerAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := s.verifier.Verify(strings.TrimSpace(raw))
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, claims.UserID)
		c.Set(contextRoleIDsKey, claims.RoleIDs)
		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

func callerUserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(contextUserIDKey))
}

func callerRoleIDs(c *gin.Context) []int64 {
	value, ok := c.Get(contextRoleIDsKey)
	if !ok {
		return nil
	}
	roles, _ := value.([]int64)
	return roles
}
