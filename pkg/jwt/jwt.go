package jwt

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// Claims are the claims the client is able to read from a bearer token.
// The signature is never checked here; the server stays the sole authority.
type Claims struct {
	UserId string `json:"user_id,omitempty"`
	Id     string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SubjectId returns the best user id candidate carried by the claims
func (c *Claims) SubjectId() string {
	switch {
	case c.UserId != "":
		return c.UserId
	case c.Id != "":
		return c.Id
	default:
		return c.Subject
	}
}

// LooksLikeJWT reports whether token has the three dot-separated segments of a JWT
func LooksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// ParseClaims decodes the claims of a JWT without verifying its signature
func ParseClaims(tokenString string) (*Claims, error) {
	if !LooksLikeJWT(tokenString) {
		return nil, errcode.ErrInvalidParam.WithMsg("token is not a jwt")
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, errcode.ErrInvalidParam.Wrap(err)
	}
	return claims, nil
}

// IsExpired reports whether tokenString is a JWT whose exp lies before now.
// Opaque tokens and JWTs without exp are never considered expired.
func IsExpired(tokenString string, now time.Time) bool {
	claims, err := ParseClaims(tokenString)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now)
}
