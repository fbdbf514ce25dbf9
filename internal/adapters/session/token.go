package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/pm/internal/models"
)

// ASP.NET Identity writes claims under these URIs when short names are not mapped.
const (
	claimNameIdentifier = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	claimName           = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"
	claimRole           = "http://schemas.microsoft.com/ws/2008/06/identity/claims/role"
)

// FromToken reads identity and expiry from a JWT issued by the backend.
// The signature is not checked here; the backend verifies it on every request.
func FromToken(token string) (*models.Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("token is not a JWT: %w", err)
	}

	sess := &models.Session{Token: token}

	if raw, ok := firstClaim(claims, "nameid", claimNameIdentifier, "sub"); ok {
		id, err := claimInt(raw)
		if err != nil {
			return nil, fmt.Errorf("user id claim: %w", err)
		}
		sess.UserID = id
	}
	if raw, ok := firstClaim(claims, "unique_name", claimName, "name"); ok {
		sess.UserName = fmt.Sprint(raw)
	}
	if raw, ok := firstClaim(claims, "role", claimRole); ok {
		switch r := raw.(type) {
		case []any:
			if len(r) > 0 {
				sess.Role = models.Role(fmt.Sprint(r[0]))
			}
		default:
			sess.Role = models.Role(fmt.Sprint(r))
		}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("exp claim: %w", err)
	}
	if exp != nil {
		sess.ExpiresAt = exp.Time
	}
	return sess, nil
}

func firstClaim(claims jwt.MapClaims, names ...string) (any, bool) {
	for _, n := range names {
		if v, ok := claims[n]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func claimInt(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}
