package session

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// DisplayName reads the "name" claim of an identity token without verifying
// its signature. Verification belongs to whoever issued the token; here the
// claim is only used as a label. Any failure yields UnknownName.
func DisplayName(idToken string) string {
	if idToken == "" {
		return UnknownName
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return UnknownName
	}

	name, ok := claims["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return UnknownName
	}
	return name
}
