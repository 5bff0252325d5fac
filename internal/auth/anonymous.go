// ABOUTME: Credential pass-through authenticator for development deployments
// ABOUTME: Active only when no jwt_secret is configured; the token IS the user id

package auth

import (
	"errors"
	"strings"
)

// Anonymous accepts any non-empty credential string as the user id verbatim.
// It exists so a gateway without a configured jwt_secret still runs for local
// development; production deployments configure a secret and get JWTVerifier.
type Anonymous struct{}

// Validate returns the credential string as the user identity.
func (Anonymous) Validate(credentials string) (string, error) {
	userID := strings.TrimSpace(credentials)
	if userID == "" {
		return "", errors.New("empty credentials")
	}
	return userID, nil
}
