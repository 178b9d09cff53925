package auth

import (
	"errors"
	"strings"
)

var (
	ErrNoCredentials    = errors.New("no credentials")
	ErrMalformedHeader  = errors.New("invalid authorization header format")
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrAuthNotAvailable = errors.New("authentication not configured")
)

// Identity is who a request is made on behalf of
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticator resolves an Authorization header to an identity. Zitadel
// tokens are tried first; HMAC tokens signed with the legacy secret are
// accepted as a fallback. Either source may be absent.
type Authenticator struct {
	verifier  TokenVerifier
	jwtSecret string
}

func NewAuthenticator(verifier TokenVerifier, jwtSecret string) *Authenticator {
	return &Authenticator{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// Authenticate returns ErrNoCredentials for an empty header, so callers
// can decide whether anonymous access is allowed
func (a *Authenticator) Authenticate(header string) (*Identity, error) {
	if header == "" {
		return nil, ErrNoCredentials
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return nil, ErrMalformedHeader
	}
	token := parts[1]

	if a.verifier == nil && a.jwtSecret == "" {
		return nil, ErrAuthNotAvailable
	}

	if a.verifier != nil {
		if claims, err := a.verifier.Validate(token); err == nil {
			return claims.Identity(), nil
		}
	}

	if a.jwtSecret != "" {
		if claims, err := ValidateLegacyToken(token, a.jwtSecret); err == nil {
			return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
		}
	}

	return nil, ErrInvalidToken
}
