package wire

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// AuthFlavor is the startup-negotiated authentication kind: plain Trust,
// or a bearer token checked against the configured shared secret.
type AuthFlavor int

const (
	AuthTrust AuthFlavor = iota
	AuthBearer
)

// bearerClaims is the minimal claim set the compute node's startup
// "options" parameter carries when AuthBearer is selected.
type bearerClaims struct {
	jwt.RegisteredClaims
}

// NegotiateAuth inspects the startup parameters for a bearer token in the
// "options" parameter (the form `-c bearer=<token>` or bare `bearer=<token>`,
// mirroring how libpq forwards -c options through startup) and validates
// it against expectedToken using HMAC-SHA256 if expectedToken is non-empty.
// With expectedToken empty, every connection authenticates as Trust.
func NegotiateAuth(params StartupParams, expectedToken string) (AuthFlavor, error) {
	if expectedToken == "" {
		return AuthTrust, nil
	}
	token := extractBearer(params["options"])
	if token == "" {
		return AuthTrust, errUnauthorized
	}
	claims := &bearerClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return tokenKey(expectedToken), nil
	})
	if err != nil {
		return AuthTrust, errUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(claims.Subject), []byte(expectedToken)) != 1 {
		return AuthTrust, errUnauthorized
	}
	return AuthBearer, nil
}

// IssueBearerToken mints a token a client can present for the given
// expected server-side token; exported for tests and for operators
// bootstrapping a compute node's connection string.
func IssueBearerToken(expectedToken string) (string, error) {
	claims := bearerClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: expectedToken}}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(tokenKey(expectedToken))
}

func tokenKey(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

func extractBearer(options string) string {
	for _, field := range strings.Fields(options) {
		field = strings.TrimPrefix(field, "-c")
		field = strings.TrimSpace(field)
		if v, ok := strings.CutPrefix(field, "bearer="); ok {
			return v
		}
	}
	return ""
}

type authError string

func (e authError) Error() string { return string(e) }

const errUnauthorized authError = "wire: invalid or missing bearer token"
