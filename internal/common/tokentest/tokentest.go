// Package tokentest mints JWTs shaped like the identity service's tokens
// for use in tests.
package tokentest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var signingKey = []byte("tokentest-signing-key")

// Mint returns an HS256 token for sub. A non-empty actor adds an act.sub
// claim, making the token a delegated (impersonation) token. A zero exp
// omits the exp claim.
func Mint(t testing.TB, sub, actor string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": time.Now().Unix(),
	}
	if actor != "" {
		claims["act"] = map[string]any{"sub": actor}
	}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return s
}
