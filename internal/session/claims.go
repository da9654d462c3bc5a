package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ImpersonationStatus describes whom the current token acts for.
// When Impersonating is false the other fields are empty.
type ImpersonationStatus struct {
	Impersonating    bool   `json:"impersonating" yaml:"impersonating"`
	ImpersonatedUser string `json:"impersonatedUser,omitempty" yaml:"impersonatedUser,omitempty"`
	ImpersonatedBy   string `json:"impersonatedBy,omitempty" yaml:"impersonatedBy,omitempty"`
}

// NotImpersonating is the status of a plain or missing token.
var NotImpersonating = ImpersonationStatus{}

// tokenClaims holds the claims of interest. The signature is never verified
// here; the server is the authority, the client only reads its own token.
type tokenClaims struct {
	Subject   string
	Actor     string
	ExpiresAt time.Time
}

func parseClaims(token string) (tokenClaims, bool) {
	if token == "" {
		return tokenClaims{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return tokenClaims{}, false
	}

	var tc tokenClaims
	tc.Subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.Time
	}
	if act, ok := claims["act"].(map[string]any); ok {
		tc.Actor, _ = act["sub"].(string)
	}
	return tc, true
}

// StatusOf decodes the impersonation status carried by token. Tokens that
// cannot be decoded, or that carry no actor claim, are not impersonating.
func StatusOf(token string) ImpersonationStatus {
	tc, ok := parseClaims(token)
	if !ok || tc.Actor == "" {
		return NotImpersonating
	}
	return ImpersonationStatus{
		Impersonating:    true,
		ImpersonatedUser: tc.Subject,
		ImpersonatedBy:   tc.Actor,
	}
}
