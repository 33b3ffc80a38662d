package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/synjan/qascan/pkg/utils"
)

// identity is the resolved caller of a request. Owner is a stable,
// non-secret attribution key; Token is the GitHub credential used for
// upstream calls on the caller's behalf.
type identity struct {
	Owner string
	Token string
}

type authenticator struct {
	sessionSecret string
}

// sessionClaims is the payload of a session token issued at sign-in.
// The GitHub token travels inside the claim so API calls need only one
// credential.
type sessionClaims struct {
	GitHubToken string `json:"githubToken,omitempty"`
	jwt.RegisteredClaims
}

// authenticate resolves the caller from the Authorization header. Two
// forms are accepted: a signed session token, or a raw GitHub PAT used
// directly as the bearer credential. PAT callers are attributed by a
// digest of the token, never the token itself.
func (a *authenticator) authenticate(r *http.Request) (identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return identity{}, fmt.Errorf("missing Authorization header")
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return identity{}, fmt.Errorf("Authorization header must be a Bearer token")
	}
	raw = strings.TrimSpace(raw)

	if a.sessionSecret != "" {
		if id, err := a.parseSessionToken(raw); err == nil {
			return id, nil
		}
		// Not a token we issued; fall through to PAT handling.
	}

	return identity{Owner: utils.TokenDigest(raw), Token: raw}, nil
}

func (a *authenticator) parseSessionToken(raw string) (identity, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.sessionSecret), nil
	})
	if err != nil {
		return identity{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return identity{}, fmt.Errorf("invalid session token")
	}
	return identity{Owner: claims.Subject, Token: claims.GitHubToken}, nil
}
