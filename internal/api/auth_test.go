package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/synjan/qascan/pkg/utils"
)

func signSessionToken(t *testing.T, secret, subject, githubToken string) string {
	t.Helper()
	claims := sessionClaims{
		GitHubToken: githubToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing session token: %v", err)
	}
	return signed
}

func TestAuthenticateRejectsMissingOrMalformedHeader(t *testing.T) {
	a := &authenticator{sessionSecret: "secret"}

	for _, header := range []string{"", "Basic dXNlcg==", "Bearer ", "Bearer    "} {
		r := httptest.NewRequest("GET", "/scanner", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if _, err := a.authenticate(r); err == nil {
			t.Errorf("authenticate accepted header %q", header)
		}
	}
}

func TestAuthenticatePAT(t *testing.T) {
	a := &authenticator{sessionSecret: "secret"}

	r := httptest.NewRequest("GET", "/scanner", nil)
	r.Header.Set("Authorization", "Bearer ghp_example")

	id, err := a.authenticate(r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.Token != "ghp_example" {
		t.Errorf("Token = %q, want the raw PAT", id.Token)
	}
	if id.Owner != utils.TokenDigest("ghp_example") {
		t.Errorf("Owner = %q, want the token digest", id.Owner)
	}
	if id.Owner == "ghp_example" {
		t.Error("Owner must never be the raw credential")
	}
}

func TestAuthenticateSessionToken(t *testing.T) {
	a := &authenticator{sessionSecret: "secret"}
	signed := signSessionToken(t, "secret", "alice", "ghp_from_claim")

	r := httptest.NewRequest("GET", "/scanner", nil)
	r.Header.Set("Authorization", "Bearer "+signed)

	id, err := a.authenticate(r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.Owner != "alice" {
		t.Errorf("Owner = %q, want the subject claim", id.Owner)
	}
	if id.Token != "ghp_from_claim" {
		t.Errorf("Token = %q, want the GitHub token claim", id.Token)
	}
}

func TestAuthenticateForgedSessionTokenFallsBackToPAT(t *testing.T) {
	a := &authenticator{sessionSecret: "secret"}
	forged := signSessionToken(t, "wrong-secret", "mallory", "stolen")

	r := httptest.NewRequest("GET", "/scanner", nil)
	r.Header.Set("Authorization", "Bearer "+forged)

	id, err := a.authenticate(r)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.Owner == "mallory" {
		t.Error("forged session token must not yield its claimed subject")
	}
	if id.Owner != utils.TokenDigest(forged) {
		t.Error("forged token should be attributed as an opaque PAT")
	}
}

func TestAuthenticateExpiredSessionToken(t *testing.T) {
	a := &authenticator{sessionSecret: "secret"}

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("GET", "/scanner", nil)
	r.Header.Set("Authorization", "Bearer "+expired)

	id, authErr := a.authenticate(r)
	if authErr != nil {
		t.Fatalf("authenticate: %v", authErr)
	}
	if id.Owner == "alice" {
		t.Error("expired session token must not yield its subject")
	}
}
