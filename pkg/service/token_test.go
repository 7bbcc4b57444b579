package service

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func testProvider(t *testing.T) *TokenProvider {
	t.Helper()
	info, err := ParseConnectionString("Endpoint=https://relay.example.com;AccessKey=testkey;")
	if err != nil {
		t.Fatalf("ParseConnectionString: %v", err)
	}
	return NewTokenProvider(info, "chat")
}

func parseClaims(t *testing.T, tokenString string) jwt.MapClaims {
	t.Helper()
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
		return []byte("testkey"), nil
	})
	if err != nil {
		t.Fatalf("parsing token: %v", err)
	}
	if !token.Valid {
		t.Fatal("token invalid")
	}
	if token.Method.Alg() != "HS256" {
		t.Fatalf("alg = %s, want HS256", token.Method.Alg())
	}
	return token.Claims.(jwt.MapClaims)
}

func TestAccessTokenClaims(t *testing.T) {
	p := testProvider(t)

	signed, err := p.AccessToken("alice", []string{"webpubsub.joinLeaveGroup", "webpubsub.sendToGroup"}, time.Hour)
	if err != nil {
		t.Fatalf("AccessToken() = %v", err)
	}

	claims := parseClaims(t, signed)
	if got := claims["aud"]; got != "https://relay.example.com/client/hubs/chat" {
		t.Errorf("aud = %v", got)
	}
	if got := claims["sub"]; got != "alice" {
		t.Errorf("sub = %v, want alice", got)
	}
	roles, ok := claims["roles"].([]any)
	if !ok || len(roles) != 2 {
		t.Fatalf("roles = %v, want two entries", claims["roles"])
	}

	exp := int64(claims["exp"].(float64))
	iat := int64(claims["iat"].(float64))
	if got := exp - iat; got != int64(time.Hour/time.Second) {
		t.Errorf("token lifetime = %ds, want 3600s", got)
	}
}

func TestAccessTokenAnonymousOmitsSub(t *testing.T) {
	p := testProvider(t)
	signed, err := p.AccessToken("", nil, 0)
	if err != nil {
		t.Fatalf("AccessToken() = %v", err)
	}
	claims := parseClaims(t, signed)
	if _, ok := claims["sub"]; ok {
		t.Error("anonymous token carries sub claim")
	}
	if _, ok := claims["roles"]; ok {
		t.Error("token without roles carries roles claim")
	}
}

func TestClientAccessURL(t *testing.T) {
	p := testProvider(t)

	accessURL, err := p.ClientAccessURL("bob", nil, time.Minute)
	if err != nil {
		t.Fatalf("ClientAccessURL() = %v", err)
	}

	u, err := url.Parse(accessURL)
	if err != nil {
		t.Fatalf("parsing access url: %v", err)
	}
	if u.Scheme != "wss" {
		t.Errorf("scheme = %q, want wss", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/client/hubs/chat") {
		t.Errorf("path = %q, want /client/hubs/chat suffix", u.Path)
	}

	token := u.Query().Get("access_token")
	if token == "" {
		t.Fatal("access url missing access_token")
	}
	claims := parseClaims(t, token)
	if got := claims["sub"]; got != "bob" {
		t.Errorf("sub = %v, want bob", got)
	}
}

func TestClientAccessURLHTTPBecomesWS(t *testing.T) {
	info, err := ParseConnectionString("Endpoint=http://localhost;AccessKey=testkey;Port=8080;")
	if err != nil {
		t.Fatalf("ParseConnectionString: %v", err)
	}
	p := NewTokenProvider(info, "chat")

	accessURL, err := p.ClientAccessURL("", nil, 0)
	if err != nil {
		t.Fatalf("ClientAccessURL() = %v", err)
	}
	if !strings.HasPrefix(accessURL, "ws://localhost:8080/client/hubs/chat") {
		t.Errorf("access url = %q, want ws://localhost:8080 prefix", accessURL)
	}
}

func TestRestTokenAudienceExcludesQuery(t *testing.T) {
	p := testProvider(t)

	signed, err := p.restToken("https://relay.example.com/api/hubs/chat/:send?api-version=1")
	if err != nil {
		t.Fatalf("restToken() = %v", err)
	}
	claims := parseClaims(t, signed)
	if got := claims["aud"]; got != "https://relay.example.com/api/hubs/chat/:send" {
		t.Errorf("aud = %v, want query-less request url", got)
	}
}
