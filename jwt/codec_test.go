package jwt

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func encodeSegment(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal segment: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func tokenWithClaims(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := encodeSegment(t, map[string]any{"alg": "HS256", "typ": "JWT"})
	payload := encodeSegment(t, claims)
	return header + "." + payload + ".c2lnbmF0dXJl"
}

func TestDecodeExtractsClaims(t *testing.T) {
	codec := NewCodec()
	token := tokenWithClaims(t, map[string]any{
		"userid":    "41",
		"username":  "Maria Souza",
		"usermail":  "maria@example.com",
		"user":      "12345678900",
		"pessoa_id": "77",
		"is_gn":     true,
		"expires":   float64(1900000000),
	})

	p := codec.Decode(token)
	if p == nil {
		t.Fatal("expected payload, got nil")
	}
	if p.UserID != "41" || p.Username != "Maria Souza" || p.Email != "maria@example.com" {
		t.Fatalf("unexpected identity claims: %+v", p)
	}
	if p.Document != "12345678900" {
		t.Fatalf("expected document claim, got %q", p.Document)
	}
	if p.PersonID != "77" {
		t.Fatalf("expected person id 77, got %q", p.PersonID)
	}
	if !p.Manager {
		t.Fatal("expected manager flag set")
	}
	if p.ExpiresAt != 1900000000 {
		t.Fatalf("expected expiry 1900000000, got %d", p.ExpiresAt)
	}
}

func TestDecodeStripsBearerPrefix(t *testing.T) {
	codec := NewCodec()
	token := tokenWithClaims(t, map[string]any{"userid": "9"})
	if p := codec.Decode("Bearer " + token); p == nil || p.UserID != "9" {
		t.Fatalf("expected decode through bearer prefix, got %+v", p)
	}
}

func TestDecodeClaimSpellingFallbacks(t *testing.T) {
	codec := NewCodec()

	p := codec.Decode(tokenWithClaims(t, map[string]any{"pessoaid": "12", "exp": float64(1900000000)}))
	if p == nil {
		t.Fatal("expected payload")
	}
	if p.PersonID != "12" {
		t.Fatalf("expected pessoaid fallback, got %q", p.PersonID)
	}
	if p.ExpiresAt != 1900000000 {
		t.Fatalf("expected exp fallback, got %d", p.ExpiresAt)
	}

	p = codec.Decode(tokenWithClaims(t, map[string]any{"pessoa_id": float64(5), "expires": "1900000000"}))
	if p == nil {
		t.Fatal("expected payload")
	}
	if p.PersonID != "5" {
		t.Fatalf("expected numeric person id coerced to string, got %q", p.PersonID)
	}
	if p.ExpiresAt != 1900000000 {
		t.Fatalf("expected string expiry coerced, got %d", p.ExpiresAt)
	}
}

func TestDecodeMalformedTokens(t *testing.T) {
	codec := NewCodec()
	header := encodeSegment(t, map[string]any{"alg": "HS256", "typ": "JWT"})

	cases := map[string]string{
		"empty":            "",
		"two parts":        header + ".payload",
		"four parts":       header + ".a.b.c",
		"bad base64":       header + ".!!!not-base64!!!.sig",
		"payload not json": header + "." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".sig",
		"payload is array": header + "." + base64.RawURLEncoding.EncodeToString([]byte("[1,2]")) + ".sig",
	}
	for name, token := range cases {
		if p := codec.Decode(token); p != nil {
			t.Fatalf("%s: expected nil payload, got %+v", name, p)
		}
	}
}

func TestIsExpiredBoundaries(t *testing.T) {
	codec := NewCodec()
	now := time.Now()

	fresh := tokenWithClaims(t, map[string]any{"expires": float64(now.Unix() + 1)})
	if codec.IsExpiredAt(fresh, now) {
		t.Fatal("token expiring one second from now must not be expired")
	}

	stale := tokenWithClaims(t, map[string]any{"expires": float64(now.Unix() - 1)})
	if !codec.IsExpiredAt(stale, now) {
		t.Fatal("token expired one second ago must be expired")
	}

	missing := tokenWithClaims(t, map[string]any{"userid": "1"})
	if !codec.IsExpiredAt(missing, now) {
		t.Fatal("token without expiry claim must be treated as expired")
	}

	if !codec.IsExpiredAt("garbage", now) {
		t.Fatal("undecodable token must be treated as expired")
	}
}
