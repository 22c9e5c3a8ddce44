package jwt

import (
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// Payload is the untrusted local projection of a session token's claims.
//
// Payload carries whatever the backend put in the token at login time. It is
// never an authentication proof: the backend re-validates the token on every
// call, and a Payload must not be used for authorization decisions.
type Payload struct {
	UserID   string
	Username string
	Email    string
	Document string
	PersonID string
	Manager  bool

	// ExpiresAt is the expiry claim in epoch seconds, 0 when the token
	// carries no expiry claim.
	ExpiresAt int64
}

// Codec decodes session tokens without verifying their signature.
//
// Codec instances are immutable and safe for concurrent use.
type Codec struct {
	parser *jwtlib.Parser
}

// NewCodec returns a Codec tolerant of padded and unpadded base64url token
// segments.
func NewCodec() *Codec {
	return &Codec{
		parser: jwtlib.NewParser(
			jwtlib.WithoutClaimsValidation(),
			jwtlib.WithPaddingAllowed(),
		),
	}
}

// Decode extracts the claim payload from token. A leading "Bearer " prefix is
// stripped before decoding. The token must have exactly three period-delimited
// segments with a base64url JSON payload in the middle; any structural,
// base64, or JSON failure yields nil. Decode never panics.
func (c *Codec) Decode(token string) *Payload {
	token = strings.TrimSpace(strings.TrimPrefix(token, bearerPrefix))
	if token == "" || strings.Count(token, ".") != 2 {
		return nil
	}

	claims := jwtlib.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(token, claims); err != nil {
		return nil
	}

	p := &Payload{
		UserID:   claimString(claims, "userid"),
		Username: claimString(claims, "username"),
		Email:    claimString(claims, "usermail"),
		Document: claimString(claims, "user"),
		Manager:  claimBool(claims, "is_gn"),
	}

	// The backend has emitted both spellings over time.
	p.PersonID = claimString(claims, "pessoa_id")
	if p.PersonID == "" {
		p.PersonID = claimString(claims, "pessoaid")
	}

	if exp, ok := claimEpoch(claims, "expires"); ok {
		p.ExpiresAt = exp
	} else if exp, ok := claimEpoch(claims, "exp"); ok {
		p.ExpiresAt = exp
	}

	return p
}

// IsExpired reports whether token is past its expiry claim. Fail-closed: a
// token that cannot be decoded, or that carries no expiry claim at all, is
// reported as expired.
func (c *Codec) IsExpired(token string) bool {
	return c.IsExpiredAt(token, time.Now())
}

// IsExpiredAt is IsExpired evaluated against an explicit instant.
func (c *Codec) IsExpiredAt(token string, now time.Time) bool {
	p := c.Decode(token)
	if p == nil || p.ExpiresAt == 0 {
		return true
	}
	return p.ExpiresAt <= now.Unix()
}

func claimString(claims jwtlib.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	// Numeric IDs arrive as JSON numbers from some backend versions.
	if v, ok := claims[key].(float64); ok && v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}

func claimBool(claims jwtlib.MapClaims, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case float64:
		return v != 0
	}
	return false
}

func claimEpoch(claims jwtlib.MapClaims, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
