package jwtx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KnownAlgorithms are the signing algorithms the panel backend is expected to
// use. Anything else is logged but still accepted, signatures are opaque to
// the client.
var KnownAlgorithms = []string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512"}

var (
	ErrMalformed      = errors.New("jwtx: malformed token")
	ErrMissingClaim   = errors.New("jwtx: missing required claim")
	ErrExpired        = errors.New("jwtx: token expired")
	ErrIssuedInFuture = errors.New("jwtx: token issued in the future")
)

// parser only ever decodes segments, it never verifies a signature.
var parser = jwt.NewParser(jwt.WithPaddingAllowed())

// Claims is the decoded view of an access token. It is never persisted, the
// raw token is the source of truth.
type Claims struct {
	jwt.RegisteredClaims

	// Username of the authenticated user, issued by the panel backend.
	Username string `json:"username,omitempty"`

	// Roles granted to the user, e.g. ["admin"].
	Roles []string `json:"roles,omitempty"`
}

// Header is the subset of the JOSE header the client looks at.
type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
}

// DecodeClaims decodes the claims segment of a bearer token without touching
// the signature. It fails with ErrMalformed when the token does not have
// exactly three segments or the middle one is not base64 encoded JSON.
func DecodeClaims(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}

	raw, err := decodeSegment(parts[1])
	if err != nil {
		return nil, err
	}

	mc := jwt.MapClaims{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&mc); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrMalformed, err)
	}

	return claimsFromMap(mc)
}

// DecodeHeader decodes the first segment of a bearer token.
func DecodeHeader(token string) (*Header, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformed, len(parts))
	}

	raw, err := decodeSegment(parts[0])
	if err != nil {
		return nil, err
	}

	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	return &h, nil
}

// IsExpired reports whether token should be considered expired at now. Tokens
// that can't be decoded or carry no exp claim are always expired.
func IsExpired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return true
	}
	return exp.Unix() < now.Unix()
}

// ExpiresAt returns the exp claim of token, if it can be decoded.
func ExpiresAt(token string) (time.Time, bool) {
	c, err := DecodeClaims(token)
	if err != nil || c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// Validate performs the structural checks the client can do on its own:
// decodable header and claims, required sub/exp/iat, not expired and not
// issued in the future. An unknown algorithm is only logged.
func Validate(token string, now time.Time) (*Claims, error) {
	h, err := DecodeHeader(token)
	if err != nil {
		return nil, err
	}
	if h.Alg != "" && !slices.Contains(KnownAlgorithms, h.Alg) {
		slog.Warn("unrecognised token algorithm, continuing", "alg", h.Alg)
	}

	c, err := DecodeClaims(token)
	if err != nil {
		return nil, err
	}

	var missing []string
	if c.Subject == "" {
		missing = append(missing, "sub")
	}
	if c.ExpiresAt == nil {
		missing = append(missing, "exp")
	}
	if c.IssuedAt == nil {
		missing = append(missing, "iat")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingClaim, strings.Join(missing, ", "))
	}

	if c.ExpiresAt.Unix() < now.Unix() {
		return nil, ErrExpired
	}
	if c.IssuedAt.Unix() > now.Unix() {
		return nil, ErrIssuedInFuture
	}

	return c, nil
}

// decodeSegment accepts both the URL-safe and the standard base64 alphabet,
// with or without padding.
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.NewReplacer("+", "-", "/", "_").Replace(seg)
	b, err := parser.DecodeSegment(seg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return b, nil
}

func claimsFromMap(mc jwt.MapClaims) (*Claims, error) {
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: exp: %v", ErrMalformed, err)
	}
	iat, err := mc.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%w: iat: %v", ErrMalformed, err)
	}
	nbf, err := mc.GetNotBefore()
	if err != nil {
		return nil, fmt.Errorf("%w: nbf: %v", ErrMalformed, err)
	}
	aud, err := mc.GetAudience()
	if err != nil {
		aud = nil
	}

	c := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   coerceString(mc["sub"]),
			Issuer:    coerceString(mc["iss"]),
			ID:        coerceString(mc["jti"]),
			Audience:  aud,
			ExpiresAt: exp,
			IssuedAt:  iat,
			NotBefore: nbf,
		},
		Username: coerceString(mc["username"]),
	}

	if roles, ok := mc["roles"].([]any); ok {
		for _, r := range roles {
			if s := coerceString(r); s != "" {
				c.Roles = append(c.Roles, s)
			}
		}
	}

	return c, nil
}

// coerceString turns scalar claim values into strings. Backends that encode
// the subject as a number are common enough that rejecting them isn't useful.
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
