// SPDX-License-Identifier: MIT

// Package auth verifies the bearer tokens presented on the push channel.
// Relays authenticate with a client-credentials token carrying an azp
// claim; UI clients with a user token carrying sub.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken means the request carried no usable bearer token.
var ErrNoToken = errors.New("no bearer token")

// Claims are the token claims the hub cares about.
type Claims struct {
	jwt.RegisteredClaims

	// AuthorizedParty identifies a relay's client id. Presence marks the
	// connection as a relay.
	AuthorizedParty string `json:"azp,omitempty"`

	// OrgID scopes the caller to one organization.
	OrgID string `json:"org_id,omitempty"`
}

// Kind classifies an authenticated connection.
type Kind string

const (
	KindRelay Kind = "relay"
	KindUI    Kind = "ui"
)

// Principal is the authenticated identity of a push channel connection.
type Principal struct {
	Kind  Kind
	ID    string
	OrgID string
}

// Verifier validates bearer tokens with a fixed algorithm: HS256 with a
// shared secret, or RS256 with a public key. Mixing is rejected to keep
// algorithm confusion off the table.
type Verifier struct {
	secret []byte
	public *rsa.PublicKey
}

// NewHS256 creates a verifier for HMAC-signed tokens.
func NewHS256(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// NewRS256FromFile creates a verifier from a PEM-encoded RSA public key.
func NewRS256FromFile(path string) (*Verifier, error) {
	// #nosec G304 -- key path is operator-provided configuration
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jwt public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse jwt public key: %w", err)
	}
	return &Verifier{public: key}, nil
}

// Verify parses and validates a token, returning its claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	keyFunc := func(t *jwt.Token) (any, error) {
		if v.public != nil {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
			}
			return v.public, nil
		}
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return v.secret, nil
	}

	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

// PrincipalFromClaims classifies the connection by its claims. A token with
// azp is a relay; one with only sub is a UI client.
func PrincipalFromClaims(c *Claims) (Principal, error) {
	switch {
	case c.AuthorizedParty != "":
		return Principal{Kind: KindRelay, ID: c.AuthorizedParty, OrgID: c.OrgID}, nil
	case c.Subject != "":
		return Principal{Kind: KindUI, ID: c.Subject, OrgID: c.OrgID}, nil
	default:
		return Principal{}, errors.New("token carries neither azp nor sub")
	}
}

// TokenFromRequest extracts a bearer token from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the access_token
// query parameter.
func TokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1], nil
		}
		return "", ErrNoToken
	}
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t, nil
	}
	return "", ErrNoToken
}
