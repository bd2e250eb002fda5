// SPDX-License-Identifier: MIT

package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signHS256(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestVerifyRelayToken(t *testing.T) {
	v := NewHS256(testSecret)
	signed := signHS256(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		AuthorizedParty: "relay-trackside-1",
		OrgID:           "5",
	})

	claims, err := v.Verify(signed)
	require.NoError(t, err)

	p, err := PrincipalFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, KindRelay, p.Kind)
	assert.Equal(t, "relay-trackside-1", p.ID)
	assert.Equal(t, "5", p.OrgID)
}

func TestVerifyUIToken(t *testing.T) {
	v := NewHS256(testSecret)
	signed := signHS256(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-77",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.Verify(signed)
	require.NoError(t, err)

	p, err := PrincipalFromClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, KindUI, p.Kind)
	assert.Equal(t, "user-77", p.ID)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewHS256(testSecret)
	signed := signHS256(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-77",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	_, err := v.Verify(signed)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewHS256("other-secret")
	signed := signHS256(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-77"},
	})
	_, err := v.Verify(signed)
	assert.Error(t, err)
}

func TestVerifyRejectsAlgorithmNone(t *testing.T) {
	v := NewHS256(testSecret)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-77"},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(signed)
	assert.Error(t, err)
}

func TestPrincipalRequiresIdentity(t *testing.T) {
	_, err := PrincipalFromClaims(&Claims{})
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/status", nil)
	r.Header.Set("Authorization", "Bearer abc")
	token, err := TokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	r = httptest.NewRequest("GET", "/status?access_token=xyz", nil)
	token, err = TokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	r = httptest.NewRequest("GET", "/status", nil)
	_, err = TokenFromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r = httptest.NewRequest("GET", "/status", nil)
	r.Header.Set("Authorization", "Basic abc")
	_, err = TokenFromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)
}
