// Package jwt validates bearer tokens minted by the identity service. The
// lifecycle core never mints user tokens itself; it only needs the claims
// that identify the caller and, for host users, the host account they
// represent.
package jwt

import (
	"errors"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"

	id "gatehouse/pkg/domain"
	"gatehouse/pkg/requestcontext"
)

// Claims is what the auth middleware extracts from a validated token.
type Claims struct {
	UserID id.UserID
	HostID id.HostID
	Role   requestcontext.Role
}

// Validator verifies HMAC-signed tokens from the identity service.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

type tokenClaims struct {
	jwtlib.RegisteredClaims
	HostID string `json:"host_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// ValidateToken parses and verifies a bearer token, returning the acting
// identity claims. The subject must be a valid user UUID; host_id is
// optional and only present for host-account users.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}

	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return nil, errors.New("token subject is not a valid user id")
	}

	out := &Claims{UserID: userID, Role: requestcontext.Role(claims.Role)}
	if claims.HostID != "" {
		hostID, err := id.ParseHostID(claims.HostID)
		if err != nil {
			return nil, errors.New("token host_id is not a valid host id")
		}
		out.HostID = hostID
	}
	return out, nil
}

// Sign mints a token for the given claims. Used by tests and the dev seed
// command; production tokens come from the identity service.
func (v *Validator) Sign(claims Claims) (string, error) {
	tc := tokenClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: claims.UserID.String()},
		Role:             string(claims.Role),
	}
	if !claims.HostID.IsZero() {
		tc.HostID = claims.HostID.String()
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, tc)
	return token.SignedString(v.signingKey)
}
