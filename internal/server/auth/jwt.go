// Package auth holds the security primitives the services call into: the
// access token issuer, the password hasher and the random code generator.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/inboxview/internal/common"
	"github.com/dmitrijs2005/inboxview/internal/timex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer mints and checks signed, time-bounded access tokens.
type TokenIssuer interface {
	Issue(subject string, ttl time.Duration) (string, error)
	// Verify returns the subject of a valid token and common.ErrInvalidToken
	// for anything else (bad signature, expired, wrong issuer, garbage).
	Verify(token string) (string, error)
}

// JWTIssuer issues HS256 JWTs. Every token carries a random jti, so two
// tokens minted for one subject in the same second still differ.
type JWTIssuer struct {
	secret []byte
	issuer string
	clock  timex.Clock
}

func NewJWTIssuer(secret []byte, issuer string, clock timex.Clock) *JWTIssuer {
	return &JWTIssuer{secret: secret, issuer: issuer, clock: clock}
}

func (j *JWTIssuer) Issue(subject string, ttl time.Duration) (string, error) {
	now := j.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    j.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	s, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func (j *JWTIssuer) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.clock.Now),
	)
	if err != nil {
		return "", errors.Join(common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
