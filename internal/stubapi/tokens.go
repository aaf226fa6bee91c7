package stubapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuerName = "apiclient-stubapi"

// accessClaims are the claims of an access token minted by the stub.
type accessClaims struct {
	jwt.RegisteredClaims
}

// tokenIssuer mints and verifies HS256 access tokens.
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (i *tokenIssuer) issue(subject string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)

	claims := accessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuerName,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, exp, nil
}

// verify returns the subject of a valid token. Expired tokens are reported
// with ErrTokenExpired so the stub can answer with a distinct code.
func (i *tokenIssuer) verify(token string) (string, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	switch {
	case err == nil:
		return claims.Subject, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", invalidError{code: codeTokenExpired, details: err}
	default:
		return "", invalidError{code: codeTokenInvalid, details: err}
	}
}
