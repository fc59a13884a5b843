package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer mints the opaque session tokens handed to clients. The session
// store, not the token, decides whether a session is still valid.
type TokenIssuer interface {
	Issue(userID string, expiresAt time.Time) (string, error)
	Verify(token string) (*Claims, error)
}

// Claims represents JWT token claims
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type JWTTokenIssuer struct {
	Secret []byte
	Issuer string
}

var ErrInvalidToken = errors.New("invalid token")

// NewJWTTokenIssuer creates a new JWT token issuer
func NewJWTTokenIssuer(secret, issuer string) *JWTTokenIssuer {
	return &JWTTokenIssuer{
		Secret: []byte(secret),
		Issuer: issuer,
	}
}

// Issue signs a token carrying a unique id so two sessions of one user never
// share a token.
func (j *JWTTokenIssuer) Issue(userID string, expiresAt time.Time) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    j.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// Verify checks the signature and issuer only. Expiry is enforced by the
// session manager so idle and absolute expiry are reported the same way.
func (j *JWTTokenIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if j.Issuer != "" && claims.Issuer != j.Issuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
