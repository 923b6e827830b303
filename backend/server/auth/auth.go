// Package auth signs and verifies the bearer tokens the API accepts.
// Identities come from an external provider; this package only checks that
// a token was signed with the shared key and extracts the user id from it.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

var (
	// ErrInvalidToken is returned for malformed, unsigned or wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for tokens past their exp claim.
	ErrTokenExpired = errors.New("token has expired")
)

// DefaultTokenTTL is the lifetime of tokens created without an explicit ttl.
const DefaultTokenTTL = 24 * time.Hour

// CreateAuthToken is a function to create a signed JWT token for a user.
//
// It accepts three arguments:
// - signingKey: The HMAC key shared with the API.
// - userId: The ID of the user to generate a token for.
// - ttl: How long the token stays valid. Zero uses DefaultTokenTTL.
//
// It returns a signed HS256 token carrying the "id" and "exp" claims.
func CreateAuthToken(signingKey, userId string, ttl time.Duration) (string, error) {
	if userId == "" {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := jwt.MapClaims{
		"id":  userId,
		"exp": time.Now().Add(ttl).Unix(),
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := newToken.SignedString([]byte(signingKey))
	if err != nil {
		return "", errors.New("failed to create auth token")
	}

	return signedToken, nil
}

// ParseToken is a function to verify a token and extract the user id from it.
//
// It accepts two arguments:
// - signingKey: The HMAC key the token must be signed with.
// - tokenStr: The raw token, without the "Bearer " prefix.
//
// It returns the user id, ErrTokenExpired for expired tokens, or
// ErrInvalidToken for anything else that fails validation.
func ParseToken(signingKey, tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(signingKey), nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	userID, ok := claims["id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: missing id claim", ErrInvalidToken)
	}
	return userID, nil
}
