// Package auth validates bearer tokens issued by the external identity
// provider. Token issuance, sign-in and sign-out all live with the provider;
// this service only checks the HS256 shared-secret signature and extracts
// the subject.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ValidateToken returns the token's subject claim.
func ValidateToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return subject, nil
}
