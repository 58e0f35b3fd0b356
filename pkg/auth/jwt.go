package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ActorClaims carries the identity fields this service reads from a
// bearer token. Identity itself lives in an external system; only the
// subject is consumed here, for audit attribution.
type ActorClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// TokenParser validates HMAC-signed bearer tokens.
type TokenParser struct {
	secret []byte
}

func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{secret: []byte(secret)}
}

// ParseActor returns the acting user ID from a signed token: the
// user_id claim when present, otherwise the registered subject.
func (p *TokenParser) ParseActor(tokenString string) (string, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", fmt.Errorf("token carries no subject")
}

type actorKey struct{}

// ContextWithActor attaches the acting user ID to the context.
func ContextWithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the acting user ID, or "" when the request
// carried no usable token.
func ActorFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(actorKey{}).(string); ok {
		return id
	}
	return ""
}
