package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var ErrInvalidClaims = errors.New("invalid token claims")

type JWTAuthenticator struct {
	secret string
	iss    string
	exp    time.Duration
}

func NewJWTAuthenticator(secret, iss string, exp time.Duration) *JWTAuthenticator {
	if exp <= 0 {
		exp = 72 * time.Hour
	}
	return &JWTAuthenticator{secret: secret, iss: iss, exp: exp}
}

// GenerateToken issues an access token for an administrator.
func (a *JWTAuthenticator) GenerateToken(adminID int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  adminID,
		"role": RoleAdmin,
		"exp":  now.Add(a.exp).Unix(),
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"iss":  a.iss,
		"aud":  a.iss,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.secret))
}

// ValidateToken validates the access token
func (a *JWTAuthenticator) ValidateToken(token string) (*jwt.Token, error) {
	return jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.secret), nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.iss),
		jwt.WithAudience(a.iss),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
}

// AdminID extracts the administrator id from a validated token.
func AdminID(token *jwt.Token) (int64, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidClaims
	}
	if role, _ := claims["role"].(string); role != RoleAdmin {
		return 0, ErrInvalidClaims
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return 0, ErrInvalidClaims
	}
	return int64(sub), nil
}
