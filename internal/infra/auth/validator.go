package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/attendance-engine/internal/domain"
)

// Допустимый разброс часов между выпускающим сервисом и движком
const clockLeeway = 30 * time.Second

// Validator проверяет токены внешнего сервиса выдачи: RS-подпись, срок,
// опционально issuer/audience и роль из известного набора.
type Validator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewValidator: пустые issuer и audience не проверяются
func NewValidator(pubKey *rsa.PublicKey, issuer, audience string) *Validator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Validator{publicKey: pubKey, parser: jwt.NewParser(opts...)}
}

// VerifyToken реализует TokenValidator. Принимает токен с префиксом "Bearer " и без.
func (v *Validator) VerifyToken(tokenStr string) (*domain.CustomClaims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))
	if tokenStr == "" {
		return nil, errors.New("empty token")
	}

	claims := &domain.CustomClaims{}
	if _, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if !domain.KnownRole(claims.Role) {
		return nil, fmt.Errorf("invalid claims: unknown role %q", claims.Role)
	}
	return claims, nil
}

// ParseRSAPublicKey превращает PEM в ключ для проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, errors.New("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
