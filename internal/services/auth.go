package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/regscout/regscout-backend/internal/platform/envutil"
	"github.com/regscout/regscout-backend/internal/platform/logger"
)

// Fingerprint tokens expire daily; the quota resets with them. Admin
// tokens last longer.
const (
	fingerprintTokenTTL = 24 * time.Hour
	adminTokenTTL       = 30 * 24 * time.Hour
)

// Claims is the decoded token payload. Admin tokens carry the access
// code; fingerprint is present on both when known, which is what the
// personal document tools key on.
type Claims struct {
	Fingerprint string `json:"fingerprint,omitempty"`
	Code        string `json:"code,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

type AuthService interface {
	IssueFingerprintToken(fingerprint string) (string, error)
	IssueAdminToken(code, fingerprint string) (string, error)
	Decode(token string) (*Claims, error)
}

type authService struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthService(log *logger.Logger) (AuthService, error) {
	secret := envutil.Str("JWT_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}
	return &authService{
		log:    log.With("service", "AuthService"),
		secret: []byte(secret),
	}, nil
}

func (s *authService) IssueFingerprintToken(fingerprint string) (string, error) {
	return s.sign(&Claims{
		Fingerprint: fingerprint,
		IsAdmin:     false,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(fingerprintTokenTTL)),
		},
	})
}

func (s *authService) IssueAdminToken(code, fingerprint string) (string, error) {
	return s.sign(&Claims{
		Code:        code,
		Fingerprint: fingerprint,
		IsAdmin:     true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(adminTokenTTL)),
		},
	})
}

func (s *authService) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *authService) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		s.log.Warn("Invalid JWT token", "error", err)
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
