// Package auth issues and validates the bearer tokens of operators and
// anonymous participants.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erazemk/menjava/internal/model"
)

// Claims represents the JWT claims. Operator tokens carry UserID and
// Username; participant tokens carry ParticipantID.
type Claims struct {
	UserID        int64  `json:"user_id,omitempty"`
	Username      string `json:"username,omitempty"`
	ParticipantID string `json:"participant_id,omitempty"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

// Token lifetimes. Participant sessions span one event day at most.
const (
	TokenExpiry            = 7 * 24 * time.Hour
	ParticipantTokenExpiry = 24 * time.Hour
)

// GenerateToken creates a new operator JWT with a unique JTI.
func GenerateToken(secret string, userID int64, username, role string) (string, error) {
	return sign(secret, Claims{UserID: userID, Username: username, Role: role}, TokenExpiry)
}

// GenerateParticipantToken creates a JWT for an anonymous participant session.
func GenerateParticipantToken(secret, participantID string) (string, error) {
	return sign(secret, Claims{ParticipantID: participantID, Role: model.RoleParticipant}, ParticipantTokenExpiry)
}

func sign(secret string, claims Claims, ttl time.Duration) (string, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", fmt.Errorf("generating JTI: %w", err)
	}

	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Role == model.RoleParticipant && claims.ParticipantID == "" {
		return nil, fmt.Errorf("participant token without participant id")
	}

	return claims, nil
}

func generateJTI() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
