package auth

import (
	"testing"
	"time"

	"github.com/erazemk/menjava/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, 1, "admin", model.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 1 {
		t.Errorf("expected user_id 1, got %d", claims.UserID)
	}
	if claims.Username != "admin" {
		t.Errorf("expected username 'admin', got %q", claims.Username)
	}
	if claims.Role != model.RoleAdmin {
		t.Errorf("expected role 'admin', got %q", claims.Role)
	}
	if claims.ParticipantID != "" {
		t.Errorf("expected no participant id, got %q", claims.ParticipantID)
	}
}

func TestParticipantToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateParticipantToken(secret, "p-1")
	if err != nil {
		t.Fatalf("GenerateParticipantToken: %v", err)
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.ParticipantID != "p-1" || claims.Role != model.RoleParticipant {
		t.Errorf("unexpected claims %+v", claims)
	}

	diff := time.Now().Add(ParticipantTokenExpiry).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("participant token expiry too far from expected: diff=%v", diff)
	}
}

func TestParticipantTokenRequiresID(t *testing.T) {
	secret := "test"
	token, _ := sign(secret, Claims{Role: model.RoleParticipant}, time.Hour)

	if _, err := ValidateToken(secret, token); err == nil {
		t.Error("expected error for participant token without id")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", 1, "admin", model.RoleAdmin)

	_, err := ValidateToken("secret2", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"
	token, _ := GenerateToken(secret, 1, "test", model.RoleAdmin)
	claims, _ := ValidateToken(secret, token)

	diff := time.Now().Add(TokenExpiry).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}
