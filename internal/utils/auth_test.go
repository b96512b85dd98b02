package utils

import (
	"testing"
	"time"
)

func TestPasswordHashing(t *testing.T) {
	password := "secret123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if hash == password {
		t.Error("Hash should not match plaintext password")
	}

	if !CheckPasswordHash(password, hash) {
		t.Error("Password should match hash")
	}
	if CheckPasswordHash("wrongpassword", hash) {
		t.Error("Wrong password should not match hash")
	}
}

func TestJWT(t *testing.T) {
	secret := "test-secret-key-12345"

	token, err := GenerateToken("admin", secret, time.Now())
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims["sub"] != "admin" {
		t.Errorf("Expected sub admin, got %v", claims["sub"])
	}

	if _, err := ValidateToken(token, "other-secret"); err == nil {
		t.Error("Token signed with another secret should be rejected")
	}

	expired, _ := GenerateToken("admin", secret, time.Now().Add(-2*TokenTTL))
	if _, err := ValidateToken(expired, secret); err == nil {
		t.Error("Expired token should be rejected")
	}
}
