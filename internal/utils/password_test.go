package utils

import "testing"

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if hash == "" {
		t.Error("HashPassword() returned empty string")
	}

	if hash == "testpassword123" {
		t.Error("HashPassword() should not return plaintext password")
	}
}

func TestHashPassword_DifferentHashes(t *testing.T) {
	hash1, _ := HashPassword("testpassword")
	hash2, _ := HashPassword("testpassword")

	if hash1 == hash2 {
		t.Error("same password should produce different hashes (due to salt)")
	}
}

func TestCheckPassword(t *testing.T) {
	hash, _ := HashPassword("correctpassword")

	if !CheckPassword("correctpassword", hash) {
		t.Error("CheckPassword should accept the correct password")
	}
	if CheckPassword("wrongpassword", hash) {
		t.Error("CheckPassword should reject a wrong password")
	}
	if CheckPassword("", hash) {
		t.Error("CheckPassword should reject an empty password")
	}
}

func TestCheckPassword_InvalidHash(t *testing.T) {
	if CheckPassword("password", "not-a-bcrypt-hash") {
		t.Error("CheckPassword should reject an invalid hash")
	}
}
