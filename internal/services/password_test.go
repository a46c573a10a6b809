package services

import "testing"

func TestPasswordHashRoundTrip(t *testing.T) {
	salt, err := GenerateSaltHex()
	if err != nil {
		t.Fatalf("GenerateSaltHex: %v", err)
	}
	if len(salt) != passwordSaltBytes*2 {
		t.Fatalf("salt length = %d", len(salt))
	}

	hash, err := HashPassword("correct horse", salt)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword("correct horse", salt, hash) {
		t.Fatalf("verify should succeed")
	}
	if VerifyPassword("battery staple", salt, hash) {
		t.Fatalf("verify should fail for wrong password")
	}

	// Same password, different salt, different hash.
	salt2, _ := GenerateSaltHex()
	hash2, _ := HashPassword("correct horse", salt2)
	if hash == hash2 {
		t.Fatalf("hashes should differ across salts")
	}
}

func TestHashPassword_Errors(t *testing.T) {
	if _, err := HashPassword("", "abcd"); err == nil {
		t.Fatalf("expected error for empty password")
	}
	if _, err := HashPassword("pw", "not-hex"); err == nil {
		t.Fatalf("expected error for invalid salt")
	}
	if VerifyPassword("pw", "not-hex", "whatever") {
		t.Fatalf("verify with bad salt should fail")
	}
}
