package auth

import (
	"strings"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !CheckPassword("s3cret-pass", hash) {
		t.Fatalf("expected bcrypt password check to pass")
	}
	if CheckPassword("wrong-pass", hash) {
		t.Fatalf("expected bcrypt password check to fail")
	}
}

func TestGenerateTempPassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		pw, err := GenerateTempPassword()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(pw) != tempPasswordLength {
			t.Fatalf("length = %d, want %d", len(pw), tempPasswordLength)
		}
		for _, r := range pw {
			if !strings.ContainsRune(tempPasswordAlphabet, r) {
				t.Fatalf("unexpected character %q in %q", r, pw)
			}
		}
		if seen[pw] {
			t.Fatalf("duplicate temp password generated: %q", pw)
		}
		seen[pw] = true
	}
}
