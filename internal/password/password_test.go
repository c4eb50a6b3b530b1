package password

import "testing"

func TestHashAndCompare(t *testing.T) {
	hash, err := Hash("rahasia123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "rahasia123" {
		t.Fatal("hash equals plain text")
	}
	if !Compare("rahasia123", hash) {
		t.Fatal("Compare() rejected the correct password")
	}
	if Compare("salah", hash) {
		t.Fatal("Compare() accepted a wrong password")
	}
}

func TestCompareRejectsGarbageHash(t *testing.T) {
	if Compare("anything", "not-a-bcrypt-hash") {
		t.Fatal("Compare() accepted a malformed hash")
	}
}
