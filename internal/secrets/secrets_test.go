package secrets

import "testing"

func TestBox_RoundTrip(t *testing.T) {
	box, err := NewBox("a long random secret")
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}

	for _, plaintext := range []string{"ghp_token123", "{\"url\":\"https://example.com\"}", "中文值"} {
		encrypted, err := box.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if encrypted == plaintext {
			t.Errorf("Encrypt(%q) returned the plaintext", plaintext)
		}

		decrypted, err := box.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("round trip = %q, want %q", decrypted, plaintext)
		}
	}
}

func TestBox_EmptyPassesThrough(t *testing.T) {
	box, err := NewBox("secret")
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}

	if enc, err := box.Encrypt(""); err != nil || enc != "" {
		t.Errorf("Encrypt(\"\") = %q, %v, want empty, nil", enc, err)
	}
	if dec, err := box.Decrypt(""); err != nil || dec != "" {
		t.Errorf("Decrypt(\"\") = %q, %v, want empty, nil", dec, err)
	}
}

func TestBox_WrongKeyFails(t *testing.T) {
	box1, _ := NewBox("secret one")
	box2, _ := NewBox("secret two")

	encrypted, err := box1.Encrypt("value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := box2.Decrypt(encrypted); err == nil {
		t.Fatal("Decrypt with wrong key succeeded")
	}
}

func TestBox_SameSecretSameKey(t *testing.T) {
	box1, _ := NewBox("stable secret")
	box2, _ := NewBox("stable secret")

	encrypted, err := box1.Encrypt("survives restarts")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	decrypted, err := box2.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt with rederived key: %v", err)
	}
	if decrypted != "survives restarts" {
		t.Errorf("got %q", decrypted)
	}
}

func TestNewBox_EmptySecret(t *testing.T) {
	if _, err := NewBox(""); err == nil {
		t.Fatal("NewBox(\"\") succeeded, want error")
	}
}
