package push

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key is a base64url-encoded uncompressed P-256 point.
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate second key pair: %v", err)
	}
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestPayloadOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Payload{Title: "Members updated", Body: "added Alice"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	got := string(data)
	want := `{"title":"Members updated","body":"added Alice"}`
	if got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
}
