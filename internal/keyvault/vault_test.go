package keyvault

import (
	"encoding/base64"
	"strings"
	"testing"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := New(key)
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}
	return v
}

func TestSealOpen_RoundTrip(t *testing.T) {
	v := testVault(t)

	sealed, err := v.Seal("sk-live-abc123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, "sk-live") {
		t.Error("sealed value must not contain the plaintext")
	}

	opened, err := v.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "sk-live-abc123" {
		t.Errorf("opened = %q, want original secret", opened)
	}
}

func TestSeal_NoncesDiffer(t *testing.T) {
	v := testVault(t)

	a, err := v.Seal("same-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := v.Seal("same-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if a == b {
		t.Error("sealing the same secret twice must produce different ciphertexts")
	}
}

func TestOpen_RejectsTampering(t *testing.T) {
	v := testVault(t)

	sealed, err := v.Seal("secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := v.Open(tampered); err == nil {
		t.Error("tampered ciphertext must fail authentication")
	}
}

func TestOpen_RejectsWrongKey(t *testing.T) {
	v := testVault(t)
	sealed, err := v.Seal("secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	other := make([]byte, 32)
	for i := range other {
		other[i] = byte(255 - i)
	}
	v2, err := New(other)
	if err != nil {
		t.Fatalf("creating second vault: %v", err)
	}
	if _, err := v2.Open(sealed); err == nil {
		t.Error("foreign key must not open the sealed value")
	}
}

func TestOpen_RejectsGarbage(t *testing.T) {
	v := testVault(t)

	if _, err := v.Open("not base64!!!"); err == nil {
		t.Error("invalid base64 must be rejected")
	}
	if _, err := v.Open(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Error("too-short sealed value must be rejected")
	}
}

func TestNew_RejectsBadKeySize(t *testing.T) {
	if _, err := New(make([]byte, 16)); err == nil {
		t.Error("16-byte key must be rejected")
	}
}

func TestGenerateMasterKey(t *testing.T) {
	encoded, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("generated key is not base64: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("key length = %d, want 32", len(key))
	}

	second, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if encoded == second {
		t.Error("two generated keys must differ")
	}
}

func TestFromEnv(t *testing.T) {
	encoded, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	t.Setenv(MasterKeyEnv, encoded)

	v, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	sealed, err := v.Seal("x")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if out, err := v.Open(sealed); err != nil || out != "x" {
		t.Errorf("round trip via env key failed: %v %q", err, out)
	}
}

func TestFromEnv_Unset(t *testing.T) {
	t.Setenv(MasterKeyEnv, "")
	if _, err := FromEnv(); err == nil {
		t.Error("unset master key must be an error")
	}
}
