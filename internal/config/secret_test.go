package config

import "testing"

func TestResolveAdminSecret_EmptyGeneratesRandomSecret(t *testing.T) {
	a, err := ResolveAdminSecret("")
	if err != nil {
		t.Fatalf("ResolveAdminSecret: %v", err)
	}
	b, err := ResolveAdminSecret("")
	if err != nil {
		t.Fatalf("ResolveAdminSecret: %v", err)
	}
	if len(a) != ServerSecretLen || len(b) != ServerSecretLen {
		t.Fatalf("expected generated secrets to be %d bytes", ServerSecretLen)
	}
	if string(a) == string(b) {
		t.Fatalf("expected two independently generated secrets to differ")
	}
}

func TestResolveAdminSecret_ValidHexDecodes(t *testing.T) {
	full := ""
	for i := 0; i < ServerSecretLen; i++ {
		full += "ab"
	}

	got, err := ResolveAdminSecret(full)
	if err != nil {
		t.Fatalf("ResolveAdminSecret: %v", err)
	}
	if len(got) != ServerSecretLen {
		t.Fatalf("expected %d decoded bytes, got %d", ServerSecretLen, len(got))
	}
}

func TestResolveAdminSecret_RejectsWrongLength(t *testing.T) {
	if _, err := ResolveAdminSecret("aabbcc"); err == nil {
		t.Fatalf("expected an error for a hex string shorter than %d bytes", ServerSecretLen)
	}
}

func TestResolveAdminSecret_RejectsInvalidHex(t *testing.T) {
	if _, err := ResolveAdminSecret("not-hex-at-all"); err == nil {
		t.Fatalf("expected an error for a non-hex string")
	}
}
