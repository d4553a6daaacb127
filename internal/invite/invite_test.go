package invite

import "testing"

func TestMint_Deterministic(t *testing.T) {
	secret := []byte("a-fixed-32-byte-test-secret!!!!!")
	a := Mint(secret, "fp-1", 42, "seed-abc")
	b := Mint(secret, "fp-1", 42, "seed-abc")

	if a != b {
		t.Fatalf("expected Mint to be deterministic for identical inputs, got %q vs %q", a, b)
	}
}

func TestMint_DiffersOnAnyInputChange(t *testing.T) {
	secret := []byte("a-fixed-32-byte-test-secret!!!!!")
	base := Mint(secret, "fp-1", 42, "seed-abc")

	cases := map[string]string{
		"fingerprint": Mint(secret, "fp-2", 42, "seed-abc"),
		"nonce":       Mint(secret, "fp-1", 43, "seed-abc"),
		"seed":        Mint(secret, "fp-1", 42, "seed-xyz"),
	}
	for name, got := range cases {
		if got == base {
			t.Fatalf("expected changing %s to change the minted code", name)
		}
	}
}

func TestMint_SecretRotationInvalidatesPriorCodes(t *testing.T) {
	secretA := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	secretB := []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	codeA := Mint(secretA, "fp", 1, "seed")
	codeB := Mint(secretB, "fp", 1, "seed")

	if Equal(codeA, codeB) {
		t.Fatalf("expected a rotated server secret to invalidate previously minted codes")
	}
}

func TestMint_HasExpectedPrefix(t *testing.T) {
	code := Mint([]byte("secret"), "fp", 1, "seed")
	if len(code) < len(codePrefix) || code[:len(codePrefix)] != codePrefix {
		t.Fatalf("expected code to start with %q, got %q", codePrefix, code)
	}
}

func TestEqual_ConstantTimeComparison(t *testing.T) {
	if !Equal("same", "same") {
		t.Fatalf("expected equal strings to compare equal")
	}
	if Equal("same", "different") {
		t.Fatalf("expected different strings to compare unequal")
	}
}
