package domain

import (
	"strings"
	"testing"
)

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("s3cret-value")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash encoding: %s", hash)
	}
	if !VerifySecret("s3cret-value", hash) {
		t.Fatalf("correct secret must verify")
	}
	if VerifySecret("wrong", hash) {
		t.Fatalf("wrong secret must not verify")
	}
}

func TestVerifySecretMalformedHash(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$!!$aGFzaA",
	}
	for _, encoded := range cases {
		if VerifySecret("anything", encoded) {
			t.Fatalf("malformed hash %q must not verify", encoded)
		}
	}
}

func TestGenerateKey(t *testing.T) {
	keyID, secret, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(keyID, "pk_") || len(secret) == 0 {
		t.Fatalf("unexpected key material: %q / %q", keyID, secret)
	}

	otherID, otherSecret, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if keyID == otherID || secret == otherSecret {
		t.Fatalf("key material must be unique per call")
	}
}
