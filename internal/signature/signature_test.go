package signature

import (
	"errors"
	"testing"
	"time"
)

func TestSHA256Hex(t *testing.T) {
	got := SHA256Hex([]byte("hello world"))
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("sha256 mismatch: %s", got)
	}
}

func TestHMACSHA256Hex(t *testing.T) {
	got := HMACSHA256Hex([]byte("secret"), []byte("hello world"))
	want := "734cc62f32841568f45715aeb9f4d7891324e6d948e4c6c60c0621cdac48623a"
	if got != want {
		t.Fatalf("hmac mismatch: %s", got)
	}
}

func TestCanonicalStringOrderAndSkips(t *testing.T) {
	params := map[string]string{
		"b":     "2",
		"a":     "1",
		"empty": "",
		"sign":  "ignored",
	}
	got := CanonicalString(params, "s3cret")
	want := "a=1&b=2&key=s3cret"
	if got != want {
		t.Fatalf("canonical string mismatch: %s", got)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	params := map[string]string{
		"merchant_id": "M2023001",
		"amount":      "10000",
		"order_id":    "ORDER123",
	}
	secret := "test_secret"

	params[SignKey] = Sign(params, secret)
	if err := Verify(params, secret); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	// Flipping any parameter value invalidates the signature.
	tampered := map[string]string{}
	for k, v := range params {
		tampered[k] = v
	}
	tampered["amount"] = "20000"
	if err := Verify(tampered, secret); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestVerifyMissingSignature(t *testing.T) {
	err := Verify(map[string]string{"a": "1"}, "secret")
	if !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected missing signature, got %v", err)
	}
}

func TestVerifyHMACRoundTrip(t *testing.T) {
	params := map[string]string{"order_id": "O1", "amount": "500"}
	params[SignKey] = SignHMAC(params, "k")
	if err := VerifyHMAC(params, "k"); err != nil {
		t.Fatalf("expected valid hmac signature, got %v", err)
	}
	params["order_id"] = "O2"
	if err := VerifyHMAC(params, "k"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestVerifyTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	if err := VerifyTimestamp(now.Unix()-60, 5*time.Minute, now); err != nil {
		t.Fatalf("expected valid timestamp, got %v", err)
	}
	if err := VerifyTimestamp(now.Unix()-601, 10*time.Minute, now); !errors.Is(err, ErrTimestampExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if err := VerifyTimestamp(now.Unix()+30, 5*time.Minute, now); !errors.Is(err, ErrTimestampInFuture) {
		t.Fatalf("expected future rejection, got %v", err)
	}
}

func TestNonceLengthAndCharset(t *testing.T) {
	nonce := Nonce(32)
	if len(nonce) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(nonce))
	}
	for _, c := range nonce {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			t.Fatalf("unexpected character %q", c)
		}
	}
	if Nonce(16) == Nonce(16) {
		t.Fatalf("expected random nonces to differ")
	}
}
