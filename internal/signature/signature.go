package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"sort"
	"strings"
	"time"
)

var (
	ErrMissingSignature  = errors.New("missing_signature")
	ErrInvalidSignature  = errors.New("invalid_signature")
	ErrTimestampExpired  = errors.New("timestamp_expired")
	ErrTimestampInFuture = errors.New("timestamp_in_future")
)

// SignKey is the reserved parameter name carrying the signature itself.
// It is always excluded from the canonical string.
const SignKey = "sign"

// SHA256Hex returns the hex encoded SHA-256 digest of input.
func SHA256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// HMACSHA256Hex returns the hex encoded HMAC-SHA256 of message under key.
func HMACSHA256Hex(key, message []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// CanonicalString builds the signing payload: parameters sorted by key,
// joined as key=value with '&', empty values and the sign parameter skipped,
// then "&key=<secret>" appended.
func CanonicalString(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == SignKey || params[key] == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params[key])
	}
	b.WriteString("&key=")
	b.WriteString(secret)
	return b.String()
}

// Sign computes the SHA-256 signature over the canonical parameter string.
func Sign(params map[string]string, secret string) string {
	return SHA256Hex([]byte(CanonicalString(params, secret)))
}

// SignHMAC computes the HMAC-SHA256 signature over the canonical parameter
// string, for channels whose scheme keys the digest rather than appending
// the secret alone.
func SignHMAC(params map[string]string, secret string) string {
	return HMACSHA256Hex([]byte(secret), []byte(CanonicalString(params, secret)))
}

// Verify re-derives the expected signature and compares it in constant time.
func Verify(params map[string]string, secret string) error {
	provided := strings.TrimSpace(params[SignKey])
	if provided == "" {
		return ErrMissingSignature
	}
	expected := Sign(params, secret)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyHMAC is Verify for the HMAC-keyed scheme.
func VerifyHMAC(params map[string]string, secret string) error {
	provided := strings.TrimSpace(params[SignKey])
	if provided == "" {
		return ErrMissingSignature
	}
	expected := SignHMAC(params, secret)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyTimestamp checks that ts (unix seconds) is neither future dated nor
// older than window.
func VerifyTimestamp(ts int64, window time.Duration, now time.Time) error {
	diff := now.Unix() - ts
	if diff < 0 {
		return ErrTimestampInFuture
	}
	if diff > int64(window.Seconds()) {
		return ErrTimestampExpired
	}
	return nil
}

const nonceCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Nonce returns a random alphanumeric string of length n.
func Nonce(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(nonceCharset)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the platform source is broken.
			panic(err)
		}
		out[i] = nonceCharset[idx.Int64()]
	}
	return string(out)
}
