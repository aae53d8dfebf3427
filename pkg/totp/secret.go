package totp

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"regexp"
	"strings"
)

// SecretSize is the number of random bytes in a generated shared secret.
// 160 bits is the RFC 4226 recommended minimum for HMAC-SHA1.
const SecretSize = 20

// secretAlphabet matches the RFC 4648 Base32 alphabet without padding.
var secretAlphabet = regexp.MustCompile(`^[A-Z2-7]+$`)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh Base32-encoded shared secret drawn from
// crypto/rand. Every call produces new entropy; the output is never derived
// from caller input.
func GenerateSecret() (string, error) {
	raw := make([]byte, SecretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Join(ErrFailedToGenerateSecret, err)
	}
	return b32.EncodeToString(raw), nil
}

// EncodeSecret encodes raw key bytes into the unpadded Base32 form used in
// provisioning URIs.
func EncodeSecret(raw []byte) string {
	return b32.EncodeToString(raw)
}

// DecodeSecret decodes a Base32 shared secret back into key bytes. Decoding
// is case-insensitive and tolerates trailing "=" padding, but any character
// outside the Base32 alphabet is rejected with ErrMalformedSecret. A secret
// that decodes to a different key than the one enrolled would produce
// well-formed yet wrong codes, so corruption must fail loudly here.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	secret = strings.TrimRight(secret, "=")
	if !secretAlphabet.MatchString(secret) {
		return nil, ErrMalformedSecret
	}
	raw, err := b32.DecodeString(secret)
	if err != nil {
		return nil, errors.Join(ErrMalformedSecret, err)
	}
	return raw, nil
}
