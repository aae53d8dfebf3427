package totp_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatterhq/twofactor/pkg/totp"
)

func TestGenerateSecret(t *testing.T) {
	t.Parallel()

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	assert.Regexp(t, "^[A-Z2-7]+$", secret)

	// 20 bytes encode to 32 Base32 characters without padding.
	assert.Len(t, secret, 32)

	raw, err := totp.DecodeSecret(secret)
	require.NoError(t, err)
	assert.Len(t, raw, totp.SecretSize)
}

func TestGenerateSecret_FreshPerCall(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 50 {
		secret, err := totp.GenerateSecret()
		require.NoError(t, err)
		assert.False(t, seen[secret], "secret repeated across calls")
		seen[secret] = true
	}
}

func TestDecodeSecret_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, size := range []int{1, 2, 5, 10, 19, 20, 33} {
		raw := make([]byte, size)
		_, err := rand.Read(raw)
		require.NoError(t, err)

		decoded, err := totp.DecodeSecret(totp.EncodeSecret(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, decoded, "size %d", size)
	}
}

func TestDecodeSecret_Lenient(t *testing.T) {
	t.Parallel()

	// Lowercase input and trailing padding are accepted.
	decoded, err := totp.DecodeSecret("mfrgg===")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), decoded)
}

func TestDecodeSecret_RejectsInvalid(t *testing.T) {
	t.Parallel()

	// Characters outside the alphabet are rejected rather than skipped: a
	// silently re-interpreted secret would verify against the wrong key.
	tests := []string{"", "ABC1", "ABC DEF", "AB-CD", "ABC8", "ABC=DEF"}
	for _, secret := range tests {
		_, err := totp.DecodeSecret(secret)
		assert.ErrorIs(t, err, totp.ErrMalformedSecret, "secret %q", secret)
	}
}

func TestProvisioningURI(t *testing.T) {
	t.Parallel()

	uri, err := totp.ProvisioningURI(totp.URIParams{
		Secret:      "ABCDEFGHIJKLMNOP",
		AccountName: "jane@example.com",
		Issuer:      "Chatter",
	})
	require.NoError(t, err)
	assert.Equal(t,
		"otpauth://totp/Chatter:jane@example.com?algorithm=SHA1&digits=6&issuer=Chatter&period=30&secret=ABCDEFGHIJKLMNOP",
		uri,
	)
}

func TestProvisioningURI_Escaping(t *testing.T) {
	t.Parallel()

	uri, err := totp.ProvisioningURI(totp.URIParams{
		Secret:      "ABCDEFGHIJKLMNOP",
		AccountName: "jane doe@example.com",
		Issuer:      "Chatter & Co",
	})
	require.NoError(t, err)
	assert.Equal(t,
		"otpauth://totp/Chatter%20&%20Co:jane%20doe@example.com?algorithm=SHA1&digits=6&issuer=Chatter+%26+Co&period=30&secret=ABCDEFGHIJKLMNOP",
		uri,
	)
}

func TestProvisioningURI_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params totp.URIParams
		want   error
	}{
		{"missing secret", totp.URIParams{AccountName: "a", Issuer: "b"}, totp.ErrMissingSecret},
		{"invalid secret", totp.URIParams{Secret: "abc!", AccountName: "a", Issuer: "b"}, totp.ErrMalformedSecret},
		{"missing account", totp.URIParams{Secret: "ABCD", Issuer: "b"}, totp.ErrMissingAccountName},
		{"missing issuer", totp.URIParams{Secret: "ABCD", AccountName: "a"}, totp.ErrMissingIssuer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := totp.ProvisioningURI(tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
