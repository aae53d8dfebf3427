package qrcode_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatterhq/twofactor/pkg/qrcode"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestPNG(t *testing.T) {
	t.Parallel()

	png, err := qrcode.PNG("otpauth://totp/Chatter:jane@example.com?secret=ABCD", 200)
	require.NoError(t, err)
	assert.Equal(t, pngMagic, png[:4])
}

func TestPNG_DefaultSize(t *testing.T) {
	t.Parallel()

	png, err := qrcode.PNG("hello", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestPNG_EmptyContent(t *testing.T) {
	t.Parallel()

	_, err := qrcode.PNG("   ", 200)
	assert.ErrorIs(t, err, qrcode.ErrEmptyContent)
}

func TestDataURI(t *testing.T) {
	t.Parallel()

	uri, err := qrcode.DataURI("otpauth://totp/Chatter:jane@example.com?secret=ABCD", 200)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}
