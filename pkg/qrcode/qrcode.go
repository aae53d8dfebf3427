// Package qrcode renders provisioning payloads as QR code images, either as
// raw PNG bytes or as a data URI that drops straight into an <img> tag.
// Generating the image server-side keeps the TOTP secret out of third-party
// QR services.
package qrcode

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrGenerationFailed = errors.New("failed to generate QR code")
)

// defaultSize is the edge length in pixels used when no size is given.
const defaultSize = 200

// PNG encodes content into a size x size QR code image.
func PNG(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = defaultSize
	}
	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrGenerationFailed, err)
	}
	return png, nil
}

// DataURI encodes content into a base64 PNG data URI.
func DataURI(content string, size int) (string, error) {
	png, err := PNG(content, size)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(png)), nil
}
