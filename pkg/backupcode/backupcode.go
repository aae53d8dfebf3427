// Package backupcode mints and consumes single-use recovery codes. A backup
// code substitutes for a TOTP code when the authenticator device is lost;
// each code may be used at most once, so consumption returns the reduced
// set the caller must persist before reporting success.
package backupcode

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

// DefaultCount is the number of codes issued when two-factor auth is enabled.
const DefaultCount = 8

// codeSize is the entropy per code. 4 bytes hex-encode into 8 characters,
// displayed as two groups of 4 for easier transcription (e.g. "A1B2-C3D4").
const codeSize = 4

var (
	ErrInvalidCount     = errors.New("backup code count must be greater than 0")
	ErrFailedToGenerate = errors.New("failed to generate backup code")
)

// Generate mints count fresh recovery codes from crypto/rand.
func Generate(count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	codes := make([]string, count)
	for i := range codes {
		raw := make([]byte, codeSize)
		if _, err := rand.Read(raw); err != nil {
			return nil, errors.Join(ErrFailedToGenerate, err)
		}
		hexed := strings.ToUpper(hex.EncodeToString(raw))
		codes[i] = hexed[:4] + "-" + hexed[4:]
	}
	return codes, nil
}

// Normalize strips hyphens and whitespace and uppercases, so user input
// compares equal to the stored form regardless of transcription style.
func Normalize(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

// Consume looks up candidate in codes and, when found, returns the list
// with exactly that entry removed (first match only, should the stored set
// ever contain duplicates). The input slice is not modified.
//
// Callers are responsible for persisting the remaining list atomically with
// whatever success the match unlocks; reporting success before the reduced
// list is durable would let the same code be spent twice.
func Consume(codes []string, candidate string) (bool, []string) {
	want := Normalize(candidate)
	if want == "" {
		return false, codes
	}

	for i, code := range codes {
		if Normalize(code) == want {
			remaining := make([]string, 0, len(codes)-1)
			remaining = append(remaining, codes[:i]...)
			remaining = append(remaining, codes[i+1:]...)
			return true, remaining
		}
	}
	return false, codes
}
