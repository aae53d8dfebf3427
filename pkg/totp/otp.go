package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultDigits = 6  // Standard 6-digit codes
	DefaultPeriod = 30 // 30-second time step (RFC 6238 standard)

	// DefaultSkew is the number of adjacent time steps accepted on either
	// side of the reference time, tolerating up to DefaultSkew*DefaultPeriod
	// seconds of clock drift between server and authenticator.
	DefaultSkew = 1
)

// codeFormat matches a well-formed 6-digit code.
var codeFormat = regexp.MustCompile(`^\d{6}$`)

// GenerateHOTP implements the RFC 4226 HMAC-based one-time password
// algorithm: HMAC-SHA1 over the big-endian counter, dynamic truncation to a
// 31-bit integer, then reduction to the requested number of digits.
func GenerateHOTP(key []byte, counter uint64, digits int) int {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// The low 4 bits of the last byte select the truncation offset. The top
	// bit of the extracted word is cleared so the result is non-negative
	// regardless of platform integer width.
	offset := sum[len(sum)-1] & 0x0f
	trunc := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for range digits {
		mod *= 10
	}
	return int(trunc % mod)
}

// GenerateCode returns the 6-digit TOTP code for the time step containing
// at. The function is pure in (secret, at): identical inputs always yield
// the identical code.
func GenerateCode(secret string, at time.Time) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	counter := uint64(at.Unix() / DefaultPeriod)
	return fmt.Sprintf("%0*d", DefaultDigits, GenerateHOTP(key, counter, DefaultDigits)), nil
}

// VerifyCode reports whether code matches the TOTP for secret at the given
// reference time, accepting skew time steps on either side (2*skew+1
// candidate counters in total).
//
// A code that does not match, including one that is not 6 digits, is a
// normal (false, nil) outcome. Only a malformed secret is an error; callers
// must not present that to users as a wrong code, since retyping the code
// cannot fix it.
func VerifyCode(secret, code string, at time.Time, skew int) (bool, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return false, err
	}

	code = strings.TrimSpace(code)
	if !codeFormat.MatchString(code) {
		return false, nil
	}
	if skew < 0 {
		skew = 0
	}

	counter := at.Unix() / DefaultPeriod
	for step := -skew; step <= skew; step++ {
		candidate := GenerateHOTP(key, uint64(counter+int64(step)), DefaultDigits)
		if fmt.Sprintf("%0*d", DefaultDigits, candidate) == code {
			return true, nil
		}
	}
	return false, nil
}
