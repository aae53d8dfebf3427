package totp

import (
	"fmt"
	"net/url"
)

// URIParams describes an otpauth:// provisioning URI.
type URIParams struct {
	Secret      string // Base32-encoded shared secret (required)
	AccountName string // User-facing account label, usually an email (required)
	Issuer      string // Service name shown in authenticator apps (required)
	Algorithm   string // HMAC algorithm (optional, defaults to SHA1)
	Digits      int    // Code length (optional, defaults to 6)
	Period      int    // Time step in seconds (optional, defaults to 30)
}

// Validate ensures all required provisioning parameters are present.
func (p URIParams) Validate() error {
	if p.Secret == "" {
		return ErrMissingSecret
	}
	if !secretAlphabet.MatchString(p.Secret) {
		return ErrMalformedSecret
	}
	if p.AccountName == "" {
		return ErrMissingAccountName
	}
	if p.Issuer == "" {
		return ErrMissingIssuer
	}
	return nil
}

func (p URIParams) withDefaults() URIParams {
	if p.Algorithm == "" {
		p.Algorithm = "SHA1"
	}
	if p.Digits == 0 {
		p.Digits = DefaultDigits
	}
	if p.Period == 0 {
		p.Period = DefaultPeriod
	}
	return p
}

// ProvisioningURI builds the otpauth:// URI that authenticator apps import,
// typically via a QR code. The format follows the Key Uri Format
// specification:
// https://github.com/google/google-authenticator/wiki/Key-Uri-Format
func ProvisioningURI(params URIParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	params = params.withDefaults()

	label := fmt.Sprintf("%s:%s",
		url.PathEscape(params.Issuer),
		url.PathEscape(params.AccountName),
	)

	query := url.Values{}
	query.Set("secret", params.Secret)
	query.Set("issuer", params.Issuer)
	query.Set("algorithm", params.Algorithm)
	query.Set("digits", fmt.Sprintf("%d", params.Digits))
	query.Set("period", fmt.Sprintf("%d", params.Period))

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode()), nil
}
