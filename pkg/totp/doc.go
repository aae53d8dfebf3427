// Package totp implements time-based one-time passwords (RFC 6238) on top
// of the HOTP algorithm (RFC 4226), together with the helpers a two-factor
// enrollment flow needs: shared-secret generation, a strict Base32 codec,
// otpauth:// provisioning URIs, and AES-256-GCM encryption of secrets at
// rest.
//
// All time-dependent functions take the reference time as an explicit
// argument, so callers control the clock and tests can pin it.
//
// # Usage
//
//	secret, err := totp.GenerateSecret()
//	if err != nil {
//		// handle error
//	}
//
//	uri, err := totp.ProvisioningURI(totp.URIParams{
//		Secret:      secret,
//		AccountName: "jane@example.com",
//		Issuer:      "Chatter",
//	})
//
//	ok, err := totp.VerifyCode(secret, userInput, time.Now(), totp.DefaultSkew)
//
// # Error Handling
//
// Sentinel errors are declared in errors.go and wrapped with errors.Join,
// so they can be inspected with errors.Is. A malformed secret is reported
// as ErrMalformedSecret and is a different failure class than a code that
// simply does not match: VerifyCode returns (false, nil) for a mismatch.
package totp
