package twofa

import "errors"

var (
	// ErrNotSetUp is returned when verification is attempted before Setup.
	ErrNotSetUp = errors.New("two-factor authentication is not set up")

	// ErrNotEnabled is returned when a login-time operation targets a user
	// whose record is missing or never finished enrollment. Callers should
	// treat it as "this user should not have been asked for a code".
	ErrNotEnabled = errors.New("two-factor authentication is not enabled")

	// ErrRecordNotFound is the store-level miss, distinct from the
	// operation-level errors above.
	ErrRecordNotFound = errors.New("two-factor record not found")

	// ErrCorruptedSecret signals that the stored secret no longer decodes or
	// decrypts. This is a data integrity failure, not a wrong code; it is
	// logged distinctly and must never be presented as "try again".
	ErrCorruptedSecret = errors.New("stored two-factor secret is corrupted")

	// ErrStoreUnavailable wraps persistence failures, including exhausted
	// write-conflict retries. Safe for callers to retry.
	ErrStoreUnavailable = errors.New("two-factor store unavailable")
)
