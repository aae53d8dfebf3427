// Package twofa orchestrates TOTP-based two-factor authentication for
// Chatter accounts: enrollment, verification, login-time validation with
// backup codes, and disabling.
//
// Each user moves through three states. Setup stores a fresh secret with
// the enabled flag off (provisioning); the first successful VerifyAndEnable
// flips the flag and mints single-use backup codes (enabled); Disable
// deletes the record after one more live TOTP code. Re-running Setup always
// restarts enrollment from scratch.
//
// Persistence is abstracted behind the Store interface so the protocol
// logic is testable without a database. Three implementations ship with the
// package: an in-memory store, a PostgreSQL store, and a Redis store. Every
// store must make backup-code consumption and the enable transition atomic;
// see the Store docs.
//
// The package never verifies a backup code where a live TOTP code is
// required: Disable deliberately rejects backup codes as proof of
// possession, while ValidateLogin accepts them as a fallback.
package twofa
