package twofa

import (
	"context"

	"github.com/google/uuid"
)

// Store persists two-factor records keyed by user ID. Implementations must
// scope every operation to the given user ID as a hard predicate; there is
// no cross-user access path.
//
// EnableWithCodes and ConsumeBackupCode are the two state transitions that
// race under concurrent logins, and both must be atomic read-modify-writes:
// of N concurrent calls presenting the same backup code, exactly one may
// observe consumed=true, and of N concurrent enable attempts exactly one
// may observe flipped=true.
type Store interface {
	// UpsertRecord creates or fully replaces the record for rec.UserID.
	UpsertRecord(ctx context.Context, rec Record) error

	// GetRecord returns the record for userID, or ErrRecordNotFound.
	GetRecord(ctx context.Context, userID uuid.UUID) (Record, error)

	// EnableWithCodes transitions a provisioning record to enabled and
	// stores the freshly minted backup codes. It reports true only when
	// this call performed the transition; false when the record is already
	// enabled or no longer exists.
	EnableWithCodes(ctx context.Context, userID uuid.UUID, codes []string) (flipped bool, err error)

	// ConsumeBackupCode removes the first stored code matching the
	// candidate (comparison is normalization-insensitive) from an enabled
	// record and persists the reduced list, all atomically. It reports true
	// only when this call removed a code.
	ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string) (consumed bool, err error)

	// DeleteRecord removes the record. Deleting an absent record is a no-op.
	DeleteRecord(ctx context.Context, userID uuid.UUID) error
}
