package twofa

import "github.com/google/uuid"

// Record is the per-user two-factor row. Secret holds the Base32 shared
// secret, or its AES-GCM ciphertext when encryption at rest is configured.
// BackupCodes only ever shrinks after enrollment; the full set is
// (re)issued solely at the moment the record becomes enabled.
type Record struct {
	UserID      uuid.UUID
	Secret      string
	IsEnabled   bool
	BackupCodes []string
}
