package twofa

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatterhq/twofactor/pkg/backupcode"
	"github.com/chatterhq/twofactor/pkg/pg"
)

// consumeRetries bounds the optimistic-concurrency loop in
// ConsumeBackupCode. Contention on a single user's row is rare, so a losing
// retry almost always succeeds on the next read.
const consumeRetries = 5

// PostgresStore persists records in the user_2fa table. The enable and
// consume transitions are single conditional UPDATEs, so the row moves
// atomically and exactly one concurrent caller wins.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a store over an existing pgx pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// UpsertRecord implements Store.
func (p *PostgresStore) UpsertRecord(ctx context.Context, rec Record) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO user_2fa (user_id, secret, is_enabled, backup_codes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET secret = EXCLUDED.secret,
		    is_enabled = EXCLUDED.is_enabled,
		    backup_codes = EXCLUDED.backup_codes,
		    updated_at = now()`,
		rec.UserID, rec.Secret, rec.IsEnabled, rec.BackupCodes,
	)
	return err
}

// GetRecord implements Store.
func (p *PostgresStore) GetRecord(ctx context.Context, userID uuid.UUID) (Record, error) {
	rec := Record{UserID: userID}
	err := p.db.QueryRow(ctx,
		`SELECT secret, is_enabled, backup_codes FROM user_2fa WHERE user_id = $1`,
		userID,
	).Scan(&rec.Secret, &rec.IsEnabled, &rec.BackupCodes)
	if err != nil {
		if pg.IsNotFound(err) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// EnableWithCodes implements Store. The NOT is_enabled predicate makes the
// transition first-writer-wins.
func (p *PostgresStore) EnableWithCodes(ctx context.Context, userID uuid.UUID, codes []string) (bool, error) {
	tag, err := p.db.Exec(ctx, `
		UPDATE user_2fa
		SET is_enabled = TRUE, backup_codes = $2, updated_at = now()
		WHERE user_id = $1 AND NOT is_enabled`,
		userID, codes,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ConsumeBackupCode implements Store. The reduced list is written with a
// compare-and-swap on the previous list, so two logins spending the same
// code cannot both succeed; the loser re-reads and finds the code gone.
func (p *PostgresStore) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	for range consumeRetries {
		var stored []string
		err := p.db.QueryRow(ctx,
			`SELECT backup_codes FROM user_2fa WHERE user_id = $1 AND is_enabled`,
			userID,
		).Scan(&stored)
		if err != nil {
			if pg.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}

		found, remaining := backupcode.Consume(stored, code)
		if !found {
			return false, nil
		}

		tag, err := p.db.Exec(ctx, `
			UPDATE user_2fa
			SET backup_codes = $3, updated_at = now()
			WHERE user_id = $1 AND backup_codes = $2`,
			userID, stored, remaining,
		)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() == 1 {
			return true, nil
		}
		// Lost the swap to a concurrent consumption; re-read and retry.
	}
	return false, errors.New("backup code consumption: too many write conflicts")
}

// DeleteRecord implements Store.
func (p *PostgresStore) DeleteRecord(ctx context.Context, userID uuid.UUID) error {
	_, err := p.db.Exec(ctx, `DELETE FROM user_2fa WHERE user_id = $1`, userID)
	return err
}
