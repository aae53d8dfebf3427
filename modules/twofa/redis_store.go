package twofa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chatterhq/twofactor/pkg/backupcode"
)

// RedisStore persists records as redis hashes. Mutating transitions run
// under WATCH with an optimistic retry, so a concurrent writer invalidates
// the transaction instead of racing it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an existing go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(userID uuid.UUID) string {
	return fmt.Sprintf("twofa:record:%s", userID)
}

const (
	fieldSecret  = "secret"
	fieldEnabled = "enabled"
	fieldCodes   = "codes"
)

// UpsertRecord implements Store.
func (r *RedisStore) UpsertRecord(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec.BackupCodes)
	if err != nil {
		return err
	}
	enabled := "0"
	if rec.IsEnabled {
		enabled = "1"
	}
	return r.client.HSet(ctx, recordKey(rec.UserID),
		fieldSecret, rec.Secret,
		fieldEnabled, enabled,
		fieldCodes, string(payload),
	).Err()
}

// GetRecord implements Store.
func (r *RedisStore) GetRecord(ctx context.Context, userID uuid.UUID) (Record, error) {
	vals, err := r.client.HGetAll(ctx, recordKey(userID)).Result()
	if err != nil {
		return Record{}, err
	}
	if len(vals) == 0 {
		return Record{}, ErrRecordNotFound
	}
	return recordFromHash(userID, vals)
}

// EnableWithCodes implements Store.
func (r *RedisStore) EnableWithCodes(ctx context.Context, userID uuid.UUID, codes []string) (bool, error) {
	key := recordKey(userID)
	var flipped bool

	txf := func(tx *redis.Tx) error {
		flipped = false
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(vals) == 0 || vals[fieldEnabled] == "1" {
			return nil
		}
		payload, err := json.Marshal(codes)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldEnabled, "1", fieldCodes, string(payload))
			return nil
		})
		if err == nil {
			flipped = true
		}
		return err
	}

	if err := r.watchWithRetry(ctx, txf, key); err != nil {
		return false, err
	}
	return flipped, nil
}

// ConsumeBackupCode implements Store.
func (r *RedisStore) ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	key := recordKey(userID)
	var consumed bool

	txf := func(tx *redis.Tx) error {
		consumed = false
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(vals) == 0 || vals[fieldEnabled] != "1" {
			return nil
		}
		var codes []string
		if err := json.Unmarshal([]byte(vals[fieldCodes]), &codes); err != nil {
			return err
		}
		found, remaining := backupcode.Consume(codes, code)
		if !found {
			return nil
		}
		payload, err := json.Marshal(remaining)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldCodes, string(payload))
			return nil
		})
		if err == nil {
			consumed = true
		}
		return err
	}

	if err := r.watchWithRetry(ctx, txf, key); err != nil {
		return false, err
	}
	return consumed, nil
}

// DeleteRecord implements Store.
func (r *RedisStore) DeleteRecord(ctx context.Context, userID uuid.UUID) error {
	return r.client.Del(ctx, recordKey(userID)).Err()
}

// watchWithRetry runs txf under WATCH on key, retrying when a concurrent
// write invalidates the transaction.
func (r *RedisStore) watchWithRetry(ctx context.Context, txf func(*redis.Tx) error, key string) error {
	for range consumeRetries {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errors.New("two-factor record update: too many write conflicts")
}

func recordFromHash(userID uuid.UUID, vals map[string]string) (Record, error) {
	rec := Record{
		UserID:    userID,
		Secret:    vals[fieldSecret],
		IsEnabled: vals[fieldEnabled] == "1",
	}
	if raw := vals[fieldCodes]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.BackupCodes); err != nil {
			return Record{}, err
		}
	}
	if rec.BackupCodes == nil {
		rec.BackupCodes = []string{}
	}
	return rec, nil
}
