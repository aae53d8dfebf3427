package twofa

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/chatterhq/twofactor/pkg/backupcode"
)

// MemoryStore keeps records in process memory behind a mutex. Intended for
// tests and local development; the mutex makes every transition atomic, so
// it honors the same contract as the durable stores.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]Record)}
}

// UpsertRecord implements Store.
func (m *MemoryStore) UpsertRecord(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.BackupCodes = slices.Clone(rec.BackupCodes)
	m.records[rec.UserID] = rec
	return nil
}

// GetRecord implements Store.
func (m *MemoryStore) GetRecord(_ context.Context, userID uuid.UUID) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[userID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	rec.BackupCodes = slices.Clone(rec.BackupCodes)
	return rec, nil
}

// EnableWithCodes implements Store.
func (m *MemoryStore) EnableWithCodes(_ context.Context, userID uuid.UUID, codes []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok || rec.IsEnabled {
		return false, nil
	}
	rec.IsEnabled = true
	rec.BackupCodes = slices.Clone(codes)
	m.records[userID] = rec
	return true, nil
}

// ConsumeBackupCode implements Store.
func (m *MemoryStore) ConsumeBackupCode(_ context.Context, userID uuid.UUID, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok || !rec.IsEnabled {
		return false, nil
	}
	found, remaining := backupcode.Consume(rec.BackupCodes, code)
	if !found {
		return false, nil
	}
	rec.BackupCodes = remaining
	m.records[userID] = rec
	return true, nil
}

// DeleteRecord implements Store.
func (m *MemoryStore) DeleteRecord(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
	return nil
}
