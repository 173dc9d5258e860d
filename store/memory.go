package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/System625/delve-super-admin/models"
)

// MemoryAccountStore is an in-memory AccountStore.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

// NewMemoryAccountStore creates an empty in-memory account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]models.Account)}
}

var _ AccountStore = (*MemoryAccountStore)(nil)

func (s *MemoryAccountStore) Get(_ context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &acct, nil
}

func (s *MemoryAccountStore) Save(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.UpdatedAt = time.Now()
	s.accounts[account.ID] = *account
	return nil
}

func (s *MemoryAccountStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accounts, id)
	return nil
}

func (s *MemoryAccountStore) List(_ context.Context, filter StateFilter) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Account
	for _, acct := range s.accounts {
		switch filter {
		case FilterActive:
			if acct.IsBlocked || acct.IsDeactivated {
				continue
			}
		case FilterBlocked:
			if !acct.IsBlocked {
				continue
			}
		case FilterDeactivated:
			if !acct.IsDeactivated {
				continue
			}
		}
		out = append(out, acct)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ResetStale zeroes daily counters for accounts whose last reset
// precedes the cutoff.
func (s *MemoryAccountStore) ResetStale(_ context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, acct := range s.accounts {
		if acct.LastResetAt.Before(cutoff) {
			acct.DailyCallCount = 0
			acct.LastResetAt = now
			s.accounts[id] = acct
		}
	}
	return nil
}

// MemoryLedgerStore is an in-memory LedgerStore.
type MemoryLedgerStore struct {
	mu      sync.RWMutex
	entries []models.UsageEntry
}

// NewMemoryLedgerStore creates an empty in-memory ledger.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{}
}

var _ LedgerStore = (*MemoryLedgerStore)(nil)

func (s *MemoryLedgerStore) Append(_ context.Context, entry *models.UsageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *MemoryLedgerStore) ListByAccount(_ context.Context, accountID string, limit int) ([]models.UsageEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.UsageEntry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryLedgerStore) DeleteByAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.AccountID != accountID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

// MemoryAuditStore is an in-memory AuditStore.
type MemoryAuditStore struct {
	mu            sync.RWMutex
	blocks        []models.BlockEvent
	deactivations []models.DeactivationEvent
}

// NewMemoryAuditStore creates an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

var _ AuditStore = (*MemoryAuditStore)(nil)

func (s *MemoryAuditStore) AppendBlock(_ context.Context, event *models.BlockEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	s.blocks = append(s.blocks, *event)
	return nil
}

func (s *MemoryAuditStore) AppendDeactivation(_ context.Context, event *models.DeactivationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	s.deactivations = append(s.deactivations, *event)
	return nil
}

func (s *MemoryAuditStore) ListBlocks(_ context.Context, limit int) ([]models.BlockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.BlockEvent, len(s.blocks))
	copy(out, s.blocks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryAuditStore) ListDeactivations(_ context.Context, limit int) ([]models.DeactivationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DeactivationEvent, len(s.deactivations))
	copy(out, s.deactivations)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryAuditStore) DeleteByAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keptBlocks := s.blocks[:0]
	for _, e := range s.blocks {
		if e.AccountID != accountID {
			keptBlocks = append(keptBlocks, e)
		}
	}
	s.blocks = keptBlocks

	keptDeactivations := s.deactivations[:0]
	for _, e := range s.deactivations {
		if e.AccountID != accountID {
			keptDeactivations = append(keptDeactivations, e)
		}
	}
	s.deactivations = keptDeactivations
	return nil
}
