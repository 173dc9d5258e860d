package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/System625/delve-super-admin/models"
)

// PostgresAccountStore is the bun-backed AccountStore.
type PostgresAccountStore struct {
	db *bun.DB
}

// NewPostgresAccountStore creates an AccountStore over the given database.
func NewPostgresAccountStore(db *bun.DB) *PostgresAccountStore {
	return &PostgresAccountStore{db: db}
}

var _ AccountStore = (*PostgresAccountStore)(nil)

func (s *PostgresAccountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	account := new(models.Account)
	err := s.db.NewSelect().
		Model(account).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding account: %w", err)
	}
	return account, nil
}

func (s *PostgresAccountStore) Save(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now()
	_, err := s.db.NewInsert().
		Model(account).
		On("CONFLICT (id) DO UPDATE").
		Set("account_type = EXCLUDED.account_type").
		Set("subscription_tier = EXCLUDED.subscription_tier").
		Set("subscription_cost = EXCLUDED.subscription_cost").
		Set("is_blocked = EXCLUDED.is_blocked").
		Set("is_deactivated = EXCLUDED.is_deactivated").
		Set("daily_call_count = EXCLUDED.daily_call_count").
		Set("last_reset_at = EXCLUDED.last_reset_at").
		Set("total_tokens_used = EXCLUDED.total_tokens_used").
		Set("total_cost = EXCLUDED.total_cost").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("saving account: %w", err)
	}
	return nil
}

func (s *PostgresAccountStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().
		Model((*models.Account)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return nil
}

func (s *PostgresAccountStore) List(ctx context.Context, filter StateFilter) ([]models.Account, error) {
	var accounts []models.Account
	q := s.db.NewSelect().Model(&accounts)

	switch filter {
	case FilterActive:
		q = q.Where("is_blocked = ?", false).Where("is_deactivated = ?", false)
	case FilterBlocked:
		q = q.Where("is_blocked = ?", true)
	case FilterDeactivated:
		q = q.Where("is_deactivated = ?", true)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

// ResetStale zeroes daily counters for accounts whose last reset
// precedes the cutoff. Optional sweep; the lazy per-account reset is
// authoritative.
func (s *PostgresAccountStore) ResetStale(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("daily_call_count = ?", 0).
		Set("last_reset_at = ?", time.Now()).
		Where("last_reset_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("resetting stale counters: %w", err)
	}
	return nil
}

// PostgresLedgerStore is the bun-backed LedgerStore.
type PostgresLedgerStore struct {
	db *bun.DB
}

// NewPostgresLedgerStore creates a LedgerStore over the given database.
func NewPostgresLedgerStore(db *bun.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

var _ LedgerStore = (*PostgresLedgerStore)(nil)

func (s *PostgresLedgerStore) Append(ctx context.Context, entry *models.UsageEntry) error {
	_, err := s.db.NewInsert().
		Model(entry).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("appending usage entry: %w", err)
	}
	return nil
}

func (s *PostgresLedgerStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.UsageEntry, error) {
	var entries []models.UsageEntry
	err := s.db.NewSelect().
		Model(&entries).
		Where("account_id = ?", accountID).
		OrderExpr("timestamp DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing usage entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresLedgerStore) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := s.db.NewDelete().
		Model((*models.UsageEntry)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting usage entries: %w", err)
	}
	return nil
}

// PostgresAuditStore is the bun-backed AuditStore.
type PostgresAuditStore struct {
	db *bun.DB
}

// NewPostgresAuditStore creates an AuditStore over the given database.
func NewPostgresAuditStore(db *bun.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

var _ AuditStore = (*PostgresAuditStore)(nil)

func (s *PostgresAuditStore) AppendBlock(ctx context.Context, event *models.BlockEvent) error {
	_, err := s.db.NewInsert().
		Model(event).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("appending block event: %w", err)
	}
	return nil
}

func (s *PostgresAuditStore) AppendDeactivation(ctx context.Context, event *models.DeactivationEvent) error {
	_, err := s.db.NewInsert().
		Model(event).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("appending deactivation event: %w", err)
	}
	return nil
}

func (s *PostgresAuditStore) ListBlocks(ctx context.Context, limit int) ([]models.BlockEvent, error) {
	var events []models.BlockEvent
	err := s.db.NewSelect().
		Model(&events).
		OrderExpr("timestamp DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing block events: %w", err)
	}
	return events, nil
}

func (s *PostgresAuditStore) ListDeactivations(ctx context.Context, limit int) ([]models.DeactivationEvent, error) {
	var events []models.DeactivationEvent
	err := s.db.NewSelect().
		Model(&events).
		OrderExpr("timestamp DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing deactivation events: %w", err)
	}
	return events, nil
}

func (s *PostgresAuditStore) DeleteByAccount(ctx context.Context, accountID string) error {
	if _, err := s.db.NewDelete().
		Model((*models.BlockEvent)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx); err != nil {
		return fmt.Errorf("deleting block events: %w", err)
	}
	if _, err := s.db.NewDelete().
		Model((*models.DeactivationEvent)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx); err != nil {
		return fmt.Errorf("deleting deactivation events: %w", err)
	}
	return nil
}
