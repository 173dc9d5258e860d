// Package store defines the persistence boundary for the metering core:
// the account record store, the append-only usage ledger, and the audit
// event store. Postgres-backed implementations live alongside in-memory
// ones used by tests and single-process setups.
package store

import (
	"context"
	"time"

	"github.com/System625/delve-super-admin/models"
)

// StateFilter narrows account listings by flag state.
type StateFilter string

const (
	FilterAll         StateFilter = "all"
	FilterActive      StateFilter = "active"
	FilterBlocked     StateFilter = "blocked"
	FilterDeactivated StateFilter = "deactivated"
)

// AccountStore reads and writes account records.
type AccountStore interface {
	// Get returns the account or (nil, nil) when no record exists.
	Get(ctx context.Context, id string) (*models.Account, error)

	// Save persists the full account record.
	Save(ctx context.Context, account *models.Account) error

	// Delete removes the account record.
	Delete(ctx context.Context, id string) error

	// List returns accounts matching the state filter.
	List(ctx context.Context, filter StateFilter) ([]models.Account, error)

	// ResetStale zeroes daily counters last reset before the cutoff.
	ResetStale(ctx context.Context, cutoff time.Time) error
}

// LedgerStore appends and reads usage entries.
type LedgerStore interface {
	// Append records one usage entry. Entries are never mutated.
	Append(ctx context.Context, entry *models.UsageEntry) error

	// ListByAccount returns up to limit entries, newest first.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]models.UsageEntry, error)

	// DeleteByAccount erases all entries for an account.
	DeleteByAccount(ctx context.Context, accountID string) error
}

// AuditStore appends and reads block and deactivation events.
type AuditStore interface {
	AppendBlock(ctx context.Context, event *models.BlockEvent) error
	AppendDeactivation(ctx context.Context, event *models.DeactivationEvent) error

	// ListBlocks returns up to limit block events, newest first.
	ListBlocks(ctx context.Context, limit int) ([]models.BlockEvent, error)

	// ListDeactivations returns up to limit deactivation events, newest first.
	ListDeactivations(ctx context.Context, limit int) ([]models.DeactivationEvent, error)

	// DeleteByAccount erases all events for an account.
	DeleteByAccount(ctx context.Context, accountID string) error
}
