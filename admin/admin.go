// Package admin provides the read-side reporting queries and the
// persisted economics configuration used by operator tooling. The
// state-changing administrative operations (deactivate, reactivate,
// delete) live on the service, where they share the account lock with
// the metering path.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/System625/delve-super-admin/models"
	"github.com/System625/delve-super-admin/policy"
	"github.com/System625/delve-super-admin/store"
)

// economicsRowID pins the economics table to a single row.
const economicsRowID = 1

// ListAccounts returns accounts filtered by flag state.
func ListAccounts(ctx context.Context, accounts store.AccountStore, filter store.StateFilter) ([]models.Account, error) {
	return accounts.List(ctx, filter)
}

// AccountUsageLog returns the most recent usage entries for an account,
// newest first.
func AccountUsageLog(ctx context.Context, ledger store.LedgerStore, accountID string, limit int) ([]models.UsageEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return ledger.ListByAccount(ctx, accountID, limit)
}

// SystemLogKind selects which audit events SystemLogs returns.
type SystemLogKind string

const (
	LogsBlocked      SystemLogKind = "blocked"
	LogsDeactivation SystemLogKind = "deactivation"
	LogsAll          SystemLogKind = "all"
)

// SystemLog is a unified view over block and deactivation events.
type SystemLog struct {
	ID        string
	Kind      SystemLogKind
	AccountID string
	Reason    string
	Action    models.DeactivationAction
	ActorID   string
	Timestamp time.Time
}

// SystemLogs returns recent audit events of the requested kind, newest
// first. Asking for all interleaves both event types, splitting the
// limit between them.
func SystemLogs(ctx context.Context, audit store.AuditStore, kind SystemLogKind, limit int) ([]SystemLog, error) {
	if limit <= 0 {
		limit = 100
	}

	var logs []SystemLog

	if kind == LogsBlocked || kind == LogsAll {
		perKind := limit
		if kind == LogsAll {
			perKind = limit / 2
		}
		blocks, err := audit.ListBlocks(ctx, perKind)
		if err != nil {
			return nil, fmt.Errorf("listing block events: %w", err)
		}
		for _, e := range blocks {
			logs = append(logs, SystemLog{
				ID:        e.ID,
				Kind:      LogsBlocked,
				AccountID: e.AccountID,
				Reason:    e.Reason,
				Timestamp: e.Timestamp,
			})
		}
	}

	if kind == LogsDeactivation || kind == LogsAll {
		perKind := limit
		if kind == LogsAll {
			perKind = limit / 2
		}
		deactivations, err := audit.ListDeactivations(ctx, perKind)
		if err != nil {
			return nil, fmt.Errorf("listing deactivation events: %w", err)
		}
		for _, e := range deactivations {
			logs = append(logs, SystemLog{
				ID:        e.ID,
				Kind:      LogsDeactivation,
				AccountID: e.AccountID,
				Action:    e.Action,
				ActorID:   e.ActorID,
				Timestamp: e.Timestamp,
			})
		}
	}

	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Timestamp.After(logs[j].Timestamp) })
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// SaveEconomics persists the economics config as the active one.
func SaveEconomics(ctx context.Context, db *bun.DB, cfg policy.Config) error {
	encoded, err := msgpack.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding economics: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NewInsert().
		Model(&models.EconomicsRow{
			ID:     economicsRowID,
			Config: encoded,
		}).
		On("CONFLICT (id) DO UPDATE").
		Set("config = EXCLUDED.config").
		Set("updated_at = ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upserting economics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// LoadEconomics returns the persisted economics, or (defaults, false)
// when none have been saved.
func LoadEconomics(ctx context.Context, db *bun.DB) (policy.Config, bool, error) {
	row := new(models.EconomicsRow)
	err := db.NewSelect().
		Model(row).
		Where("id = ?", economicsRowID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.DefaultConfig(), false, nil
	}
	if err != nil {
		return policy.DefaultConfig(), false, fmt.Errorf("finding economics: %w", err)
	}

	var cfg policy.Config
	if err := msgpack.Unmarshal(row.Config, &cfg); err != nil {
		return policy.DefaultConfig(), false, fmt.Errorf("unmarshaling economics: %w", err)
	}
	return cfg, true, nil
}
