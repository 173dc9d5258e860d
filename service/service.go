package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/System625/delve-super-admin/locks"
	"github.com/System625/delve-super-admin/models"
	"github.com/System625/delve-super-admin/policy"
	"github.com/System625/delve-super-admin/store"
)

// Service implements the metering core: admission control, usage
// recording, and the administrative account state transitions.
type Service struct {
	accounts store.AccountStore
	ledger   store.LedgerStore
	audit    store.AuditStore
	locker   locks.AccountLocker
	cfg      policy.Config
}

// NewService creates a metering service over the given stores. All
// mutating operations for one account are serialized through the locker.
func NewService(accounts store.AccountStore, ledger store.LedgerStore, audit store.AuditStore, locker locks.AccountLocker, cfg policy.Config) *Service {
	return &Service{
		accounts: accounts,
		ledger:   ledger,
		audit:    audit,
		locker:   locker,
		cfg:      cfg,
	}
}

// Config returns the economics the service was built with.
func (s *Service) Config() policy.Config {
	return s.cfg
}

// Admission is the outcome of an admission check. Reason is set only
// on denial and is safe to show to the end user.
type Admission struct {
	Allowed bool
	Reason  string
}

// CheckAdmission decides whether the account may make one metered
// request. A denial is a normal outcome, not an error; errors are
// store or lock failures only.
//
// The deactivated flag dominates the blocked flag, and the lazy daily
// reset runs before the quota comparison so a rolled-over day is never
// judged on stale counts. Crossing the limit flips the account to
// blocked and emits exactly one block event; the block persists across
// daily resets until an administrator reactivates the account.
func (s *Service) CheckAdmission(ctx context.Context, accountID string) (Admission, error) {
	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return Admission{}, fmt.Errorf("locking account: %w", err)
	}
	defer unlock()

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return Admission{}, fmt.Errorf("loading account: %w", err)
	}
	if account == nil {
		return Admission{Reason: "Account not found"}, nil
	}

	if account.IsDeactivated {
		return Admission{Reason: "Account has been deactivated"}, nil
	}

	if account.IsBlocked {
		return Admission{Reason: "Account is blocked from AI services"}, nil
	}

	if err := s.resetIfNewDay(ctx, account, time.Now()); err != nil {
		return Admission{}, err
	}

	limit := s.cfg.DailyLimit(account)
	if account.DailyCallCount >= limit {
		account.IsBlocked = true
		if err := s.accounts.Save(ctx, account); err != nil {
			return Admission{}, fmt.Errorf("saving account: %w", err)
		}

		event := &models.BlockEvent{
			ID:        uuid.New().String(),
			AccountID: account.ID,
			Reason:    fmt.Sprintf("Daily %s limit exceeded (%d requests)", account.AccountType, limit),
			Timestamp: time.Now(),
		}
		if err := s.audit.AppendBlock(ctx, event); err != nil {
			return Admission{}, fmt.Errorf("appending block event: %w", err)
		}

		return Admission{
			Reason: fmt.Sprintf("You have exceeded your daily AI usage limit (%d requests)", limit),
		}, nil
	}

	return Admission{Allowed: true}, nil
}

// RecordUsage commits the consumption of one completed request:
// increments the daily count, accrues tokens and cost on the account,
// and appends one ledger entry. A missing account is a no-op so that
// accounting can never fail a request that already ran.
func (s *Service) RecordUsage(ctx context.Context, accountID string, tokensUsed int64, requestType string) error {
	if tokensUsed < 0 {
		return fmt.Errorf("tokens used cannot be negative: %d", tokensUsed)
	}
	if requestType == "" {
		requestType = "general"
	}

	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return fmt.Errorf("locking account: %w", err)
	}
	defer unlock()

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}
	if account == nil {
		return nil
	}

	cost := s.cfg.Cost(tokensUsed)

	account.DailyCallCount++
	account.TotalTokensUsed += tokensUsed
	account.TotalCost += cost
	if err := s.accounts.Save(ctx, account); err != nil {
		return fmt.Errorf("saving account: %w", err)
	}

	entry := &models.UsageEntry{
		ID:          uuid.New().String(),
		AccountID:   account.ID,
		Timestamp:   time.Now(),
		TokensUsed:  tokensUsed,
		Cost:        cost,
		RequestType: requestType,
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("appending usage entry: %w", err)
	}

	return nil
}

// AccountStats is a point-in-time usage summary for one account.
type AccountStats struct {
	DailyUsage  int64
	DailyLimit  int64
	TotalTokens int64
	TotalCost   float64
}

// AccountStats returns current usage against the derived daily limit.
// It applies the same lazy reset as an admission check.
func (s *Service) AccountStats(ctx context.Context, accountID string) (*AccountStats, error) {
	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("locking account: %w", err)
	}
	defer unlock()

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if err := s.resetIfNewDay(ctx, account, time.Now()); err != nil {
		return nil, err
	}

	return &AccountStats{
		DailyUsage:  account.DailyCallCount,
		DailyLimit:  s.cfg.DailyLimit(account),
		TotalTokens: account.TotalTokensUsed,
		TotalCost:   account.TotalCost,
	}, nil
}

// ResetStaleCounters proactively zeroes counters for accounts whose
// last reset fell before today (UTC). Functionally equivalent to the
// lazy reset; running it is an optimization, never a requirement.
func (s *Service) ResetStaleCounters(ctx context.Context) error {
	if err := s.accounts.ResetStale(ctx, startOfDayUTC(time.Now())); err != nil {
		return fmt.Errorf("resetting stale counters: %w", err)
	}
	return nil
}

// resetIfNewDay zeroes the daily counter when the last reset date
// (UTC) strictly precedes today, persisting the change. It never
// touches the blocked flag.
func (s *Service) resetIfNewDay(ctx context.Context, account *models.Account, now time.Time) error {
	if !startOfDayUTC(account.LastResetAt).Before(startOfDayUTC(now)) {
		return nil
	}

	account.DailyCallCount = 0
	account.LastResetAt = now
	if err := s.accounts.Save(ctx, account); err != nil {
		return fmt.Errorf("saving reset account: %w", err)
	}
	return nil
}

func startOfDayUTC(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
