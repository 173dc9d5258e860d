package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/System625/delve-super-admin/locks"
	"github.com/System625/delve-super-admin/models"
	"github.com/System625/delve-super-admin/policy"
	"github.com/System625/delve-super-admin/store"
)

type fixture struct {
	svc      *Service
	accounts *store.MemoryAccountStore
	ledger   *store.MemoryLedgerStore
	audit    *store.MemoryAuditStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	accounts := store.NewMemoryAccountStore()
	ledger := store.NewMemoryLedgerStore()
	audit := store.NewMemoryAuditStore()
	svc := NewService(accounts, ledger, audit, locks.NewMemoryLocker(), policy.DefaultConfig())

	return &fixture{svc: svc, accounts: accounts, ledger: ledger, audit: audit}
}

func (f *fixture) seed(t *testing.T, account *models.Account) {
	t.Helper()
	if account.LastResetAt.IsZero() {
		account.LastResetAt = time.Now()
	}
	require.NoError(t, f.accounts.Save(context.Background(), account))
}

func (f *fixture) account(t *testing.T, id string) *models.Account {
	t.Helper()
	acct, err := f.accounts.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, acct)
	return acct
}

func freeAccount(id string) *models.Account {
	return &models.Account{
		ID:          id,
		Email:       id + "@example.com",
		Name:        "Test User",
		Role:        models.RoleUser,
		AccountType: models.TierFree,
	}
}

func TestCheckAdmissionAccountNotFound(t *testing.T) {
	f := newFixture(t)

	adm, err := f.svc.CheckAdmission(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "Account not found", adm.Reason)
}

func TestCheckAdmissionDeactivatedDominates(t *testing.T) {
	f := newFixture(t)

	// Deactivation wins over everything, including a zero call count
	// and an active block.
	acct := freeAccount("u1")
	acct.IsDeactivated = true
	acct.IsBlocked = true
	f.seed(t, acct)

	adm, err := f.svc.CheckAdmission(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "Account has been deactivated", adm.Reason)
}

func TestCheckAdmissionBlocked(t *testing.T) {
	f := newFixture(t)

	acct := freeAccount("u1")
	acct.IsBlocked = true
	f.seed(t, acct)

	adm, err := f.svc.CheckAdmission(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "Account is blocked from AI services", adm.Reason)
}

func TestCheckAdmissionUnderLimit(t *testing.T) {
	f := newFixture(t)

	acct := freeAccount("u1")
	acct.DailyCallCount = 9
	f.seed(t, acct)

	adm, err := f.svc.CheckAdmission(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, adm.Allowed)
	assert.Empty(t, adm.Reason)
}

func TestCheckAdmissionIdempotent(t *testing.T) {
	f := newFixture(t)

	acct := freeAccount("u1")
	acct.DailyCallCount = 5
	f.seed(t, acct)

	for i := 0; i < 3; i++ {
		adm, err := f.svc.CheckAdmission(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, adm.Allowed)
	}

	// Checking alone never consumes quota.
	assert.Equal(t, int64(5), f.account(t, "u1").DailyCallCount)
}

func TestCheckAdmissionBlocksAtLimit(t *testing.T) {
	f := newFixture(t)

	acct := freeAccount("u1")
	acct.DailyCallCount = 10
	f.seed(t, acct)

	adm, err := f.svc.CheckAdmission(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "You have exceeded your daily AI usage limit (10 requests)", adm.Reason)

	assert.True(t, f.account(t, "u1").IsBlocked)

	events, err := f.audit.ListBlocks(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].AccountID)
	assert.Equal(t, "Daily free limit exceeded (10 requests)", events[0].Reason)
}

func TestCheckAdmissionPaidTierBlockReason(t *testing.T) {
	f := newFixture(t)

	acct := freeAccount("u1")
	acct.AccountType = models.TierPaid
	acct.SubscriptionCost = 30
	acct.DailyCallCount = 250
	f.seed(t, acct)

	adm, err := f.svc.CheckAdmission(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "You have exceeded your daily AI usage limit (250 requests)", adm.Reason)

	events, err := f.audit.ListBlocks(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Daily paid limit exceeded (250 requests)", events[0].Reason)
}

func TestCheckAdmissionDayRolloverResetsBeforeCheck(t *testing.T) {
	f := newFixture(t)

	// Yesterday's exhausted count must never block today's first request.
	acct := freeAccount("u1")
	acct.DailyCallCount = 10
	acct.LastResetAt = time.Now().Add(-24 * time.Hour)
	f.seed(t, acct)

	adm, err := f.svc.CheckAdmission(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, adm.Allowed)

	got := f.account(t, "u1")
	assert.Equal(t, int64(0), got.DailyCallCount)
	assert.False(t, got.IsBlocked)
	assert.True(t, startOfDayUTC(got.LastResetAt).Equal(startOfDayUTC(time.Now())))
}

func TestCheckAdmissionDayRolloverKeepsBlock(t *testing.T) {
	f := newFixture(t)

	acct := freeAccount("u1")
	acct.IsBlocked = true
	acct.DailyCallCount = 10
	acct.LastResetAt = time.Now().Add(-24 * time.Hour)
	f.seed(t, acct)

	// The daily reset never clears a block; only reactivation does.
	adm, err := f.svc.CheckAdmission(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.Equal(t, "Account is blocked from AI services", adm.Reason)
	assert.True(t, f.account(t, "u1").IsBlocked)
}

func TestRecordUsage(t *testing.T) {
	f := newFixture(t)
	f.seed(t, freeAccount("u1"))

	require.NoError(t, f.svc.RecordUsage(context.Background(), "u1", 500, "chat"))

	got := f.account(t, "u1")
	assert.Equal(t, int64(1), got.DailyCallCount)
	assert.Equal(t, int64(500), got.TotalTokensUsed)
	assert.InDelta(t, 0.001, got.TotalCost, 1e-9)

	entries, err := f.ledger.ListByAccount(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(500), entries[0].TokensUsed)
	assert.InDelta(t, 0.001, entries[0].Cost, 1e-9)
	assert.Equal(t, "chat", entries[0].RequestType)
	assert.NotEmpty(t, entries[0].ID)
}

func TestRecordUsageDefaultsRequestType(t *testing.T) {
	f := newFixture(t)
	f.seed(t, freeAccount("u1"))

	require.NoError(t, f.svc.RecordUsage(context.Background(), "u1", 100, ""))

	entries, err := f.ledger.ListByAccount(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "general", entries[0].RequestType)
}

func TestRecordUsageMissingAccountIsNoOp(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.RecordUsage(context.Background(), "missing", 100, "chat"))

	entries, err := f.ledger.ListByAccount(context.Background(), "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordUsageRejectsNegativeTokens(t *testing.T) {
	f := newFixture(t)
	f.seed(t, freeAccount("u1"))

	err := f.svc.RecordUsage(context.Background(), "u1", -1, "chat")
	assert.Error(t, err)
	assert.Equal(t, int64(0), f.account(t, "u1").DailyCallCount)
}

func TestRecordUsageTotalsMonotonic(t *testing.T) {
	f := newFixture(t)
	f.seed(t, freeAccount("u1"))

	var lastTokens int64
	var lastCost float64
	for _, tokens := range []int64{200, 0, 1500, 7} {
		require.NoError(t, f.svc.RecordUsage(context.Background(), "u1", tokens, ""))
		got := f.account(t, "u1")
		assert.GreaterOrEqual(t, got.TotalTokensUsed, lastTokens)
		assert.GreaterOrEqual(t, got.TotalCost, lastCost)
		lastTokens = got.TotalTokensUsed
		lastCost = got.TotalCost
	}
}

func TestRecordUsageConcurrentNoLostUpdates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, freeAccount("u1"))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.RecordUsage(context.Background(), "u1", 10, ""))
		}()
	}
	wg.Wait()

	got := f.account(t, "u1")
	assert.Equal(t, int64(n), got.DailyCallCount)
	assert.Equal(t, int64(n*10), got.TotalTokensUsed)
}

// TestFreeAccountExhaustionScenario walks the last allowed request of a
// free account through admission, recording, and the blocking check.
func TestFreeAccountExhaustionScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct := freeAccount("u1")
	acct.DailyCallCount = 9
	f.seed(t, acct)

	adm, err := f.svc.CheckAdmission(ctx, "u1")
	require.NoError(t, err)
	require.True(t, adm.Allowed)

	require.NoError(t, f.svc.RecordUsage(ctx, "u1", 500, ""))

	got := f.account(t, "u1")
	assert.Equal(t, int64(10), got.DailyCallCount)
	assert.Equal(t, int64(500), got.TotalTokensUsed)
	assert.InDelta(t, 0.001, got.TotalCost, 1e-9)

	adm, err = f.svc.CheckAdmission(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, adm.Allowed)
	assert.True(t, f.account(t, "u1").IsBlocked)

	events, err := f.audit.ListBlocks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Daily free limit exceeded (10 requests)", events[0].Reason)
}

func TestAccountStats(t *testing.T) {
	f := newFixture(t)

	acct := freeAccount("u1")
	acct.DailyCallCount = 4
	acct.TotalTokensUsed = 1234
	acct.TotalCost = 0.5
	f.seed(t, acct)

	stats, err := f.svc.AccountStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.DailyUsage)
	assert.Equal(t, int64(10), stats.DailyLimit)
	assert.Equal(t, int64(1234), stats.TotalTokens)
	assert.InDelta(t, 0.5, stats.TotalCost, 1e-9)
}

func TestAccountStatsAppliesLazyReset(t *testing.T) {
	f := newFixture(t)

	acct := freeAccount("u1")
	acct.DailyCallCount = 10
	acct.LastResetAt = time.Now().Add(-24 * time.Hour)
	f.seed(t, acct)

	stats, err := f.svc.AccountStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DailyUsage)
	assert.Equal(t, int64(0), f.account(t, "u1").DailyCallCount)
}

func TestAccountStatsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AccountStats(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestResetStaleCounters(t *testing.T) {
	f := newFixture(t)

	stale := freeAccount("stale")
	stale.DailyCallCount = 8
	stale.IsBlocked = true
	stale.LastResetAt = time.Now().Add(-48 * time.Hour)
	f.seed(t, stale)

	fresh := freeAccount("fresh")
	fresh.DailyCallCount = 3
	f.seed(t, fresh)

	require.NoError(t, f.svc.ResetStaleCounters(context.Background()))

	got := f.account(t, "stale")
	assert.Equal(t, int64(0), got.DailyCallCount)
	assert.True(t, got.IsBlocked, "sweep must not clear the block")
	assert.Equal(t, int64(3), f.account(t, "fresh").DailyCallCount)
}

func TestCheckAdmissionManyAccountsIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.seed(t, freeAccount(fmt.Sprintf("u%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("u%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				adm, err := f.svc.CheckAdmission(ctx, id)
				assert.NoError(t, err)
				assert.True(t, adm.Allowed)
				assert.NoError(t, f.svc.RecordUsage(ctx, id, 1, ""))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		got := f.account(t, fmt.Sprintf("u%d", i))
		assert.Equal(t, int64(10), got.DailyCallCount)
		assert.False(t, got.IsBlocked)
	}
}
