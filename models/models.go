package models

import (
	"time"

	"github.com/uptrace/bun"
)

// AccountRole classifies an account for administrative purposes
type AccountRole string

const (
	RoleUser       AccountRole = "user"
	RoleAdmin      AccountRole = "admin"
	RoleSuperAdmin AccountRole = "super_admin"
)

// Protected reports whether accounts with this role may not be
// deactivated or deleted.
func (r AccountRole) Protected() bool {
	return r == RoleSuperAdmin
}

// AccountType is the billing tier of an account
type AccountType string

const (
	TierFree AccountType = "free"
	TierPaid AccountType = "paid"
)

// Account represents a metered user account in the database
type Account struct {
	bun.BaseModel `bun:"table:aiusage.account"`

	ID               string      `bun:"id,pk"`
	Email            string      `bun:"email,notnull"`
	Name             string      `bun:"name,notnull"`
	Role             AccountRole `bun:"role,notnull,default:'user'"`
	AccountType      AccountType `bun:"account_type,notnull,default:'free'"`
	SubscriptionTier string      `bun:"subscription_tier"`
	SubscriptionCost float64     `bun:"subscription_cost"` // monthly, currency units
	IsBlocked        bool        `bun:"is_blocked,notnull,default:false"`
	IsDeactivated    bool        `bun:"is_deactivated,notnull,default:false"`
	DailyCallCount   int64       `bun:"daily_call_count,notnull,default:0"`
	LastResetAt      time.Time   `bun:"last_reset_at,notnull,default:current_timestamp"`
	TotalTokensUsed  int64       `bun:"total_tokens_used,notnull,default:0"`
	TotalCost        float64     `bun:"total_cost,notnull,default:0"`
	CreatedAt        time.Time   `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt        time.Time   `bun:"updated_at,notnull,default:current_timestamp"`
}

// UsageEntry is an append-only record of one metered request
type UsageEntry struct {
	bun.BaseModel `bun:"table:aiusage.usage_entry,alias:ue"`

	ID          string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	AccountID   string    `bun:"account_id,notnull"`
	Timestamp   time.Time `bun:"timestamp,notnull,default:current_timestamp"`
	TokensUsed  int64     `bun:"tokens_used,notnull"`
	Cost        float64   `bun:"cost,notnull"`
	RequestType string    `bun:"request_type,notnull,default:'general'"`
}

// BlockEvent records one transition into the blocked state
type BlockEvent struct {
	bun.BaseModel `bun:"table:aiusage.block_event,alias:be"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	AccountID string    `bun:"account_id,notnull"`
	Reason    string    `bun:"reason,notnull"`
	Timestamp time.Time `bun:"timestamp,notnull,default:current_timestamp"`
}

// DeactivationAction distinguishes the two administrative transitions
type DeactivationAction string

const (
	ActionDeactivate DeactivationAction = "deactivate"
	ActionReactivate DeactivationAction = "reactivate"
)

// DeactivationEvent records an administrative deactivation or reactivation
type DeactivationEvent struct {
	bun.BaseModel `bun:"table:aiusage.deactivation_event,alias:de"`

	ID        string             `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	AccountID string             `bun:"account_id,notnull"`
	Action    DeactivationAction `bun:"action,notnull"`
	ActorID   string             `bun:"actor_id,notnull"`
	Timestamp time.Time          `bun:"timestamp,notnull,default:current_timestamp"`
}

// EconomicsRow stores the active usage economics configuration
type EconomicsRow struct {
	bun.BaseModel `bun:"table:aiusage.economics"`

	ID        int       `bun:"id,pk"`
	Config    []byte    `bun:"config,notnull"` // MessagePack encoded policy.Config
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
