package policy

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/System625/delve-super-admin/models"
)

// Config holds the usage economics: the constants that drive quota
// derivation and cost accrual. Inject alternate values to change the
// economics without touching the policy logic.
type Config struct {
	// FreeDailyLimit is the fixed daily request limit for free accounts.
	FreeDailyLimit int64 `yaml:"free_daily_limit"`

	// TokensPerCurrencyUnit approximates how many tokens one currency
	// unit buys.
	TokensPerCurrencyUnit float64 `yaml:"tokens_per_currency_unit"`

	// SubscriptionValueFactor is the share of a paid account's daily
	// subscription value made available as token budget.
	SubscriptionValueFactor float64 `yaml:"subscription_value_factor"`

	// AvgTokensPerRequest converts a token budget into a request count.
	AvgTokensPerRequest float64 `yaml:"avg_tokens_per_request"`

	// TokenCostFactor is the accrued cost per token, in currency units.
	TokenCostFactor float64 `yaml:"token_cost_factor"`
}

// DefaultConfig returns the reference economics.
func DefaultConfig() Config {
	return Config{
		FreeDailyLimit:          10,
		TokensPerCurrencyUnit:   500000,
		SubscriptionValueFactor: 0.5,
		AvgTokensPerRequest:     1000,
		TokenCostFactor:         0.000002,
	}
}

// LoadConfigFromFile loads economics from a YAML file. Fields omitted
// from the file keep their default values.
func LoadConfigFromFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing yaml: %w", err)
	}

	return cfg, nil
}

// DailyLimit derives the daily request allowance for an account.
//
// Free accounts get the fixed free limit. Paid accounts get a limit
// derived from their monthly subscription cost: the cost is spread over
// 30 days, converted to an approximate token budget, reserved down by
// the value factor, then divided by the average tokens per request and
// ceiling-rounded. Paid accounts never drop below three times the free
// limit, which is also the fallback when no subscription cost is on
// record.
func (c Config) DailyLimit(account *models.Account) int64 {
	if account.AccountType == models.TierFree {
		return c.FreeDailyLimit
	}
	return c.paidDailyLimit(account.SubscriptionCost)
}

func (c Config) paidDailyLimit(subscriptionCost float64) int64 {
	floor := c.FreeDailyLimit * 3
	if subscriptionCost <= 0 {
		return floor
	}

	dailyValue := subscriptionCost / 30
	tokenBudget := dailyValue * c.TokensPerCurrencyUnit * c.SubscriptionValueFactor
	limit := int64(math.Ceil(tokenBudget / c.AvgTokensPerRequest))

	if limit < floor {
		return floor
	}
	return limit
}

// Cost converts a token count into accrued cost.
func (c Config) Cost(tokensUsed int64) float64 {
	return float64(tokensUsed) * c.TokenCostFactor
}
