package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/System625/delve-super-admin/service"
)

// AccountIDExtractor extracts the authenticated account ID from the request
type AccountIDExtractor func(r *http.Request) (string, error)

// TokenUsageExtractor reports how many tokens the handled request consumed
type TokenUsageExtractor func(r *http.Request) int64

// RequestTypeExtractor labels the request for the usage ledger
type RequestTypeExtractor func(r *http.Request) string

// MiddlewareConfig configures how the metering middleware behaves
type MiddlewareConfig struct {
	// Required configuration
	GetAccountID AccountIDExtractor

	// Optional configurations with defaults
	GetTokensUsed  TokenUsageExtractor
	GetRequestType RequestTypeExtractor

	// Whether to reject denied requests with 429 or let them through
	// unmetered
	EnforceLimit bool
}

// DefaultMiddlewareConfig returns a configuration with sensible defaults
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{
		GetAccountID: func(r *http.Request) (string, error) {
			id := r.Header.Get("X-Account-ID")
			if id == "" {
				return "", errors.New("no account ID provided")
			}
			return id, nil
		},
		GetTokensUsed: func(r *http.Request) int64 {
			return 0 // Handlers that report no usage still consume one call
		},
		GetRequestType: func(r *http.Request) string {
			return "general"
		},
		EnforceLimit: true,
	}
}

// MeteringMiddleware creates middleware that gates handlers on the
// admission check and records consumption afterwards.
//
// Usage is recorded whenever admission was granted, regardless of the
// handler's outcome: a permitted request consumed its slot even if the
// downstream work failed. Recording failures are logged, never
// surfaced, since the handler has already run.
func MeteringMiddleware(svc *service.Service, cfg MiddlewareConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			accountID, err := cfg.GetAccountID(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			admission, err := svc.CheckAdmission(ctx, accountID)
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			if stats, err := svc.AccountStats(ctx, accountID); err == nil {
				w.Header().Set("X-AIUsage-Limit", strconv.FormatInt(stats.DailyLimit, 10))
				remaining := stats.DailyLimit - stats.DailyUsage
				if remaining < 0 {
					remaining = 0
				}
				w.Header().Set("X-AIUsage-Remaining", strconv.FormatInt(remaining, 10))
			}

			if !admission.Allowed {
				if cfg.EnforceLimit {
					http.Error(w, admission.Reason, http.StatusTooManyRequests)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			// Call the next handler
			next.ServeHTTP(w, r)

			// Commit the consumption. The slot was taken even if the
			// caller has gone away, so recording ignores cancellation.
			tokens := cfg.GetTokensUsed(r)
			requestType := cfg.GetRequestType(r)
			if err := svc.RecordUsage(context.WithoutCancel(ctx), accountID, tokens, requestType); err != nil {
				log.Printf("Error recording usage for account %s: %v", accountID, err)
			}
		})
	}
}

// Example usage:
/*
func main() {
    // Create service...
    svc := service.NewService(accounts, ledger, audit, locker, cfg)

    // Configure middleware
    cfg := DefaultMiddlewareConfig()

    // Customize account ID extraction (e.g. from JWT claims resolved upstream)
    cfg.GetAccountID = func(r *http.Request) (string, error) {
        claims, err := extractJWTClaims(r)
        if err != nil {
            return "", err
        }
        return claims.AccountID, nil
    }

    // Report actual token consumption from the handler
    cfg.GetTokensUsed = func(r *http.Request) int64 {
        v, _ := strconv.ParseInt(r.Header.Get("X-Tokens-Used"), 10, 64)
        return v
    }

    router := http.NewServeMux()
    router.Handle("/api/ai/", MeteringMiddleware(svc, cfg)(aiHandler))
}
*/
