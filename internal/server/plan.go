package server

import "time"

// Plan identifies a pricing tier. Limits live in one table so a change
// here is enforced everywhere.
type Plan string

const (
	PlanAnon    Plan = "anon"
	PlanFree    Plan = "free"
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
)

// PlanLimits are the enforceable caps of a tier. Zero means "no cap" for
// MaxExpiryDays and StorageQuotaBytes.
type PlanLimits struct {
	Label             string
	MaxFileBytes      int64
	MaxTextBytes      int64
	MaxExpiryDays     int
	StorageQuotaBytes int64
}

var planLimits = map[Plan]PlanLimits{
	PlanAnon: {
		Label:        "Anonymous",
		MaxFileBytes: 200 << 20,
		MaxTextBytes: 500 << 10,
	},
	PlanFree: {
		Label:        "Free",
		MaxFileBytes: 200 << 20,
		MaxTextBytes: 500 << 10,
	},
	PlanStarter: {
		Label:             "Starter",
		MaxFileBytes:      1 << 30,
		MaxTextBytes:      2 << 20,
		MaxExpiryDays:     365,
		StorageQuotaBytes: 5 << 30,
	},
	PlanPro: {
		Label:             "Pro",
		MaxFileBytes:      5 << 30,
		MaxTextBytes:      10 << 20,
		MaxExpiryDays:     365 * 3,
		StorageQuotaBytes: 20 << 30,
	},
}

// Limits returns the caps for the plan. Unknown plans fall back to the
// anonymous tier, the most restrictive one.
func (p Plan) Limits() PlanLimits {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return planLimits[PlanAnon]
}

// Paid reports whether the plan includes paid features: explicit expiry,
// renewal, and password protection.
func (p Plan) Paid() bool { return p == PlanStarter || p == PlanPro }

// planOf resolves the effective plan of an actor, PlanAnon when nil.
func planOf(acct *Account) Plan {
	if acct == nil {
		return PlanAnon
	}
	return acct.Plan
}

// clipboardMaxLifetime returns the total-lifetime cap for a new clipboard
// drop under the given plan. File drops carry no lifetime cap; their idle
// ceiling is applied at expiry evaluation instead.
func clipboardMaxLifetime(p Plan) time.Duration {
	switch p {
	case PlanAnon:
		return 7 * 24 * time.Hour
	case PlanFree:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}
