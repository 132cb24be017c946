package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"signalledger/src/model"
)

// Policy rejection errors. The caller decides whether to retry with a
// smaller size; nothing here is transient.
var (
	ErrAutoStopActive           = errors.New("auto-stop is active for user")
	ErrConcurrencyLimitExceeded = errors.New("concurrent position limit exceeded")
	ErrExposureLimitExceeded    = errors.New("exposure limit exceeded")
)

// Admit validates a proposed execution of the given USD size against the
// user's risk profile. pendingReservedUSD is the total size of the user's
// not-yet-filled executions, computed in the same transaction, so that
// concurrent admissions account cumulatively before any fill lands.
//
// The checks read the profile as-is; callers must hold the profile row lock
// when admitting inside the commit path so the last writer always sees the
// authoritative prior state.
func Admit(
	profile *model.RiskProfile,
	pendingReservedUSD decimal.Decimal,
	proposedUSD decimal.Decimal,
) error {

	if profile.AutoStopTrading {
		return ErrAutoStopActive
	}

	if profile.ActivePositionsCount >= profile.MaxConcurrentSignals {
		return ErrConcurrencyLimitExceeded
	}

	committed := profile.CurrentExposureUSD.Add(pendingReservedUSD)
	if committed.Add(proposedUSD).GreaterThan(profile.MaxPositionSizeUSD) {
		return ErrExposureLimitExceeded
	}

	return nil
}
