package pricing

import "context"

// Static is a price resolver with a fixed pair, used for offline runs
// and tests.
type Static struct {
	Prices TierPrices
}

// Resolve returns the fixed pair.
func (s Static) Resolve(_ context.Context) (TierPrices, error) {
	return s.Prices, nil
}
