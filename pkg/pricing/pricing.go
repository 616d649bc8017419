// Package pricing provides per-GB-month EBS snapshot storage prices and
// the 90-day cost model used to compare the standard and archive tiers.
package pricing

import (
	"encoding/json"
	"fmt"
	"os"
)

// TierPrices holds the per-GB-month USD prices for both snapshot tiers in
// one region. A TierPrices value is resolved once at job start and is
// immutable for the lifetime of the job.
type TierPrices struct {
	// StandardPerGBMonth is the standard-tier price (USD per GB-month).
	StandardPerGBMonth float64 `json:"standard_per_gb_month" yaml:"standard_per_gb_month"`
	// ArchivePerGBMonth is the archive-tier price (USD per GB-month).
	ArchivePerGBMonth float64 `json:"archive_per_gb_month" yaml:"archive_per_gb_month"`
}

// DefaultUSEast1Prices returns the default snapshot pricing for
// us-east-1 (as of 2025). These are approximate prices and should be
// refreshed from the pricing service for billing-adjacent estimates.
func DefaultUSEast1Prices() TierPrices {
	return TierPrices{
		StandardPerGBMonth: 0.05,
		ArchivePerGBMonth:  0.0125,
	}
}

// LoadPrices loads tier prices from a JSON file.
func LoadPrices(path string) (TierPrices, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TierPrices{}, fmt.Errorf("read price table: %w", err)
	}

	var tp TierPrices
	if err := json.Unmarshal(data, &tp); err != nil {
		return TierPrices{}, fmt.Errorf("parse price table: %w", err)
	}
	if tp.StandardPerGBMonth <= 0 || tp.ArchivePerGBMonth <= 0 {
		return TierPrices{}, fmt.Errorf("price table %s: prices must be positive", path)
	}

	return tp, nil
}

// SavePrices saves tier prices to a JSON file.
func SavePrices(path string, tp TierPrices) error {
	data, err := json.MarshalIndent(tp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal price table: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write price table: %w", err)
	}

	return nil
}

const bytesPerGB = 1024 * 1024 * 1024

// retentionMonths is the archive tier's 90-day minimum retention
// expressed in 30-day months; both tiers are priced over the same
// window so the estimates compare like for like.
const retentionMonths = 3

// BytesToGB converts a byte count to binary gigabytes (1 GiB = 2^30
// bytes), the unit the pricing service quotes against.
func BytesToGB(b int64) float64 {
	return float64(b) / bytesPerGB
}

// Cost90Days estimates the 90-day storage cost in USD for sizeBytes at
// the given per-GB-month price. Non-decreasing in size; zero size costs
// zero.
func Cost90Days(sizeBytes int64, perGBMonth float64) float64 {
	if sizeBytes <= 0 {
		return 0
	}
	return BytesToGB(sizeBytes) * perGBMonth * retentionMonths
}

// FormatCost formats a USD amount with precision scaled to magnitude.
func FormatCost(dollars float64) string {
	switch {
	case dollars == 0:
		return "$0.00"
	case dollars < 0.01:
		return fmt.Sprintf("$%.6f", dollars)
	case dollars < 1:
		return fmt.Sprintf("$%.4f", dollars)
	case dollars < 100:
		return fmt.Sprintf("$%.2f", dollars)
	default:
		return fmt.Sprintf("$%.0f", dollars)
	}
}
