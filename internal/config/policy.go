package config

import (
	"fmt"
	"os"

	"github.com/example/marketplace-ledger/internal/domain/wallet"
	"gopkg.in/yaml.v3"
)

// LoadPolicy overlays the YAML file at path on the default ledger policy.
// An empty path returns the defaults.
func LoadPolicy(path string) (wallet.Policy, error) {
	policy := wallet.DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return wallet.Policy{}, fmt.Errorf("load ledger policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return wallet.Policy{}, fmt.Errorf("parse ledger policy %s: %w", path, err)
	}
	if err := ValidatePolicy(policy); err != nil {
		return wallet.Policy{}, fmt.Errorf("ledger policy %s: %w", path, err)
	}
	return policy, nil
}

const maxBps = 10_000

func ValidatePolicy(p wallet.Policy) error {
	if p.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	for method, rate := range p.TopUpFeeBps {
		if !method.Valid() {
			return fmt.Errorf("unknown payment method %q in topup_fee_bps", method)
		}
		if rate < 0 || rate > maxBps {
			return fmt.Errorf("topup fee for %s out of range: %d bps", method, rate)
		}
	}
	if p.WithdrawFeeBps < 0 || p.WithdrawFeeBps > maxBps {
		return fmt.Errorf("withdraw fee out of range: %d bps", p.WithdrawFeeBps)
	}
	if p.PromoCashbackBps < 0 || p.PromoCashbackBps > maxBps {
		return fmt.Errorf("promo cashback out of range: %d bps", p.PromoCashbackBps)
	}
	for category, rate := range p.CategoryCashbackBps {
		if rate < 0 || rate > maxBps {
			return fmt.Errorf("cashback for %s out of range: %d bps", category, rate)
		}
	}
	if p.PointsDivisor < 0 {
		return fmt.Errorf("points_divisor must not be negative")
	}
	t := p.Tiers
	if t.Silver < 0 || t.Gold < t.Silver || t.Platinum < t.Gold {
		return fmt.Errorf("tier thresholds must ascend: silver %d, gold %d, platinum %d", t.Silver, t.Gold, t.Platinum)
	}
	return nil
}
