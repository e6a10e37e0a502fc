package wallet

import (
	"math"
	"math/bits"
)

// Policy holds the fee schedule, cashback rates and tier thresholds.
// Rates are basis points; amounts are minor units.
type Policy struct {
	Currency            string               `yaml:"currency"`
	TopUpFeeBps         map[MethodType]int64 `yaml:"topup_fee_bps"`
	WithdrawFeeBps      int64                `yaml:"withdraw_fee_bps"`
	PromoCashbackBps    int64                `yaml:"promo_cashback_bps"`
	CategoryCashbackBps map[string]int64     `yaml:"category_cashback_bps"`
	PointsDivisor       int64                `yaml:"points_divisor"`
	Tiers               TierThresholds       `yaml:"tiers"`
}

type TierThresholds struct {
	Silver   int64 `yaml:"silver"`
	Gold     int64 `yaml:"gold"`
	Platinum int64 `yaml:"platinum"`
}

func DefaultPolicy() Policy {
	return Policy{
		Currency: "USD",
		TopUpFeeBps: map[MethodType]int64{
			MethodCard:         200,
			MethodMobileWallet: 100,
			MethodBank:         0,
		},
		WithdrawFeeBps:      150,
		PromoCashbackBps:    2000,
		CategoryCashbackBps: map[string]int64{},
		PointsDivisor:       100,
		Tiers: TierThresholds{
			Silver:   100_000,
			Gold:     500_000,
			Platinum: 2_000_000,
		},
	}
}

// bps applies a basis-point rate, rounding down. The product is taken in 128
// bits so it cannot wrap for large amounts.
func bps(amount, rate int64) int64 {
	if amount <= 0 || rate <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(amount), uint64(rate))
	if hi >= 10_000 {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, 10_000)
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

func (p Policy) TopUpFee(method MethodType, amount int64) int64 {
	return bps(amount, p.TopUpFeeBps[method])
}

func (p Policy) WithdrawFee(amount int64) int64 {
	return bps(amount, p.WithdrawFeeBps)
}

// Points is the loyalty accrual for amount, rounded down
func (p Policy) Points(amount int64) int64 {
	if p.PointsDivisor <= 0 || amount <= 0 {
		return 0
	}
	return amount / p.PointsDivisor
}

// Cashback for a purchase. Uncategorised purchases earn nothing; the first
// purchase in a category earns the promotional rate.
func (p Policy) Cashback(amount int64, category string, firstInCategory bool) int64 {
	if category == "" {
		return 0
	}
	if firstInCategory {
		return bps(amount, p.PromoCashbackBps)
	}
	return bps(amount, p.CategoryCashbackBps[category])
}

func (p Policy) TierFor(totalSpent int64) Tier {
	switch {
	case p.Tiers.Platinum > 0 && totalSpent >= p.Tiers.Platinum:
		return TierPlatinum
	case p.Tiers.Gold > 0 && totalSpent >= p.Tiers.Gold:
		return TierGold
	case p.Tiers.Silver > 0 && totalSpent >= p.Tiers.Silver:
		return TierSilver
	default:
		return TierBasic
	}
}
