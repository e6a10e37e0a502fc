package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/example/marketplace-ledger/internal/apperr"
	"github.com/google/uuid"
)

type Reward struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	PointCost     int64      `json:"point_cost"`
	MonetaryValue int64      `json:"monetary_value"`
	ExpiresAt     time.Time  `json:"expires_at"` // zero means no expiry
	Redeemed      bool       `json:"redeemed"`
	RedeemedAt    *time.Time `json:"redeemed_at,omitempty"`
}

func (r Reward) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

type RedeemRequest struct {
	AccountID string
	RewardID  string
	TxID      string
}

// GrantReward makes a reward available to the account
func (s *Service) GrantReward(ctx context.Context, accountID string, reward Reward) (*Reward, error) {
	if reward.PointCost < 0 || reward.MonetaryValue < 0 {
		return nil, fmt.Errorf("%w: reward cost and value must not be negative", apperr.ErrInvalidAmount)
	}
	if reward.ID == "" {
		reward.ID = uuid.New().String()
	}
	reward.Redeemed = false
	reward.RedeemedAt = nil

	err := s.mutate(ctx, accountID, func(acct *Account, now time.Time, b *batch) error {
		if _, exists := acct.Rewards[reward.ID]; exists {
			return fmt.Errorf("%w: reward %s already granted", apperr.ErrConflict, reward.ID)
		}
		b.add(acct.ID, EventRewardGranted, RewardGranted{AccountID: acct.ID, Reward: reward, GrantedAt: now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

// RedeemReward spends loyalty points on a reward and credits its monetary
// value. Redemption is irreversible.
func (s *Service) RedeemReward(ctx context.Context, req RedeemRequest) (*Receipt, error) {
	txID := txIDOrNew(req.TxID)

	unlock := s.locks.LockMany(req.AccountID, claimKey(txID))
	defer unlock()

	acct, err := s.loadActive(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if r, err := acct.replay(txID, OpRedeem, 0, ""); r != nil || err != nil {
		if r != nil && r.Transaction.RewardRef != req.RewardID {
			return nil, fmt.Errorf("%w: %s redeemed reward %s", apperr.ErrDuplicateTransaction, txID, r.Transaction.RewardRef)
		}
		return r, err
	}
	var b batch
	if err := s.claim(&b, acct.ID, txID, OpRedeem); err != nil {
		return nil, err
	}

	reward, ok := acct.Rewards[req.RewardID]
	if !ok {
		return nil, ErrRewardNotFound
	}
	now := s.now()
	switch {
	case reward.Redeemed:
		return nil, apperr.ErrRewardAlreadyRedeemed
	case reward.expired(now):
		return nil, fmt.Errorf("%w: expired at %s", apperr.ErrRewardExpired, reward.ExpiresAt.Format(time.RFC3339))
	case acct.LoyaltyPoints < reward.PointCost:
		return nil, fmt.Errorf("%w: need %d, have %d", apperr.ErrInsufficientPoints, reward.PointCost, acct.LoyaltyPoints)
	}

	tx := s.newTransaction(acct, txID, TypeReward, OpRedeem, DirectionCredit, reward.MonetaryValue, now)
	tx.RewardRef = reward.ID

	b.add(acct.ID, EventRewardRedeemed, LedgerEntry{Transaction: tx, Points: reward.PointCost, RewardID: reward.ID})
	if err := s.commit(ctx, &b, acct); err != nil {
		return nil, err
	}
	return acct.receipt(txID), nil
}
