package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/marketplace-ledger/internal/apperr"
	"github.com/google/uuid"
)

type MethodType string

const (
	MethodMobileWallet MethodType = "mobile_wallet"
	MethodBank         MethodType = "bank"
	MethodCard         MethodType = "card"
)

func (t MethodType) Valid() bool {
	switch t {
	case MethodMobileWallet, MethodBank, MethodCard:
		return true
	}
	return false
}

// Limits caps the amount moved through a payment method; zero means unlimited
type Limits struct {
	PerTransaction int64 `json:"per_transaction"`
	Daily          int64 `json:"daily"`
	Monthly        int64 `json:"monthly"`
}

type PaymentMethod struct {
	ID         string     `json:"id"`
	Type       MethodType `json:"type"`
	Identifier string     `json:"identifier"`
	Verified   bool       `json:"verified"`
	IsDefault  bool       `json:"is_default"`
	Limits     Limits     `json:"limits"`
	AddedAt    time.Time  `json:"added_at"`
}

type AddPaymentMethodRequest struct {
	Type       MethodType
	Identifier string
	Limits     Limits
}

// MaskIdentifier keeps the last four characters of an account or card number
func MaskIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if len(identifier) <= 4 {
		return identifier
	}
	return strings.Repeat("*", len(identifier)-4) + identifier[len(identifier)-4:]
}

func (a *Account) method(id string) (PaymentMethod, error) {
	for _, m := range a.PaymentMethods {
		if (id == "" && m.IsDefault) || (id != "" && m.ID == id) {
			return m, nil
		}
	}
	return PaymentMethod{}, ErrPaymentMethodNotFound
}

func (a *Account) setDefaultMethod(id string) {
	for i := range a.PaymentMethods {
		a.PaymentMethods[i].IsDefault = a.PaymentMethods[i].ID == id
	}
}

func (a *Account) applyMethodChange(eventType, id string) {
	switch eventType {
	case EventPaymentMethodVerified:
		for i := range a.PaymentMethods {
			if a.PaymentMethods[i].ID == id {
				a.PaymentMethods[i].Verified = true
			}
		}
	case EventDefaultPaymentMethodSet:
		a.setDefaultMethod(id)
	case EventPaymentMethodRemoved:
		wasDefault := false
		kept := a.PaymentMethods[:0]
		for _, m := range a.PaymentMethods {
			if m.ID == id {
				wasDefault = m.IsDefault
				continue
			}
			kept = append(kept, m)
		}
		a.PaymentMethods = kept
		if wasDefault && len(kept) > 0 {
			a.setDefaultMethod(kept[0].ID)
		}
	}
}

// methodUsage sums live top-ups and payouts through the method since the given time
func (a *Account) methodUsage(methodID string, since time.Time) int64 {
	var used int64
	for _, tx := range a.Transactions {
		if tx.PaymentMethodRef != methodID || tx.Timestamp.Before(since) {
			continue
		}
		if tx.Status == StatusFailed || tx.Status == StatusCancelled {
			continue
		}
		used += tx.Amount
	}
	return used
}

func (a *Account) checkMethodLimits(m PaymentMethod, amount int64, now time.Time) error {
	l := m.Limits
	if l.PerTransaction > 0 && amount > l.PerTransaction {
		return fmt.Errorf("%w: %d over per-transaction limit %d", apperr.ErrLimitExceeded, amount, l.PerTransaction)
	}
	now = now.UTC()
	if l.Daily > 0 {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if used := a.methodUsage(m.ID, day); used+amount > l.Daily {
			return fmt.Errorf("%w: daily limit %d reached (%d used)", apperr.ErrLimitExceeded, l.Daily, used)
		}
	}
	if l.Monthly > 0 {
		month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		if used := a.methodUsage(m.ID, month); used+amount > l.Monthly {
			return fmt.Errorf("%w: monthly limit %d reached (%d used)", apperr.ErrLimitExceeded, l.Monthly, used)
		}
	}
	return nil
}

// AddPaymentMethod registers an unverified method. The first method becomes the default.
func (s *Service) AddPaymentMethod(ctx context.Context, accountID string, req AddPaymentMethodRequest) (*PaymentMethod, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method type %q", apperr.ErrInvalidInput, req.Type)
	}
	if strings.TrimSpace(req.Identifier) == "" {
		return nil, fmt.Errorf("%w: payment method identifier is required", apperr.ErrInvalidInput)
	}
	if req.Limits.PerTransaction < 0 || req.Limits.Daily < 0 || req.Limits.Monthly < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", apperr.ErrInvalidAmount)
	}

	var added PaymentMethod
	err := s.mutate(ctx, accountID, func(acct *Account, now time.Time, b *batch) error {
		added = PaymentMethod{
			ID:         uuid.New().String(),
			Type:       req.Type,
			Identifier: MaskIdentifier(req.Identifier),
			IsDefault:  len(acct.PaymentMethods) == 0,
			Limits:     req.Limits,
			AddedAt:    now,
		}
		b.add(acct.ID, EventPaymentMethodAdded, PaymentMethodAdded{AccountID: acct.ID, Method: added, AddedAt: now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// VerifyPaymentMethod marks a method verified; verifying twice is a no-op
func (s *Service) VerifyPaymentMethod(ctx context.Context, accountID, methodID string) error {
	return s.changeMethod(ctx, accountID, methodID, EventPaymentMethodVerified, func(m PaymentMethod) bool { return m.Verified })
}

func (s *Service) SetDefaultPaymentMethod(ctx context.Context, accountID, methodID string) error {
	return s.changeMethod(ctx, accountID, methodID, EventDefaultPaymentMethodSet, func(m PaymentMethod) bool { return m.IsDefault })
}

// RemovePaymentMethod drops a method; when it was the default the oldest remaining one takes over
func (s *Service) RemovePaymentMethod(ctx context.Context, accountID, methodID string) error {
	return s.changeMethod(ctx, accountID, methodID, EventPaymentMethodRemoved, func(PaymentMethod) bool { return false })
}

func (s *Service) changeMethod(ctx context.Context, accountID, methodID, eventType string, done func(PaymentMethod) bool) error {
	if methodID == "" {
		return ErrPaymentMethodNotFound
	}
	return s.mutate(ctx, accountID, func(acct *Account, now time.Time, b *batch) error {
		m, err := acct.method(methodID)
		if err != nil {
			return err
		}
		if done(m) {
			return nil
		}
		b.add(acct.ID, eventType, PaymentMethodChanged{AccountID: acct.ID, MethodID: methodID, ChangedAt: now})
		return nil
	})
}

// SetSpendingLimit sets the monthly spending cap; zero removes it
func (s *Service) SetSpendingLimit(ctx context.Context, accountID string, limit int64) error {
	if limit < 0 {
		return fmt.Errorf("%w: spending limit must not be negative", apperr.ErrInvalidAmount)
	}
	return s.mutate(ctx, accountID, func(acct *Account, now time.Time, b *batch) error {
		b.add(acct.ID, EventSpendingLimitSet, SpendingLimitSet{AccountID: acct.ID, Limit: limit, SetAt: now})
		return nil
	})
}

// SetPIN stores a withdrawal PIN hash produced by auth.HashPIN
func (s *Service) SetPIN(ctx context.Context, accountID, pinHash string) error {
	if pinHash == "" {
		return fmt.Errorf("%w: PIN hash is required", apperr.ErrInvalidInput)
	}
	return s.mutate(ctx, accountID, func(acct *Account, now time.Time, b *batch) error {
		b.add(acct.ID, EventPINSet, PINSet{AccountID: acct.ID, PINHash: pinHash, SetAt: now})
		return nil
	})
}
