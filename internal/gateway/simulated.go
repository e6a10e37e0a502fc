package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// declinedSuffix marks identifiers the simulated network refuses, in the
// manner of test card numbers.
const declinedSuffix = "0000"

type simulatedPayout struct {
	req         PayoutRequest
	submittedAt time.Time
}

// SimulatedGateway settles everything locally. Payouts stay processing for
// settleAfter and then succeed unless marked with FailPayout.
type SimulatedGateway struct {
	mu          sync.Mutex
	charges     map[string]ChargeRequest
	payouts     map[string]*simulatedPayout
	failures    map[string]string
	outage      bool
	settleAfter time.Duration
	now         func() time.Time
}

func NewSimulatedGateway(settleAfter time.Duration) *SimulatedGateway {
	return &SimulatedGateway{
		charges:     make(map[string]ChargeRequest),
		payouts:     make(map[string]*simulatedPayout),
		failures:    make(map[string]string),
		settleAfter: settleAfter,
		now:         time.Now,
	}
}

// WithClock replaces the time source used to age payouts
func (g *SimulatedGateway) WithClock(now func() time.Time) *SimulatedGateway {
	g.now = now
	return g
}

// FailPayout makes the payout with this reference fail with reason once it settles
func (g *SimulatedGateway) FailPayout(reference, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[reference] = reason
}

// SetOutage makes every call return ErrUnavailable until cleared
func (g *SimulatedGateway) SetOutage(down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outage = down
}

// Charged returns the charge recorded under reference
func (g *SimulatedGateway) Charged(reference string) (ChargeRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.charges[reference]
	return req, ok
}

func (g *SimulatedGateway) VerifyMethod(_ context.Context, req VerifyRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outage {
		return ErrUnavailable
	}
	if strings.HasSuffix(req.Identifier, declinedSuffix) {
		return fmt.Errorf("%w: method %s", ErrDeclined, req.MethodID)
	}
	return nil
}

func (g *SimulatedGateway) Charge(_ context.Context, req ChargeRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outage {
		return ErrUnavailable
	}
	if _, done := g.charges[req.Reference]; done {
		return nil
	}
	g.charges[req.Reference] = req
	log.Printf("[Gateway] Charged %d %s from method %s (%s)", req.Amount, req.Currency, req.MethodID, req.Reference)
	return nil
}

func (g *SimulatedGateway) Payout(_ context.Context, req PayoutRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outage {
		return ErrUnavailable
	}
	if _, done := g.payouts[req.Reference]; done {
		return nil
	}
	g.payouts[req.Reference] = &simulatedPayout{req: req, submittedAt: g.now()}
	log.Printf("[Gateway] Payout of %d %s to method %s submitted (%s)", req.Amount, req.Currency, req.MethodID, req.Reference)
	return nil
}

func (g *SimulatedGateway) PayoutStatus(_ context.Context, reference string) (PayoutStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outage {
		return PayoutStatus{}, ErrUnavailable
	}
	p, ok := g.payouts[reference]
	if !ok {
		return PayoutStatus{}, ErrUnknownRef
	}
	if g.now().Sub(p.submittedAt) < g.settleAfter {
		return PayoutStatus{State: PayoutProcessing}, nil
	}
	if reason, failed := g.failures[reference]; failed {
		return PayoutStatus{State: PayoutFailed, Reason: reason}, nil
	}
	return PayoutStatus{State: PayoutSucceeded}, nil
}
