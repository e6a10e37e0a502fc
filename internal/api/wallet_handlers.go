package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/example/marketplace-ledger/internal/command"
	"github.com/example/marketplace-ledger/internal/domain/wallet"
)

// WalletView is the client-facing shape of an account. The PIN hash and
// the raw transaction log stay server side.
type WalletView struct {
	ID              string                 `json:"id"`
	Currency        string                 `json:"currency"`
	Balance         int64                  `json:"balance"`
	FrozenAmount    int64                  `json:"frozen_amount"`
	Available       int64                  `json:"available"`
	PendingPayouts  int64                  `json:"pending_payouts"`
	LoyaltyPoints   int64                  `json:"loyalty_points"`
	CashbackEarned  int64                  `json:"cashback_earned"`
	Tier            wallet.Tier            `json:"tier"`
	MonthlySpending int64                  `json:"monthly_spending"`
	SpendingLimit   int64                  `json:"spending_limit"`
	TotalSpent      int64                  `json:"total_spent"`
	HasPIN          bool                   `json:"has_pin"`
	Archived        bool                   `json:"archived"`
	PaymentMethods  []wallet.PaymentMethod `json:"payment_methods"`
	Rewards         []wallet.Reward        `json:"rewards"`
	Holds           []wallet.Hold          `json:"holds"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func newWalletView(a *wallet.Account) WalletView {
	v := WalletView{
		ID:              a.ID,
		Currency:        a.Currency,
		Balance:         a.Balance,
		FrozenAmount:    a.FrozenAmount,
		Available:       a.Available(),
		PendingPayouts:  a.PendingPayouts,
		LoyaltyPoints:   a.LoyaltyPoints,
		CashbackEarned:  a.CashbackEarned,
		Tier:            a.Tier,
		MonthlySpending: a.MonthlySpending,
		SpendingLimit:   a.SpendingLimit,
		TotalSpent:      a.TotalSpent,
		HasPIN:          a.PINHash != "",
		Archived:        a.Archived,
		PaymentMethods:  append([]wallet.PaymentMethod{}, a.PaymentMethods...),
		Rewards:         make([]wallet.Reward, 0, len(a.Rewards)),
		Holds:           make([]wallet.Hold, 0, len(a.Holds)),
		UpdatedAt:       a.UpdatedAt,
	}
	for _, r := range a.Rewards {
		v.Rewards = append(v.Rewards, r)
	}
	sort.Slice(v.Rewards, func(i, j int) bool { return v.Rewards[i].ID < v.Rewards[j].ID })
	for _, h := range a.Holds {
		v.Holds = append(v.Holds, h)
	}
	sort.Slice(v.Holds, func(i, j int) bool { return v.Holds[i].CreatedAt.Before(v.Holds[j].CreatedAt) })
	return v
}

func (h *Handlers) writeWallet(w http.ResponseWriter, r *http.Request, accountID string) {
	acct, err := h.wallets.Get(r.Context(), accountID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newWalletView(acct))
}

func (h *Handlers) OpenWallet(w http.ResponseWriter, r *http.Request) {
	var cmd command.OpenWallet
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}

	acct, err := h.cmdHandler.OpenWallet(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newWalletView(acct))
}

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	h.writeWallet(w, r, actor(r).ID)
}

func (h *Handlers) ArchiveWallet(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if err := h.cmdHandler.ArchiveWallet(r.Context(), a, a.ID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetTransactions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.queryHandler.ListTransactions(actor(r).ID))
}

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.queryHandler.GetTransaction(actor(r).ID, r.PathValue("id"))
	if !ok {
		respondError(w, r, wallet.ErrTransactionNotFound)
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

// Payment methods

func (h *Handlers) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var cmd command.AddPaymentMethod
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}

	m, err := h.cmdHandler.AddPaymentMethod(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (h *Handlers) SetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	if err := h.cmdHandler.SetDefaultPaymentMethod(r.Context(), actor(r), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RemovePaymentMethod(w http.ResponseWriter, r *http.Request) {
	if err := h.cmdHandler.RemovePaymentMethod(r.Context(), actor(r), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SetSpendingLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit int64 `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.cmdHandler.SetSpendingLimit(r.Context(), actor(r), req.Limit); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SetPIN(w http.ResponseWriter, r *http.Request) {
	var cmd command.SetPIN
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.cmdHandler.SetPIN(r.Context(), actor(r), cmd); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Money movements

func (h *Handlers) TopUp(w http.ResponseWriter, r *http.Request) {
	var cmd command.TopUp
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}
	cmd.TransactionID = idempotencyKey(r, cmd.TransactionID)

	receipt, err := h.cmdHandler.TopUp(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var cmd command.Withdraw
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}
	cmd.TransactionID = idempotencyKey(r, cmd.TransactionID)

	receipt, err := h.cmdHandler.Withdraw(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, receipt)
}

func (h *Handlers) Pay(w http.ResponseWriter, r *http.Request) {
	var cmd command.Pay
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}
	cmd.TransactionID = idempotencyKey(r, cmd.TransactionID)

	receipt, err := h.cmdHandler.Pay(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

func (h *Handlers) RedeemReward(w http.ResponseWriter, r *http.Request) {
	var cmd command.RedeemReward
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}
	cmd.RewardID = r.PathValue("id")
	cmd.TransactionID = idempotencyKey(r, cmd.TransactionID)

	receipt, err := h.cmdHandler.RedeemReward(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}
