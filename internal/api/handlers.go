package api

import (
	"context"
	"net/http"

	"github.com/example/marketplace-ledger/internal/api/middleware"
	"github.com/example/marketplace-ledger/internal/command"
	"github.com/example/marketplace-ledger/internal/dispatch"
	"github.com/example/marketplace-ledger/internal/domain/order"
	"github.com/example/marketplace-ledger/internal/domain/wallet"
	"github.com/example/marketplace-ledger/internal/query"
)

// WalletReader loads the current state of a wallet
type WalletReader interface {
	Get(ctx context.Context, accountID string) (*wallet.Account, error)
}

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	wallets      WalletReader
	hub          *dispatch.Hub
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, wallets WalletReader, hub *dispatch.Hub) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		wallets:      wallets,
		hub:          hub,
	}
}

// actor returns the caller; routes behind AuthMiddleware always have one
func actor(r *http.Request) order.Actor {
	a, _ := middleware.ActorFromContext(r.Context())
	return a
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.PlaceOrder
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}

	o, err := h.cmdHandler.PlaceOrder(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.queryHandler.ListOrdersByUser(actor(r).ID))
}

func (h *Handlers) GetAvailableOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.queryHandler.ListAvailableOrders())
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.queryHandler.GetOrder(r.PathValue("id"))
	if !ok {
		respondError(w, r, order.ErrOrderNotFound)
		return
	}

	// Parties see their own orders, couriers see unclaimed ones, admins see all
	a := actor(r)
	visible := o.Involves(a.ID) || a.Role == order.RoleAdmin ||
		(a.Role == order.RoleCourier && o.CourierID == "" && o.Status == string(order.StatusPending))
	if !visible {
		respondError(w, r, order.ErrOrderNotFound)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// transitionHandler adapts an order transition that only needs the order id
func (h *Handlers) transitionHandler(fn func(context.Context, order.Actor, string) (*order.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := fn(r.Context(), actor(r), r.PathValue("id"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, o)
	}
}

func (h *Handlers) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.cmdHandler.AcceptOrder)(w, r)
}

func (h *Handlers) PickUpOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.cmdHandler.PickUpOrder)(w, r)
}

func (h *Handlers) StartTransit(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.cmdHandler.StartTransit)(w, r)
}

func (h *Handlers) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.cmdHandler.DeliverOrder)(w, r)
}

func (h *Handlers) SettleOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(h.cmdHandler.SettleOrder)(w, r)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.CancelOrder
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}
	cmd.OrderID = r.PathValue("id")

	o, err := h.cmdHandler.CancelOrder(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) UpdateETA(w http.ResponseWriter, r *http.Request) {
	var cmd command.UpdateETA
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}
	cmd.OrderID = r.PathValue("id")

	o, err := h.cmdHandler.UpdateETA(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) RefundOrder(w http.ResponseWriter, r *http.Request) {
	var cmd command.RefundOrder
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}
	cmd.OrderID = r.PathValue("id")
	cmd.TransactionID = idempotencyKey(r, cmd.TransactionID)

	receipt, err := h.cmdHandler.RefundOrder(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

// Admin Handlers

func (h *Handlers) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.queryHandler.ListAllOrders())
}

func (h *Handlers) GrantReward(w http.ResponseWriter, r *http.Request) {
	var cmd command.GrantReward
	if err := decodeJSON(r, &cmd); err != nil {
		respondError(w, r, err)
		return
	}

	reward, err := h.cmdHandler.GrantReward(r.Context(), actor(r), cmd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, reward)
}

func (h *Handlers) GetWalletByID(w http.ResponseWriter, r *http.Request) {
	h.writeWallet(w, r, r.PathValue("id"))
}

func (h *Handlers) ArchiveWalletByID(w http.ResponseWriter, r *http.Request) {
	if err := h.cmdHandler.ArchiveWallet(r.Context(), actor(r), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
