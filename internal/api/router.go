package api

import (
	"net/http"

	"github.com/example/marketplace-ledger/internal/api/middleware"
	"github.com/example/marketplace-ledger/internal/auth"
)

func NewRouter(handlers *Handlers, jwtService *auth.JWTService, limiter *middleware.RateLimiter) http.Handler {
	mux := http.NewServeMux()

	authenticated := middleware.AuthMiddleware(jwtService)
	protect := func(h http.HandlerFunc, roles ...string) http.Handler {
		var next http.Handler = h
		if len(roles) > 0 {
			next = middleware.RequireRole(roles...)(next)
		}
		if limiter != nil {
			next = limiter.Middleware(next)
		}
		return authenticated(next)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Orders
	mux.Handle("POST /orders", protect(handlers.PlaceOrder, auth.RoleBuyer))
	mux.Handle("GET /orders", protect(handlers.GetOrders))
	mux.Handle("GET /orders/available", protect(handlers.GetAvailableOrders, auth.RoleCourier, auth.RoleAdmin))
	mux.Handle("GET /orders/{id}", protect(handlers.GetOrder))
	mux.Handle("POST /orders/{id}/accept", protect(handlers.AcceptOrder, auth.RoleCourier))
	mux.Handle("POST /orders/{id}/pickup", protect(handlers.PickUpOrder, auth.RoleCourier))
	mux.Handle("POST /orders/{id}/transit", protect(handlers.StartTransit, auth.RoleCourier))
	mux.Handle("POST /orders/{id}/deliver", protect(handlers.DeliverOrder, auth.RoleCourier))
	mux.Handle("POST /orders/{id}/eta", protect(handlers.UpdateETA, auth.RoleCourier))
	mux.Handle("POST /orders/{id}/cancel", protect(handlers.CancelOrder))
	mux.Handle("POST /orders/{id}/refund", protect(handlers.RefundOrder, auth.RoleProducer, auth.RoleAdmin))

	// Wallet
	mux.Handle("POST /wallet", protect(handlers.OpenWallet))
	mux.Handle("GET /wallet", protect(handlers.GetWallet))
	mux.Handle("DELETE /wallet", protect(handlers.ArchiveWallet))
	mux.Handle("GET /wallet/transactions", protect(handlers.GetTransactions))
	mux.Handle("GET /wallet/transactions/{id}", protect(handlers.GetTransaction))
	mux.Handle("POST /wallet/methods", protect(handlers.AddPaymentMethod))
	mux.Handle("POST /wallet/methods/{id}/default", protect(handlers.SetDefaultPaymentMethod))
	mux.Handle("DELETE /wallet/methods/{id}", protect(handlers.RemovePaymentMethod))
	mux.Handle("PUT /wallet/spending-limit", protect(handlers.SetSpendingLimit))
	mux.Handle("PUT /wallet/pin", protect(handlers.SetPIN))
	mux.Handle("POST /wallet/topup", protect(handlers.TopUp))
	mux.Handle("POST /wallet/withdraw", protect(handlers.Withdraw))
	mux.Handle("POST /wallet/pay", protect(handlers.Pay))
	mux.Handle("POST /wallet/rewards/{id}/redeem", protect(handlers.RedeemReward))

	// Notifications
	mux.Handle("GET /inbox", protect(handlers.GetInbox))
	mux.Handle("GET /inbox/unread", protect(handlers.UnreadCount))
	mux.Handle("POST /inbox/{id}/read", protect(handlers.MarkRead))
	mux.Handle("GET /events/stream", protect(handlers.StreamEvents))

	// Admin
	mux.Handle("GET /admin/orders", protect(handlers.GetAllOrders, auth.RoleAdmin))
	mux.Handle("POST /admin/orders/{id}/settle", protect(handlers.SettleOrder, auth.RoleAdmin))
	mux.Handle("POST /admin/rewards", protect(handlers.GrantReward, auth.RoleAdmin))
	mux.Handle("GET /admin/wallets/{id}", protect(handlers.GetWalletByID, auth.RoleAdmin))
	mux.Handle("DELETE /admin/wallets/{id}", protect(handlers.ArchiveWalletByID, auth.RoleAdmin))

	return middleware.Logging(mux)
}
