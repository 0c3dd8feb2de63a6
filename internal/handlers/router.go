package handlers

import (
	"net/http"

	"coopledger/internal/config"
	"coopledger/internal/db"
	"coopledger/internal/metrics"
	"coopledger/internal/middleware"
	"coopledger/internal/store"
	"coopledger/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	reconcileDB  store.Selecter
	txRunner     db.TxRunner
	cfg          config.Config
	users        UserStore
	wallets      WalletReadStore
	ledger       LedgerReadStore
	transactions TransactionStore
	shares       ShareReadStore
	loans        LoanReadStore
	admin        AdminStore
	audit        AuditStore
	walletSvc    WalletService
	shareSvc     ShareService
	loanSvc      LoanService
	hub          *websocket.Hub
}

func New(reconcileDB store.Selecter, txRunner db.TxRunner, cfg config.Config, users UserStore, wallets WalletReadStore, ledger LedgerReadStore, transactions TransactionStore, shares ShareReadStore, loans LoanReadStore, admin AdminStore, audit AuditStore, walletSvc WalletService, shareSvc ShareService, loanSvc LoanService, hub *websocket.Hub) *Handler {
	return &Handler{
		reconcileDB:  reconcileDB,
		txRunner:     txRunner,
		cfg:          cfg,
		users:        users,
		wallets:      wallets,
		ledger:       ledger,
		transactions: transactions,
		shares:       shares,
		loans:        loans,
		admin:        admin,
		audit:        audit,
		walletSvc:    walletSvc,
		shareSvc:     shareSvc,
		loanSvc:      loanSvc,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(metrics.Middleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.Route("/wallets", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/", h.ListWallets)
		r.Get("/{kind}/entries", h.ListWalletEntries)
		r.Post("/withdraw", h.Withdraw)
		r.Post("/transfer", h.Transfer)
	})
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/transactions", h.ListTransactions)

	router.Route("/shares", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/pool", h.GetSharePool)
		r.Post("/buy", h.BuyShares)
		r.Post("/sell", h.SellShares)
		r.Get("/transactions", h.ListShareTransactions)
	})

	router.Route("/loans", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/apply", h.ApplyLoan)
		r.Get("/", h.ListLoans)
		r.Get("/terms/{method}", h.LoanTerms)
		r.Get("/{id}", h.GetLoan)
		r.Get("/{id}/schedule", h.LoanSchedule)
		r.Post("/{id}/repay", h.RepayLoan)
	})

	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/users/username/{username}", h.GetUserByUsername)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/users/email/{email}", h.GetUserByEmail)
	router.Get("/ws/balances", h.WSBalances)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, "CanManageWallets")).Post("/wallets/deposit", h.AdminDeposit)
		r.With(middleware.RequireAdmin(h.admin, "CanManageWallets")).Post("/wallets/bulk-deposit", h.AdminBulkDeposit)
		r.With(middleware.RequireAdmin(h.admin, "CanSettleShares")).Get("/shares/pending", h.ListPendingSales)
		r.With(middleware.RequireAdmin(h.admin, "CanSettleShares")).Post("/shares/{id}/approve", h.ApproveSale)
		r.With(middleware.RequireAdmin(h.admin, "CanSettleShares")).Post("/shares/{id}/reject", h.RejectSale)
		r.With(middleware.RequireAdmin(h.admin, "CanManageLoans")).Post("/loans/{id}/transition", h.TransitionLoan)
		r.With(middleware.RequireAdmin(h.admin, "CanViewTransactions")).Get("/transactions", h.AdminListTransactions)
		r.With(middleware.RequireAdmin(h.admin, "CanViewTransactions")).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, "CanViewTransactions")).Get("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", metrics.Handler())
	return router
}
