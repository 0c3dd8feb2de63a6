package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coopledger/internal/config"
	"coopledger/internal/db"
	"coopledger/internal/handlers"
	"coopledger/internal/loan"
	"coopledger/internal/services"
	"coopledger/internal/store"
	"coopledger/internal/websocket"

	"github.com/redis/go-redis/v9"
)

// logNotifier writes loan lifecycle changes to the process log. A future
// notification channel (email, push) can replace it without touching the
// loan service.
type logNotifier struct{}

func (logNotifier) LoanStatusChanged(ownerID, loanID string, from, to loan.Status) {
	log.Printf("loan %s (owner %s) moved %s -> %s", loanID, ownerID, from, to)
}

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	wallets := store.NewWalletStore(database)
	ledger := store.NewLedgerStore(database)
	transactions := store.NewTransactionStore(database)
	idempotency := store.NewIdempotencyStore(database)
	shares := store.NewShareStore(database)
	loans := store.NewLoanStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()

	var shareReads handlers.ShareReadStore = shares
	var invalidator services.PoolInvalidator
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cached := store.NewCachedShareStore(shares, rdb, cfg.Shares.PriceCacheTTL)
		shareReads = cached
		invalidator = cached
	}

	walletSvc := services.NewWalletService(txRunner, wallets, ledger, transactions, idempotency, audit, hub, cfg.Wallet)
	shareSvc := services.NewShareService(txRunner, shares, wallets, ledger, transactions, audit, hub, invalidator, cfg.Shares.PoolID, cfg.Wallet.Currency, cfg.Shares)
	loanSvc := services.NewLoanService(txRunner, loans, wallets, ledger, transactions, audit, hub, logNotifier{}, cfg.Wallet.Currency, cfg.Loans)

	handler := handlers.New(database, txRunner, cfg, users, wallets, ledger, transactions, shareReads, loans, admin, audit, walletSvc, shareSvc, loanSvc, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("coopledger API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
