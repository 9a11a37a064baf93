package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"election-portal/api"
	"election-portal/config"
	"election-portal/integrity"
	"election-portal/service"
	"election-portal/storage"

	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env from CWD if present; otherwise use environment as-is
	if _, statErr := os.Stat(".env"); statErr == nil {
		_ = godotenv.Load(".env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Printf("Config loaded: %s", cfg)

	db, err := storage.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	if err := storage.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	store := storage.NewStore(db)

	keys, err := integrity.NewKeyring(cfg.Secret, cfg.RetiredSecrets...)
	if err != nil {
		log.Fatalf("Failed to build keyring: %v", err)
	}
	tokens := integrity.NewTokenCodec(keys, cfg.TokenTTL)
	ledger := integrity.NewLedger(store, keys, tokens)
	verifier := integrity.NewVerifier(store, keys)
	reporter := integrity.NewReporter(store, verifier)

	attestor, err := integrity.NewAttestor(cfg.KeyDir)
	if err != nil {
		log.Fatalf("Failed to setup attestation key: %v", err)
	}
	log.Printf("Report attestation signer: %s", attestor.Address())

	audit := service.NewAuditor(store)
	sessions := service.NewSessionManager(cfg.SessionTimeout)
	auth := service.NewAuthService(store, audit, cfg.MaxLoginTries, cfg.LockoutFor)
	nominations := service.NewNominationService(store, audit)
	voting := service.NewVotingService(store, ledger, audit)
	results := service.NewResultsService(store)

	server := api.NewServer(api.Deps{
		Sessions:    sessions,
		Auth:        auth,
		Nominations: nominations,
		Voting:      voting,
		Results:     results,
		Tokens:      tokens,
		Verifier:    verifier,
		Reporter:    reporter,
		Attestor:    attestor,
		Audit:       audit,
		Store:       store,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	serverChan := make(chan error, 1)
	go func() {
		log.Printf("Starting server on port %d...", cfg.Port)
		serverChan <- http.ListenAndServe(fmt.Sprintf(":%d", cfg.Port), server.Routes())
	}()

	select {
	case err := <-serverChan:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		log.Println("Server shutdown completed")
	}
}
