package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"openshelf.org/internal/audit"
	"openshelf.org/internal/auth"
	"openshelf.org/internal/borrow"
	"openshelf.org/internal/config"
	"openshelf.org/internal/httpapi"
	"openshelf.org/internal/obs"
	"openshelf.org/internal/queue"
	"openshelf.org/internal/store/pg"
	"openshelf.org/internal/stream"
	"openshelf.org/internal/vault"
)

var version = "1.0.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, "")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.RequireDB(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.RequireAuth(); err != nil {
		log.Fatal(err)
	}

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	tokens, err := auth.NewTokens(cfg.AuthSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("auth tokens: %v", err)
	}
	users := auth.NewPGStore(store.DB().DB)
	authSvc := auth.NewService(users, tokens)

	vaultClient, err := vault.New(cfg)
	if err != nil {
		log.Fatalf("vault client: %v", err)
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := vaultClient.EnsureBuckets(ctx); err != nil {
			log.Printf("ensure buckets: %v", err)
		}
		cancel()
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()

	activity := audit.NewRecorder(store.DB().DB)
	borrows := borrow.NewService(store, store, vaultClient, borrow.WithRecorder(activity))
	feed := stream.New()

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB().DB}, version, httpapi.Deps{
		Auth:     authSvc,
		Users:    users,
		Catalog:  store,
		Reviews:  store,
		Wishlist: store,
		Borrows:  borrows,
		Loans:    store,
		Vault:    vaultClient,
		Activity: activity,
		Jobs:     queue.NewEnqueuer(asynqClient),
		Stream:   feed,
		Limits: httpapi.Limits{
			MaxUploadBytes: cfg.MaxUploadBytes,
			RateBurst:      cfg.RateBurst,
			RatePerSecond:  cfg.RatePerSecond,
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting openshelf-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("stopped")
}
