package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"openshelf.org/internal/config"
	"openshelf.org/internal/obs"
	"openshelf.org/internal/queue"
	"openshelf.org/internal/store/pg"
	"openshelf.org/internal/vault"
	"openshelf.org/internal/worker"
)

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.RequireDB(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	vaultClient, err := vault.New(cfg)
	if err != nil {
		log.Fatalf("vault client: %v", err)
	}

	redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: 5,
		Queues:      map[string]int{"default": 1},
	})

	processor := worker.NewProcessor(store, store, vaultClient)

	// The sweep is self-scheduled: this process enqueues its own periodic
	// task so a separate scheduler deployment is not needed.
	client := asynq.NewClient(redis)
	defer client.Close()
	go runSweepTicker(ctx, client, cfg.SweepInterval)

	log.Printf("starting openshelf-worker, sweep every %s", cfg.SweepInterval)
	if err := srv.Start(processor.Handler()); err != nil {
		log.Fatalf("start worker: %v", err)
	}

	<-ctx.Done()
	log.Println("shutting down")
	srv.Shutdown()
	log.Println("stopped")
}

func runSweepTicker(ctx context.Context, client *asynq.Client, every time.Duration) {
	if every <= 0 {
		every = 15 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	enqueue := func() {
		if err := queue.EnqueueExpireSweep(ctx, client); err != nil {
			log.Printf("enqueue sweep: %v", err)
		}
		if err := queue.EnqueueReconcile(ctx, client); err != nil {
			log.Printf("enqueue reconcile: %v", err)
		}
	}

	// Run once at startup so overdue and orphaned loans are not left
	// waiting for the first tick after a restart.
	enqueue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}
