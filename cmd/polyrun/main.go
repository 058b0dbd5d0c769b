package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/tastythames/polyrun/internal/api"
	"github.com/tastythames/polyrun/internal/config"
	"github.com/tastythames/polyrun/internal/metrics"
	"github.com/tastythames/polyrun/internal/runner"
	"github.com/tastythames/polyrun/internal/runstore"
	"github.com/tastythames/polyrun/internal/scheduler"
	"github.com/tastythames/polyrun/internal/sshclient"
)

func getenv(k, fb string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return fb
}

func main() {
	cfgPath := getenv("POLYRUN_CONFIG", "")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("config: listen=%s data_dir=%s workers=%d profiles=%d", cfg.Listen, cfg.DataDir, cfg.Workers, len(cfg.Profiles))

	sshCfg := sshclient.LoadConfig()
	run := runner.New(runner.SSH(sshclient.New(sshCfg)), cfg.DataDir)

	// 1) store + scheduler
	store := runstore.NewMemStore()
	sched := scheduler.New(scheduler.Options{QueueSize: cfg.QueueSize, Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			scheduler.StartWorker(ctx, id, sched.Jobs(), store, run, cfg.RunTimeout)
		}(i)
	}

	// 2) HTTP
	r := mux.NewRouter()
	api.SetupRoutes(r, api.NewHandler(cfg, store, sched, run, metrics.NewRenderer(store, sched.Stats)))

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	go func() {
		log.Printf("polyrun listening on %s", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	log.Println("shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	sched.Close()
	cancel()
	wg.Wait()
}
