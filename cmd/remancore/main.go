package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remanflow/capacity"
	"remanflow/config"
	"remanflow/engine"
	"remanflow/messaging"
	"remanflow/metrics"
	"remanflow/store"
	"remanflow/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "remancore.yaml", "path to config file")
	writeDefaults := flag.Bool("write-config", false, "write the default config to -config and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("remancore", Version)
		return
	}
	if *writeDefaults {
		if err := config.Defaults().Save(*configPath); err != nil {
			log.Fatalf("write config: %v", err)
		}
		fmt.Println("wrote", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("remancore: database open (%s)", cfg.Database.Driver)

	// Redis
	var cache capacity.Cache
	redisStore := capacity.NewRedisStore(&cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisStore.Ping(ctx); err != nil {
		log.Printf("remancore: redis not available (%v), running without cache", err)
	} else {
		log.Printf("remancore: redis connected (%s)", cfg.Redis.Address)
		cache = redisStore
	}
	cancel()
	defer redisStore.Close()

	// Provider capacity
	capacityMgr := capacity.NewManager(db, cache)
	if providers, err := db.ListProviders(); err == nil {
		ids := make([]string, len(providers))
		for i, p := range providers {
			ids[i] = p.ID
		}
		if err := capacityMgr.SyncRedisFromSQL(ids...); err != nil {
			log.Printf("remancore: capacity sync: %v", err)
		}
	}

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging, cfg.ServiceID)
	if err := msgClient.Connect(); err != nil {
		log.Printf("remancore: messaging connect failed (%v)", err)
	} else {
		log.Printf("remancore: messaging connected (%s)", cfg.Messaging.Backend)
	}
	defer msgClient.Close()

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Capacity:   capacityMgr,
		MsgClient:  msgClient,
		Metrics:    metrics.New(cfg.ServiceID),
	})
	if err := eng.Start(); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer eng.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("remancore: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("remancore: ready")

	// SIGHUP reloads messaging settings; SIGINT/SIGTERM shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			break
		}
		if err := eng.ReloadMessaging(); err != nil {
			log.Printf("remancore: reload messaging: %v", err)
		}
	}

	log.Printf("remancore: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("remancore: stopped")
}
