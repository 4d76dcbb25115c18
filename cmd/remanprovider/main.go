package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remanflow/capacity"
	"remanflow/config"
	"remanflow/messaging"
	"remanflow/provider"
	"remanflow/store"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "remanprovider.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("remanprovider", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	profile, err := provider.ProfileFromConfig(cfg.Provider)
	if err != nil {
		log.Fatalf("provider config: %v", err)
	}

	// Database (shared registry and bookings)
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Redis
	var cache capacity.Cache
	redisStore := capacity.NewRedisStore(&cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisStore.Ping(ctx); err != nil {
		log.Printf("remanprovider: redis not available (%v), running without cache", err)
	} else {
		cache = redisStore
	}
	cancel()
	defer redisStore.Close()

	// Messaging client
	source := cfg.ServiceID
	if source == "" || source == config.Defaults().ServiceID {
		source = "provider-" + profile.Provider.ID
	}
	cfg.Messaging.ScopeIdentity("remanprovider-" + profile.Provider.ID)
	msgClient := messaging.NewClient(&cfg.Messaging, source)
	if err := msgClient.Connect(); err != nil {
		log.Fatalf("messaging connect: %v", err)
	}
	defer msgClient.Close()
	log.Printf("remanprovider: messaging connected (%s)", cfg.Messaging.Backend)

	agent := provider.NewAgent(profile, msgClient, capacity.NewManager(db, cache), db, nil)
	if err := agent.Start(); err != nil {
		log.Fatalf("start agent: %v", err)
	}
	defer agent.Stop()

	log.Printf("remanprovider: %s ready (%d capabilities)", profile.Provider.ID, len(profile.Provider.Capabilities))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("remanprovider: shutting down...")
}
