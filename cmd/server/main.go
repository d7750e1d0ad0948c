package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimbuside/nimbus/internal/api"
	"github.com/nimbuside/nimbus/internal/broadcast"
	"github.com/nimbuside/nimbus/internal/config"
	"github.com/nimbuside/nimbus/internal/manager"
	"github.com/nimbuside/nimbus/internal/provider"
	"github.com/nimbuside/nimbus/internal/provider/local"
	"github.com/nimbuside/nimbus/internal/provider/runner"
	"github.com/nimbuside/nimbus/internal/provider/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// Register providers. The local provider is always available; remote
	// providers join the registry only when configured.
	registry := provider.NewRegistry()

	localProvider := local.New(local.Options{
		BaseDir:         cfg.LocalBaseDir,
		MaxIdle:         cfg.LocalMaxIdle,
		CleanupInterval: cfg.LocalCleanupInterval,
		WriteBackups:    cfg.LocalWriteBackups,
	})
	if err := registry.Register(localProvider); err != nil {
		log.Fatalf("failed to register local provider: %v", err)
	}

	if cfg.WorkspaceAPIURL != "" {
		ws, err := workspace.New(workspace.Options{
			APIURL: cfg.WorkspaceAPIURL,
			Token:  cfg.WorkspaceToken,
		})
		if err != nil {
			log.Fatalf("failed to create workspace provider: %v", err)
		}
		if err := registry.Register(ws); err != nil {
			log.Fatalf("failed to register workspace provider: %v", err)
		}
	}

	if cfg.RunnerNATSURL != "" {
		rn, err := runner.New(runner.Options{
			NATSURL: cfg.RunnerNATSURL,
			Timeout: cfg.RunnerTimeout,
		})
		if err != nil {
			log.Fatalf("failed to create runner provider: %v", err)
		}
		if err := registry.Register(rn); err != nil {
			log.Fatalf("failed to register runner provider: %v", err)
		}
	}

	if err := registry.InitializeAll(ctx); err != nil {
		log.Fatalf("failed to initialize providers: %v", err)
	}
	defer registry.CloseAll()

	// File-change broadcast over Redis, if configured.
	var broadcaster broadcast.Broadcaster = broadcast.Nop{}
	if cfg.RedisURL != "" {
		rb, err := broadcast.NewRedisBroadcaster(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer rb.Close()
		broadcaster = rb
	}

	mgr := manager.New(registry, manager.Options{
		DefaultProvider:    cfg.DefaultProvider,
		FallbackProvider:   cfg.FallbackProvider,
		LoadBalancing:      cfg.LoadBalancing,
		Strategy:           cfg.Strategy,
		FailoverEnabled:    cfg.FailoverEnabled,
		IdleSessionTimeout: cfg.IdleSessionTimeout,
		ReapInterval:       cfg.ReapInterval,
		MetricsInterval:    cfg.MetricsInterval,
		Broadcaster:        broadcaster,
	})
	if err := mgr.Start(ctx); err != nil {
		log.Fatalf("failed to start manager: %v", err)
	}
	defer mgr.Close()

	// Lifecycle event fan-out to NATS, if configured.
	if cfg.NATSURL != "" {
		pub, err := broadcast.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer pub.Close()
		mgr.Events().SubscribeAll(pub.Handler())
	}

	server := api.NewServer(mgr, cfg.APIKey)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Printf("nimbus: listening on %s", addr)
		if err := server.Start(addr); err != nil {
			log.Printf("nimbus: server stopped: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("nimbus: shutting down")
	if err := server.Close(); err != nil {
		log.Printf("nimbus: server close: %v", err)
	}
}
