package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/swapnest/chat-engine/internal/broker"
	"github.com/swapnest/chat-engine/internal/codec"
	"github.com/swapnest/chat-engine/internal/config"
	"github.com/swapnest/chat-engine/internal/conversation"
	"github.com/swapnest/chat-engine/internal/identity"
	"github.com/swapnest/chat-engine/internal/message"
	"github.com/swapnest/chat-engine/internal/presence"
	"github.com/swapnest/chat-engine/internal/ratelimit"
	"github.com/swapnest/chat-engine/internal/session"
	"github.com/swapnest/chat-engine/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (environment overrides)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log.Printf("chat engine starting")
	log.Printf("  listen_addr:  %s", cfg.Server.ListenAddr)
	log.Printf("  server_name:  %s", cfg.Server.Name)
	log.Printf("  worker_pool:  %d", cfg.Server.WorkerPoolSize)
	log.Printf("  broker_mode:  %s", cfg.Broker.Mode)
	log.Printf("  redis_addr:   %s", cfg.Redis.Addr)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}
	if err := runMigrations(db, cfg.Postgres.MigrationsDir); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// --- Broker ---
	var bkr broker.Broker
	var natsBroker *broker.NATS
	switch cfg.Broker.Mode {
	case "nats":
		natsConfig := broker.DefaultNATSConfig()
		natsConfig.URL = cfg.Broker.URL
		natsConfig.Name = cfg.Server.Name
		natsBroker, err = broker.NewNATS(natsConfig)
		if err != nil {
			log.Fatalf("connect nats: %v", err)
		}
		bkr = natsBroker
	case "local":
		bkr = broker.NewLocal()
	}

	// --- Message codec ---
	var cdc codec.Codec = codec.NewPlaintext()
	if key, _ := cfg.CodecKey(); key != nil {
		cdc, err = codec.NewAESGCM(key)
		if err != nil {
			log.Fatalf("init codec: %v", err)
		}
		log.Printf("  codec:        aes-256-gcm")
	} else {
		log.Printf("  codec:        plaintext")
	}

	// --- Session dependencies ---
	deps := session.Deps{
		Directory:  conversation.NewPGDirectory(db, cdc),
		Identities: identity.NewCachedDirectory(identity.NewPGDirectory(db), redisClient),
		Messages:   message.NewPGStore(db, cdc),
		Presence:   presence.NewRedisTracker(redisClient, bkr),
		Broker:     bkr,
		Limiter:    ratelimit.NewLimiter(redisClient),
	}
	registry := session.NewStore(redisClient, cfg.Server.Name)
	hub := session.NewHub(deps, registry)

	serverConfig := ws.ServerConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		WorkerPoolSize: cfg.Server.WorkerPoolSize,
		MaxConnections: cfg.Server.MaxConnections,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
	}
	server := ws.NewServer(serverConfig, ws.Callbacks{
		OnConnect:    hub.OnConnect,
		OnMessage:    hub.OnMessage,
		OnDisconnect: hub.OnDisconnect,
	})
	hub.SetServer(server)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if natsBroker != nil {
			natsBroker.Close()
		}
		if err := redisClient.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Printf("postgres close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// runMigrations applies any pending schema migrations from dir.
func runMigrations(db *sql.DB, dir string) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration source %s: %w", dir, err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Printf("migrations up to date (%s)", dir)
	return nil
}
