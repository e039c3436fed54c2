/**
 * @description
 * This is the main entry point for the ledger-service. It initializes all
 * components (configuration, the PostgreSQL pool, the RabbitMQ event
 * producer, the optional Redis rate limiter, the ledger retry worker, the
 * repository, the transfer service and the HTTP server), wires them together
 * and runs until a shutdown signal arrives.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pocketbank/ledger-service/internal/api"
	"github.com/pocketbank/ledger-service/internal/app"
	"github.com/pocketbank/ledger-service/internal/config"
	"github.com/pocketbank/ledger-service/internal/store"
	"github.com/pocketbank/ledger-service/pkg/rabbitmq"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.AccessTokenSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"access token secret must be configured\" env=ACCESS_TOKEN_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting ledger-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for the ledger event stream. The
	// service can run without a broker; reconciliation alerts then land in
	// the process log via the fallback producer.
	var eventProducer rabbitmq.Publisher
	if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rabbitmq.EventProducerFallback{}
	} else {
		eventProducer = producer
		defer producer.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Ledger retry worker: failed ledger appends are re-driven here.
	retryWorker := app.NewLedgerRetryWorker(repository, eventProducer, app.LedgerRetryConfig{
		QueueSize:   cfg.LedgerRetryQueueSize,
		MaxAttempts: cfg.LedgerRetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.LedgerRetryBaseDelayMilli) * time.Millisecond,
	})
	retryWorker.Start()

	// Initialize the core application service with its dependencies.
	transferService := app.NewService(repository, eventProducer, retryWorker)

	// Optional Redis-backed transfer rate limiting.
	if cfg.TransferRateLimitPerMin > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; transfer rate limiting disabled\" env=REDIS_URL")
		} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; transfer rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; transfer rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				transferService.SetTransferRateLimiter(
					app.NewRedisTransferRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
					cfg.TransferRateLimitPerMin,
				)
				log.Println("level=info component=bootstrap msg=\"redis connected; transfer rate limiting enabled\"")
			}
			cancelPing()
		}
	}

	// Initialize the API handlers and router.
	secret := []byte(cfg.AccessTokenSecret)
	handlers := api.NewHandlers(transferService, secret)
	router := api.Routes(handlers, secret)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	// Drain queued ledger retries before the pool closes.
	retryWorker.Stop(ctx)

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
