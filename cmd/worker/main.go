package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kurek775/saladin/internal/agentsvc"
	"github.com/kurek775/saladin/internal/bus"
	"github.com/kurek775/saladin/internal/config"
	"github.com/kurek775/saladin/internal/engine"
	"github.com/kurek775/saladin/internal/llm"
	"github.com/kurek775/saladin/internal/queue"
	"github.com/kurek775/saladin/internal/ratelimit"
	"github.com/kurek775/saladin/internal/repository"
	"github.com/kurek775/saladin/internal/tasksvc"
	"github.com/kurek775/saladin/pkg/database"
	"github.com/kurek775/saladin/pkg/telemetry"
)

// cmd/worker is the external consumer half of the USE_QUEUE=true path: no
// HTTP server, only a job-queue consumer that runs FSM dispatches enqueued by
// cmd/server's Task Service, so execution scales out independently of the
// API frontend.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found")
	}

	cfg := config.FromEnv()
	if !cfg.UseQueue || cfg.RedisAddr == "" {
		log.Fatal("cmd/worker requires USE_QUEUE=true and REDIS_HOST set; in-memory queues are process-local")
	}

	telemetryConfig := telemetry.GetConfigFromEnv()
	shutdown := telemetry.Initialize(telemetryConfig)
	defer shutdown()

	store, checkpointer := buildStore(cfg)

	b := bus.New(bus.DefaultCapacity, slog.Default())
	agents := agentsvc.New(store.Agents, b)

	tasks := tasksvc.New(store.Tasks, agents, b, cfg, nil, nil)

	rateLimiter := ratelimit.NewRegistry(cfg.RateLimitRPM)
	llmClient := llm.NewClient(cfg, rateLimiter)

	ctx := context.Background()
	orchestrator, err := engine.New(ctx, store.Tasks, agents, llmClient, b, cfg, checkpointer, slog.Default())
	if err != nil {
		log.Fatalf("Failed to initialize orchestration engine: %v", err)
	}
	tasks.SetRunner(orchestrator)
	tasks.SetResumer(orchestrator)

	q := queue.NewRedisQueue(cfg.RedisAddr, cfg.RedisPass)
	q.RegisterHandler(tasksvc.RunJobType, tasksvc.NewQueueHandler(tasks))
	tasks.SetQueue(q)
	log.Printf("Using Redis job queue at %s", cfg.RedisAddr)

	log.Println("Starting worker...")
	if err := q.Start(); err != nil {
		log.Fatalf("Failed to start job queue: %v", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Gracefully shutting down worker...")
	q.Stop()
	log.Println("Worker stopped")
}

// buildStore mirrors cmd/server's backend selection so a worker process
// reads and writes the same tasks and agents the API frontend does.
func buildStore(cfg *config.Config) (repository.Store, engine.Checkpointer) {
	if cfg.StorageBackend != "postgres" {
		log.Println("Using in-memory repository backend")
		return repository.Store{
			Agents: repository.NewMemoryAgentRepo(),
			Tasks:  repository.NewMemoryTaskRepo(),
		}, nil
	}

	dbConfig := database.GetConfigFromEnv()
	db, err := database.Initialize(dbConfig)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if err := database.AutoMigrate(db, repository.Models()...); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	log.Println("Using Postgres repository backend")
	checkpointer := engine.NewGormCheckpointer(func(ctx context.Context) error {
		return db.WithContext(ctx).Exec("SELECT 1").Error
	})
	return repository.Store{
		Agents: repository.NewPostgresAgentRepo(db),
		Tasks:  repository.NewPostgresTaskRepo(db),
	}, checkpointer
}
