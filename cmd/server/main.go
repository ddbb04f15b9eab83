package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/kurek775/saladin/internal/agentsvc"
	"github.com/kurek775/saladin/internal/broadcast"
	"github.com/kurek775/saladin/internal/bus"
	"github.com/kurek775/saladin/internal/config"
	"github.com/kurek775/saladin/internal/engine"
	"github.com/kurek775/saladin/internal/httpapi"
	"github.com/kurek775/saladin/internal/llm"
	"github.com/kurek775/saladin/internal/queue"
	"github.com/kurek775/saladin/internal/ratelimit"
	"github.com/kurek775/saladin/internal/repository"
	"github.com/kurek775/saladin/internal/tasksvc"
	"github.com/kurek775/saladin/pkg/database"
	"github.com/kurek775/saladin/pkg/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found")
	}

	cfg := config.FromEnv()

	telemetryConfig := telemetry.GetConfigFromEnv()
	shutdown := telemetry.Initialize(telemetryConfig)
	defer shutdown()

	store, checkpointer := buildStore(cfg)

	b := bus.New(bus.DefaultCapacity, slog.Default())
	agents := agentsvc.New(store.Agents, b)

	q := buildQueue(cfg)

	tasks := tasksvc.New(store.Tasks, agents, b, cfg, nil, nil)
	if cfg.UseQueue {
		tasks.SetQueue(q)
		q.RegisterHandler(tasksvc.RunJobType, tasksvc.NewQueueHandler(tasks))
	}

	rateLimiter := ratelimit.NewRegistry(cfg.RateLimitRPM)
	llmClient := llm.NewClient(cfg, rateLimiter)

	ctx := context.Background()
	orchestrator, err := engine.New(ctx, store.Tasks, agents, llmClient, b, cfg, checkpointer, slog.Default())
	if err != nil {
		log.Fatalf("Failed to initialize orchestration engine: %v", err)
	}
	tasks.SetRunner(orchestrator)
	tasks.SetResumer(orchestrator)

	fabric := broadcast.New(b, cfg.MaxBroadcastErrors, cfg.BroadcastErrorDelay, slog.Default())
	fabricCtx, cancelFabric := context.WithCancel(context.Background())
	go fabric.Run(fabricCtx)
	defer cancelFabric()

	app := fiber.New(fiber.Config{
		AppName: "Saladin Server",
	})

	app.Use(otelfiber.Middleware())
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Agents:  agents,
		Tasks:   tasks,
		Fabric:  fabric,
		Queue:   q,
		Cfg:     cfg,
		Durable: orchestrator.Durable(),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Gracefully shutting down server...")
		q.Stop()
		_ = app.Shutdown()
	}()

	log.Printf("Starting Saladin Server on port %s", port)
	log.Fatal(app.Listen(":" + port))
}

// buildStore wires the repository pair and, when the relational backend is
// active, a Checkpointer over the same *gorm.DB so durable resume is
// available whenever Postgres is.
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

func buildQueue(cfg *config.Config) queue.Queue {
	var q queue.Queue
	if cfg.UseQueue && cfg.RedisAddr != "" {
		q = queue.NewRedisQueue(cfg.RedisAddr, cfg.RedisPass)
		log.Printf("Using Redis job queue at %s", cfg.RedisAddr)
	} else {
		q = queue.NewInMemoryQueue(100)
		log.Println("Using in-memory job queue")
	}
	if err := q.Start(); err != nil {
		log.Printf("Failed to start job queue: %v", err)
	}
	return q
}
