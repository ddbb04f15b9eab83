// Package config centralizes the environment-variable configuration surface
// named in the engine's design: LLM defaults, storage backend selection,
// revision/lineage/rate-limit knobs, and transport timing.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is assembled once at startup and threaded through the Engine and
// its collaborators — no package-level singletons.
type Config struct {
	LLMProvider string
	LLMModel    string

	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string

	StorageBackend string // "memory" | "postgres"
	DatabaseURL    string

	MaxRevisions int
	GraphTimeout time.Duration

	RateLimitRPM int

	MaxTaskDepth         int
	MaxChildTasksPerTask int
	MaxTotalAutoTasks    int
	AllowAutoTaskCreation bool

	WSHeartbeatInterval time.Duration
	BroadcastErrorDelay time.Duration
	MaxBroadcastErrors  int

	UseQueue  bool
	RedisAddr string
	RedisPass string

	SandboxMode string // "local" | "docker"
}

// FromEnv loads configuration from the process environment, falling back to
// the defaults named in the engine's design.
func FromEnv() *Config {
	return &Config{
		LLMProvider: getEnv("LLM_PROVIDER", "anthropic"),
		LLMModel:    getEnv("LLM_MODEL", "claude-sonnet-4-20250514"),

		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		MaxRevisions: getEnvInt("MAX_REVISIONS", 3),
		GraphTimeout: time.Duration(getEnvInt("GRAPH_TIMEOUT_SECONDS", 600)) * time.Second,

		RateLimitRPM: getEnvInt("RATE_LIMIT_RPM", 60),

		MaxTaskDepth:          getEnvInt("MAX_TASK_DEPTH", 3),
		MaxChildTasksPerTask:  getEnvInt("MAX_CHILD_TASKS_PER_TASK", 5),
		MaxTotalAutoTasks:     getEnvInt("MAX_TOTAL_AUTO_TASKS", 20),
		AllowAutoTaskCreation: getEnvBool("ALLOW_AUTO_TASK_CREATION", true),

		WSHeartbeatInterval: time.Duration(getEnvInt("WS_HEARTBEAT_INTERVAL", 30)) * time.Second,
		BroadcastErrorDelay: time.Duration(getEnvInt("BROADCAST_ERROR_DELAY", 5)) * time.Second,
		MaxBroadcastErrors:  getEnvInt("MAX_BROADCAST_ERROR_COUNT", 5),

		UseQueue:  getEnvBool("USE_QUEUE", false),
		RedisAddr: redisAddr(),
		RedisPass: os.Getenv("REDIS_PASSWORD"),

		SandboxMode: getEnv("SANDBOX_MODE", "local"),
	}
}

func redisAddr() string {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return ""
	}
	port := getEnv("REDIS_PORT", "6379")
	return host + ":" + port
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
