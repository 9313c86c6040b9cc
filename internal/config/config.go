package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	DatabaseURL       string
	RedisURL          string
	NATSURL           string
	JWTSecret         string
	SessionCacheTTL   time.Duration
	SandboxBackend    string
	DockerHost        string
	SandboxImage      string
	ExecutionTimeout  time.Duration
	CodeRunMemoryMB   int
	CodeRunCPUShares  int
	OpenAIAPIKey      string
	OpenAIModel       string
	EvaluationRetries int
	EnableHumanizer   bool
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("INTERVO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Intervo API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.url", "intervo.db")
	v.SetDefault("session.cache_ttl", "1h")
	v.SetDefault("sandbox.backend", "process")
	v.SetDefault("sandbox.image", "python:3.11-alpine")
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("evaluation.retries", 2)
	v.SetDefault("humanizer.enabled", true)

	ttlString := v.GetString("session.cache_ttl")
	if ttlString == "" {
		ttlString = "1h"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid session cache ttl: %w", err)
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		JWTSecret:         v.GetString("jwt.secret"),
		SessionCacheTTL:   ttl,
		SandboxBackend:    strings.ToLower(v.GetString("sandbox.backend")),
		DockerHost:        v.GetString("docker_host"),
		SandboxImage:      v.GetString("sandbox.image"),
		ExecutionTimeout:  time.Duration(timeoutMs) * time.Millisecond,
		CodeRunMemoryMB:   v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:  v.GetInt("code_run_cpu_shares"),
		OpenAIAPIKey:      v.GetString("openai_api_key"),
		OpenAIModel:       v.GetString("openai.model"),
		EvaluationRetries: v.GetInt("evaluation.retries"),
		EnableHumanizer:   v.GetBool("humanizer.enabled"),
	}

	if cfg.SandboxBackend != "process" && cfg.SandboxBackend != "docker" {
		return Config{}, fmt.Errorf("unknown sandbox backend %q", cfg.SandboxBackend)
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	if cfg.EvaluationRetries < 0 {
		cfg.EvaluationRetries = 0
	}

	return cfg, nil
}
