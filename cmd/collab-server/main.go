package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"coderoom-core/internal/directory"
	"coderoom-core/internal/minio"
	"coderoom-core/services/collabservice"
)

func main() {
	cfg := collabservice.Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		KafkaBrokers:     getEnvBrokers("KAFKA_BROKERS", nil),
		DirectoryBackend: getEnv("DIRECTORY_BACKEND", collabservice.BackendMinIO),
		MinIO: minio.Config{
			Endpoint:        os.Getenv("MINIO_ENDPOINT"),
			AccessKeyID:     getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:          getEnvBool("MINIO_USE_SSL", false),
			Region:          os.Getenv("MINIO_REGION"),
		},
		Bucket:      getEnv("MINIO_BUCKET", "coderoom"),
		PostgresURL: os.Getenv("DATABASE_URL"),
		Neo4j: directory.Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://neo4j:7687"),
			User:     getEnv("NEO4J_USER", "neo4j"),
			Password: os.Getenv("NEO4J_PASSWORD"),
			Database: os.Getenv("NEO4J_DATABASE"),
		},
		FlushInterval:   getEnvDuration("FLUSH_INTERVAL", 30*time.Second),
		PersistTimeout:  getEnvDuration("PERSIST_TIMEOUT", 5*time.Second),
		LogCapacity:     getEnvInt("OPERATION_LOG_CAPACITY", 100),
		TemplateRefresh: getEnvDuration("TEMPLATE_REFRESH", 2*time.Minute),
		OutboxSize:      getEnvInt("CLIENT_OUTBOX_SIZE", 256),
		QueryIdentity:   getEnvBool("ALLOW_QUERY_IDENTITY", false),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down collab server...")
		cancel()
	}()

	service, err := collabservice.NewService(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create collab server: %v", err)
	}
	service.Start(ctx)
	<-ctx.Done()
	service.Stop()
	log.Println("Collab server stopped.")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBrokers(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		brokers := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				brokers = append(brokers, trimmed)
			}
		}
		if len(brokers) > 0 {
			return brokers
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Ignoring invalid %s=%q", key, value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Ignoring invalid %s=%q", key, value)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
