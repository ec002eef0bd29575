package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/config"
	"github.com/Azurakun/AnTiMa-sub000/internal/engine"
	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/memory"
	"github.com/Azurakun/AnTiMa-sub000/internal/prompts"
	"github.com/Azurakun/AnTiMa-sub000/internal/rag"
	"github.com/Azurakun/AnTiMa-sub000/internal/scribe"
	"github.com/Azurakun/AnTiMa-sub000/internal/storage"
	"github.com/Azurakun/AnTiMa-sub000/internal/tools"
	"github.com/Azurakun/AnTiMa-sub000/internal/web"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Storage backends degrade to in-memory when unavailable, so the
	// server always starts; state then does not survive a restart.
	memStore := storage.NewMemoryStore()

	var sessions interfaces.SessionStore = memStore
	var turns interfaces.TurnStore = memStore
	var worlds interfaces.WorldStore = memStore

	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		log.Printf("Warning: Failed to connect to MySQL, using in-memory storage: %v", err)
	} else {
		defer mysqlStore.Close()
		sessions, turns, worlds = mysqlStore, mysqlStore, mysqlStore
		log.Println("MySQL connected successfully")
	}

	var diceLock interfaces.DiceLock = memStore
	var cache *storage.RedisStore
	redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis, dice locks are in-memory: %v", err)
	} else {
		defer redisStore.Close()
		diceLock = redisStore
		cache = redisStore
		log.Println("Redis connected successfully")
	}

	if cfg.AI.Oracle.APIKey == "" {
		log.Println("Warning: No oracle API key provided. Turns will fail until one is set.")
	}

	var index interfaces.VectorIndex
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		qdrantIndex, err := rag.NewQdrantIndex(ctx, cfg.Database.Qdrant.Host, cfg.Database.Qdrant.Port,
			cfg.Database.Qdrant.APIKey, cfg.Database.Qdrant.Collection, cfg.Database.Qdrant.VectorSize)
		cancel()
		if err != nil {
			log.Printf("Warning: Failed to connect to Qdrant, memory retrieval is in-memory: %v", err)
			index = rag.NewMemIndex()
		} else {
			index = qdrantIndex
			log.Println("Qdrant connected successfully")
		}
	}

	embedder := rag.NewEmbeddingService(cfg.AI.Embedding.APIKey, cfg.AI.Embedding.BaseURL, cfg.AI.Embedding.Model)
	oracle := engine.NewOracleClient(cfg.AI.Oracle.APIKey, cfg.AI.Oracle.BaseURL, cfg.AI.Oracle.Model,
		cfg.AI.Oracle.Temperature, cfg.AI.Oracle.MaxTokens)
	scribeOracle := engine.NewOracleClient(cfg.AI.Scribe.APIKey, cfg.AI.Scribe.BaseURL, cfg.AI.Scribe.Model,
		cfg.AI.Scribe.Temperature, cfg.AI.Scribe.MaxTokens)

	templates := prompts.NewTemplateEngine()
	dispatcher := tools.NewDispatcher(diceLock)
	mem := memory.NewManager(turns, worlds, index, embedder)

	eng := engine.NewEngine(sessions, turns, worlds, diceLock, oracle, mem, dispatcher, templates, engine.NewSessionRegistry())

	scribeWorker := scribe.NewWorker(scribeOracle, dispatcher, sessions, worlds, templates)
	scribeWorker.Start()
	defer scribeWorker.Stop()
	eng.SetScribe(scribeWorker)

	sweeper := engine.NewSweeper(eng)
	sweeper.Start()
	defer sweeper.Stop()

	hub := web.NewEventHub()
	go hub.Run()

	handlers := web.NewHandlers(cfg, eng, sessions, turns, worlds, hub, cache)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      web.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in background
	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
