package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wisenet/wisenet-backend/internal/graph"
	"github.com/wisenet/wisenet-backend/internal/platform/cache"
	"github.com/wisenet/wisenet-backend/internal/platform/db"
	"github.com/wisenet/wisenet-backend/internal/platform/embedding"
	"github.com/wisenet/wisenet-backend/internal/platform/envutil"
	"github.com/wisenet/wisenet-backend/internal/platform/llm"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
	"github.com/wisenet/wisenet-backend/internal/platform/neo4jdb"
	"github.com/wisenet/wisenet-backend/internal/platform/nlp"
	"github.com/wisenet/wisenet-backend/internal/repos"
	"github.com/wisenet/wisenet-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis (optional status cache)
	redisClient, err := cache.NewRedisClient(log)
	if err != nil {
		log.Warn("Redis init failed, status reads go straight to Postgres", "error", err)
		redisClient = nil
	}

	// Neo4j
	graphClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Fatal("Neo4j init failed", "error", err)
	}

	// Graph repos
	log.Info("Setting up Repos from main...")
	indexManager := graph.NewIndexManager(graphClient, log)
	nodeRepo := graph.NewNodeRepo(graphClient, indexManager, log)
	relationshipRepo := graph.NewRelationshipRepo(graphClient, log)
	entityRepo := graph.NewEntityRepo(graphClient, indexManager, log)
	keywordRepo := graph.NewKeywordRepo(graphClient, indexManager, log)
	tagRepo := graph.NewTagRepo(graphClient, indexManager, log)
	documentRepo := graph.NewDocumentRepo(graphClient, indexManager, log)
	webPageRepo := graph.NewWebPageRepo(graphClient, indexManager, log)
	similarityRepo := graph.NewSimilarityRepo(graphClient, log)
	knowledgeLibRepo := repos.NewKnowledgeLibRepo(thePG, log)

	// LLM and embedding stack
	templates, err := llm.LoadTemplates(envutil.Str("PROMPT_TEMPLATES_PATH", ""))
	if err != nil {
		log.Fatal("Prompt template load failed", "error", err)
	}
	llmClient, err := llm.NewClient(log)
	if err != nil {
		log.Fatal("LLM client init failed", "error", err)
	}
	embedder := embedding.NewEmbedder(log)
	entityExtractor := nlp.NewExtractor(log, llmClient, templates)
	contentExtractor := services.NewPlainExtractor(log)

	// Services
	log.Info("Setting up Services from main...")
	statusService := services.NewStatusService(knowledgeLibRepo, redisClient, similarityRepo, log)
	generationService := services.NewGenerationService(
		nodeRepo, relationshipRepo, statusService, llmClient, templates,
		services.DefaultGenerationConfig(), log)
	analysisService := services.NewAnalysisService(
		nodeRepo, entityRepo, keywordRepo, tagRepo, documentRepo, webPageRepo,
		statusService, llmClient, templates, embedder, contentExtractor, entityExtractor,
		services.DefaultAnalysisConfig(), log)
	retrievalService := services.NewRetrievalService(
		nodeRepo, relationshipRepo, entityRepo, keywordRepo, tagRepo,
		documentRepo, webPageRepo, similarityRepo, embedder,
		services.DefaultRetrievalConfig(), log)

	engines := services.Engines{
		Status:     statusService,
		Generation: generationService,
		Analysis:   analysisService,
		Retrieval:  retrievalService,
	}
	if !engines.Ready() {
		log.Fatal("service wiring incomplete")
	}

	// The transport layer mounts on top of these engines; the core
	// process just holds the connections until it is told to stop.
	log.Info("wisenet core ready", "default_llm", llm.DefaultModel())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := graphClient.Close(shutdownCtx); err != nil {
		log.Warn("Neo4j close failed", "error", err)
	}
}
