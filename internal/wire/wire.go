// Package wire 组装应用依赖
package wire

import (
	"context"

	"needle-api/internal/application/chat"
	"needle-api/internal/application/ingest"
	"needle-api/internal/application/kb"
	"needle-api/internal/application/search"
	"needle-api/internal/config"
	"needle-api/internal/infrastructure/arxiv"
	"needle-api/internal/infrastructure/citations"
	infraembedding "needle-api/internal/infrastructure/embedding"
	"needle-api/internal/infrastructure/llm"
	"needle-api/internal/infrastructure/persistence/milvus"
	"needle-api/internal/infrastructure/persistence/postgres"
	"needle-api/internal/infrastructure/persistence/redis"
	"needle-api/internal/interfaces/http/handler"
	"needle-api/internal/interfaces/http/router"
)

// App 应用依赖容器
type App struct {
	Router *router.Router

	PgClient     *postgres.Client
	RedisClient  *redis.Client
	MilvusClient *milvus.Client
	VectorRepo   *milvus.Repository

	SearchService *search.Service
	KBService     *kb.Service
	ChatService   *chat.Service
}

// InitializeApp 初始化整个应用，返回的 cleanup 负责释放所有客户端连接
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// PostgreSQL
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanups = append(cleanups, func() { _ = pgClient.Close() })
	if err := pgClient.Migrate(); err != nil {
		cleanup()
		return nil, nil, err
	}

	// Redis
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, func() { _ = redisClient.Close() })
	cache := redis.NewCache(redisClient)
	limiter := redis.NewRateLimiter(redisClient)

	// Milvus
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, func() { _ = milvusClient.Close() })
	vectorRepo := milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)
	if err := vectorRepo.EnsureCollections(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	// Embedding
	einoEmbedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	embedder := infraembedding.NewClient(einoEmbedder, &cfg.Embedding)

	// LLM 与外部数据源
	llmFactory := llm.NewEinoFactory(cfg)
	citationClient := citations.NewClient(&cfg.Citations)
	arxivClient := arxiv.NewClient(&cfg.Arxiv)

	// 仓储
	txManager := postgres.NewTxManager(pgClient)
	paperRepo := postgres.NewPaperRepository(pgClient)
	chunkRepo := postgres.NewKBChunkRepository(pgClient)
	metaRepo := postgres.NewKBMetaRepository(pgClient)
	sessionRepo := postgres.NewConversationSessionRepository(pgClient)
	turnRepo := postgres.NewConversationTurnRepository(pgClient)

	// 应用服务
	searchSvc := search.NewService(embedder, vectorRepo, paperRepo, llmFactory, citationClient, &cfg.Search)
	kbSvc := kb.NewService(embedder, vectorRepo, arxivClient, chunkRepo, metaRepo, cache, &cfg.Ingest)
	chatSvc := chat.NewService(embedder, vectorRepo, llmFactory, chunkRepo, sessionRepo, turnRepo, txManager, &cfg.Chat)

	// HTTP 层
	handlers := &router.Handlers{
		Health:    handler.NewHealthHandler(pgClient, redisClient, milvusClient),
		Search:    handler.NewSearchHandler(searchSvc, cfg.Server.HTTP.MaxUploadBytes),
		KB:        handler.NewKBHandler(kbSvc, cfg.Server.HTTP.MaxUploadBytes),
		Chat:      handler.NewChatHandler(chatSvc),
		Citations: handler.NewCitationHandler(citationClient),
	}
	r := router.New(cfg, handlers, limiter)

	app := &App{
		Router:        r,
		PgClient:      pgClient,
		RedisClient:   redisClient,
		MilvusClient:  milvusClient,
		VectorRepo:    vectorRepo,
		SearchService: searchSvc,
		KBService:     kbSvc,
		ChatService:   chatSvc,
	}
	return app, cleanup, nil
}

// InitializeIndexer 初始化快照导入所需的最小依赖（CLI 用）
func InitializeIndexer(ctx context.Context, cfg *config.Config) (*ingest.SnapshotIndexer, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanups = append(cleanups, func() { _ = pgClient.Close() })
	if err := pgClient.Migrate(); err != nil {
		cleanup()
		return nil, nil, err
	}

	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	cleanups = append(cleanups, func() { _ = milvusClient.Close() })
	vectorRepo := milvus.NewRepository(milvusClient, cfg.Embedding.Dimension)
	if err := vectorRepo.EnsureCollections(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	einoEmbedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	embedder := infraembedding.NewClient(einoEmbedder, &cfg.Embedding)

	paperRepo := postgres.NewPaperRepository(pgClient)
	indexer := ingest.NewSnapshotIndexer(embedder, vectorRepo, paperRepo, &cfg.Ingest, &cfg.Arxiv)
	return indexer, cleanup, nil
}
