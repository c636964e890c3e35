// Package docqa 组装文档问答服务：存储、模型供应商、摄取流水线与 HTTP 服务。
package docqa

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/router"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/rag/chunker"
	"github.com/kart-io/docqa/internal/pkg/rag/docproc"
	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/internal/pkg/rag/langdetect"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/component/mongodb"
	"github.com/kart-io/docqa/pkg/component/redis"
	"github.com/kart-io/docqa/pkg/infra/app"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/infra/server"
	"github.com/kart-io/docqa/pkg/infra/tracing"
	"github.com/kart-io/docqa/pkg/llm"
	// 注册 LLM 供应商
	_ "github.com/kart-io/docqa/pkg/llm/gemini"
	_ "github.com/kart-io/docqa/pkg/llm/openai"
	"github.com/kart-io/docqa/pkg/llm/resilience"
	obsmetrics "github.com/kart-io/docqa/pkg/observability/metrics"
	blobopts "github.com/kart-io/docqa/pkg/options/blob"
	ledgeropts "github.com/kart-io/docqa/pkg/options/ledger"
	llmopts "github.com/kart-io/docqa/pkg/options/llm"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	mongodbopts "github.com/kart-io/docqa/pkg/options/mongodb"
	ragopts "github.com/kart-io/docqa/pkg/options/rag"
	redisopts "github.com/kart-io/docqa/pkg/options/redis"
	serveropts "github.com/kart-io/docqa/pkg/options/server"
	tracingopts "github.com/kart-io/docqa/pkg/options/tracing"
)

// Name 服务名称。
const Name = "docqa"

// Config 服务运行所需的全部配置。
type Config struct {
	LogOptions       *logopts.Options
	ServerOptions    *serveropts.Options
	TracingOptions   *tracingopts.Options
	MongoOptions     *mongodbopts.Options
	MilvusOptions    *milvusopts.Options
	RedisOptions     *redisopts.Options
	LedgerOptions    *ledgeropts.Options
	BlobOptions      *blobopts.Options
	RAGOptions       *ragopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	RouterOptions    *llmopts.ProviderOptions
	SummaryOptions   *llmopts.ProviderOptions
	MetadataOptions  *llmopts.ProviderOptions
}

// Server docqa 服务实例。
type Server struct {
	srv      *server.Manager
	closers  []func(ctx context.Context) error
	breakers []*resilience.CircuitBreaker
}

// NewServer 按依赖顺序初始化各组件。任一步失败时释放已创建的资源。
func (cfg *Config) NewServer(ctx context.Context) (_ *Server, err error) {
	s := &Server{}
	defer func() {
		if err != nil {
			s.close(context.WithoutCancel(ctx))
		}
	}()

	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting docqa service...")

	// 2. 初始化链路追踪
	tp, err := tracing.NewProvider(ctx, cfg.TracingOptions, app.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.closers = append(s.closers, tp.Shutdown)
	logger.Infow("Tracing initialized", "enabled", tp.Enabled())

	checks := map[string]handler.HealthCheck{}

	// 3. 初始化摄取台账
	ledger, err := cfg.newLedger(ctx, s, checks)
	if err != nil {
		return nil, err
	}

	// 4. 初始化向量索引
	index, err := cfg.newIndex(ctx, s, checks)
	if err != nil {
		return nil, err
	}

	// 5. 初始化模型供应商
	embedder, err := cfg.newEmbedder(ctx, s, checks)
	if err != nil {
		return nil, err
	}
	composer, err := s.newChatProvider("composer", cfg.ChatOptions)
	if err != nil {
		return nil, err
	}
	routerLLM, err := s.newChatProvider("router", cfg.RouterOptions)
	if err != nil {
		return nil, err
	}
	summarizer, err := s.newChatProvider("summarizer", cfg.SummaryOptions)
	if err != nil {
		return nil, err
	}
	metadataLLM, err := s.newChatProvider("metadata", cfg.MetadataOptions)
	if err != nil {
		return nil, err
	}

	// 6. 初始化协程池
	ingestionPool, err := pool.NewPool("docqa-ingestion", pool.IngestionPool, pool.IngestionPoolConfig(cfg.RAGOptions.Workers))
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion pool: %w", err)
	}
	s.closers = append(s.closers, releasePool(ingestionPool, cfg.ServerOptions.ShutdownTimeout))
	extractionPool, err := pool.NewPool("docqa-extraction", pool.ExtractionPool, pool.ExtractionPoolConfig(cfg.RAGOptions.Workers))
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction pool: %w", err)
	}
	s.closers = append(s.closers, releasePool(extractionPool, cfg.ServerOptions.ShutdownTimeout))

	// 7. 初始化文档处理器
	splitter, err := chunker.New(cfg.RAGOptions.ChunkSize, cfg.RAGOptions.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking configuration: %w", err)
	}
	processor := docproc.New(docutil.New(), splitter, langdetect.NewDefault(),
		docproc.WithPool(extractionPool),
		docproc.WithDocIDStrategy(docproc.DocIDStrategy(cfg.RAGOptions.DocIDStrategy)),
	)

	// 8. 初始化文件存储
	blobs, err := cfg.newBlobStore(ctx)
	if err != nil {
		return nil, err
	}

	// 9. 初始化 Biz 层
	m := metrics.New(obsmetrics.DefaultRegistry)
	retriever := biz.NewRetriever(index, embedder, cfg.RAGOptions.TopK)
	chat := biz.NewChatService(routerLLM, composer, summarizer, retriever, biz.ChatConfig{
		TopK:                   cfg.RAGOptions.TopK,
		MaxContextChars:        cfg.RAGOptions.MaxContextChars,
		MaxSnippetChars:        cfg.RAGOptions.MaxSnippetChars,
		SummaryFullDocument:    cfg.RAGOptions.SummaryFullDocument,
		SummaryMaxContextChars: cfg.RAGOptions.SummaryMaxContextChars,
		SummaryDocMaxChunks:    cfg.RAGOptions.SummaryDocMaxChunks,
	}, m)
	ingestion := biz.NewIngestionService(biz.IngestionDeps{
		Ledger:    ledger,
		Blobs:     blobs,
		Index:     index,
		Processor: processor,
		Embedder:  embedder,
		Extractor: biz.NewMetadataExtractor(metadataLLM, cfg.RAGOptions.MetadataKeys),
		Workers:   ingestionPool,
		Metrics:   m,
	}, biz.IngestionConfig{
		DefaultFolderID:  cfg.BlobOptions.FolderID,
		OutputRootName:   cfg.BlobOptions.OutputRootName,
		ChunkSize:        cfg.RAGOptions.ChunkSize,
		ChunkOverlap:     cfg.RAGOptions.ChunkOverlap,
		EmbedConcurrency: cfg.RAGOptions.EmbedConcurrency,
		MetadataKeys:     cfg.RAGOptions.MetadataKeys,
	})
	logger.Infow("Biz layer initialized",
		"vector_index", index.Name(),
		"top_k", cfg.RAGOptions.TopK,
		"workers", cfg.RAGOptions.Workers,
	)

	// 10. 初始化 Handler 层
	h := handler.New(handler.Deps{
		Chat:            chat,
		Ingestion:       ingestion,
		Processor:       processor,
		Ledger:          ledger,
		Blobs:           blobs,
		Metrics:         m,
		Registry:        obsmetrics.DefaultRegistry,
		Checks:          checks,
		Pools:           []*pool.Pool{ingestionPool, extractionPool},
		Breakers:        s.breakers,
		DefaultFolderID: cfg.BlobOptions.FolderID,
		Build:           app.Build(),
	})

	// 11. 初始化服务器并注册路由
	s.srv = server.NewManager(
		server.WithHTTPOptions(cfg.ServerOptions.HTTP),
		server.WithMiddleware(cfg.ServerOptions.Middleware),
		server.WithShutdownTimeout(cfg.ServerOptions.ShutdownTimeout),
	)
	router.Register(s.srv.Engine(), h)

	logger.Infow("docqa service is ready", "addr", s.srv.Addr())
	return s, nil
}

// Run 启动服务直到 ctx 取消，随后释放全部依赖。
func (s *Server) Run(ctx context.Context) error {
	defer s.close(context.WithoutCancel(ctx))
	return s.srv.Run(ctx)
}

// close 逆序释放资源。
func (s *Server) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			logger.Warnw("failed to release resource", "error", err.Error())
		}
	}
	s.closers = nil
}

func (cfg *Config) newLedger(ctx context.Context, s *Server, checks map[string]handler.HealthCheck) (store.Ledger, error) {
	if !cfg.LedgerOptions.UseMongo() {
		logger.Warn("Using in-memory ingestion ledger, records are lost on restart")
		return store.NewMemoryLedger(), nil
	}

	client, err := mongodb.NewWithContext(ctx, cfg.MongoOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mongodb: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return client.Close() })

	ledger := store.NewMongoLedger(client)
	if err := ledger.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger indexes: %w", err)
	}
	checks["mongodb"] = client.Ping
	logger.Infow("MongoDB ledger initialized", "database", cfg.MongoOptions.Database)
	return ledger, nil
}

func (cfg *Config) newIndex(ctx context.Context, s *Server, checks map[string]handler.HealthCheck) (store.VectorIndex, error) {
	collection, dim := cfg.RAGOptions.Collection, cfg.RAGOptions.EmbeddingDim
	if !cfg.MilvusOptions.Enabled {
		logger.Warn("Milvus disabled, using in-memory vector index")
		return store.NewMemoryIndex(collection, dim), nil
	}

	client, err := milvus.New(cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	s.closers = append(s.closers, client.Close)

	index, err := store.NewMilvusIndex(ctx, client, collection, dim)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare milvus collection: %w", err)
	}
	checks["milvus"] = func(ctx context.Context) error {
		_, err := client.GetCollectionStats(ctx, collection)
		return err
	}
	logger.Infow("Milvus vector index initialized", "collection", collection, "dim", dim)
	return index, nil
}

// newEmbedder 嵌入供应商外层依次包装重试熔断与 Redis 查询缓存。
func (cfg *Config) newEmbedder(ctx context.Context, s *Server, checks map[string]handler.HealthCheck) (llm.EmbeddingProvider, error) {
	o := cfg.EmbeddingOptions
	base, err := llm.NewEmbeddingProvider(o.Provider, o.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	resilient := resilience.NewResilientEmbeddingProvider(base,
		resilience.NewRetryConfig(o.Timeout, o.MaxRetries),
		resilience.DefaultCircuitBreakerConfig(),
	)
	s.breakers = append(s.breakers, resilient.CircuitBreaker())
	embedder := llm.EmbeddingProvider(resilient)
	logger.Infow("Embedding provider initialized", "provider", o.Provider, "model", o.Model)

	if !cfg.RedisOptions.Enabled {
		return embedder, nil
	}

	client, err := redis.NewWithContext(ctx, cfg.RedisOptions)
	if err != nil {
		// 缓存不可用不影响服务
		logger.Warnw("failed to connect to redis, embedding cache disabled", "error", err.Error())
		return embedder, nil
	}
	s.closers = append(s.closers, func(context.Context) error { return client.Close() })
	checks["redis"] = client.Ping

	logger.Infow("Redis embedding cache initialized", "addr", cfg.RedisOptions.Addr(), "ttl", cfg.RedisOptions.CacheTTL)
	return llm.NewCachedEmbeddingProvider(embedder, client.Universal(), &llm.EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       cfg.RedisOptions.CacheTTL,
		KeyPrefix: fmt.Sprintf("%s%s:%d:", cfg.RedisOptions.CachePrefix, o.Model, cfg.RAGOptions.EmbeddingDim),
	}), nil
}

func (s *Server) newChatProvider(label string, o *llmopts.ProviderOptions) (llm.ChatProvider, error) {
	base, err := llm.NewChatProvider(o.Provider, o.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s provider: %w", label, err)
	}
	logger.Infow("Chat provider initialized", "role", label, "provider", o.Provider, "model", o.Model)
	provider := resilience.NewResilientChatProvider(label, base,
		resilience.NewRetryConfig(o.Timeout, o.MaxRetries),
		resilience.DefaultCircuitBreakerConfig(),
	)
	s.breakers = append(s.breakers, provider.CircuitBreaker())
	return provider, nil
}

func (cfg *Config) newBlobStore(ctx context.Context) (store.BlobStore, error) {
	o := cfg.BlobOptions
	var (
		blobs store.BlobStore
		err   error
	)
	switch o.Backend {
	case blobopts.BackendDrive:
		blobs, err = store.NewDriveBlobStore(ctx, store.DriveCredentials{
			CredentialsFile: o.CredentialsFile,
			TokenFile:       o.TokenFile,
			ClientID:        o.ClientID,
			ClientSecret:    o.ClientSecret,
			RPS:             o.DriveRPS,
			Burst:           o.DriveBurst,
		})
	case blobopts.BackendS3:
		blobs, err = store.NewS3BlobStore(ctx, store.S3Config{
			Bucket:    o.Bucket,
			Region:    o.Region,
			Endpoint:  o.Endpoint,
			AccessKey: o.AccessKey,
			SecretKey: o.SecretKey,
		})
	case blobopts.BackendLocal:
		blobs, err = store.NewLocalBlobStore(o.RootDir)
	default:
		err = fmt.Errorf("unsupported backend %q", o.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	logger.Infow("Blob store initialized", "backend", o.Backend)
	return blobs, nil
}

// releasePool 关闭池前等待在途任务，最长 drain。
func releasePool(p *pool.Pool, drain time.Duration) func(context.Context) error {
	return func(context.Context) error {
		return p.ReleaseTimeout(drain)
	}
}
