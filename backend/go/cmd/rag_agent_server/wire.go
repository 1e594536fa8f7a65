package main

import (
	"context"
	"fmt"

	"agentic_rag/backend/go/internal/config"
	"agentic_rag/backend/go/internal/database/milvus"
	"agentic_rag/backend/go/internal/database/minio"
	"agentic_rag/backend/go/internal/database/mysql"
	"agentic_rag/backend/go/internal/database/redis"
	"agentic_rag/backend/go/internal/embedding"
	"agentic_rag/backend/go/internal/llm"
	"agentic_rag/backend/go/internal/protocol"
	"agentic_rag/backend/go/internal/rag_service/dal"
	"agentic_rag/backend/go/internal/rag_service/rag/loaders"
	"agentic_rag/backend/go/internal/rag_service/rag/pipeline"
	"agentic_rag/backend/go/internal/rag_service/rag/splitters"
	"agentic_rag/backend/go/internal/rag_service/rag/storages/vectorstore"
	"agentic_rag/backend/go/internal/rag_service/service"
	"agentic_rag/backend/go/pkg/circuitbreaker"
	rhttp "agentic_rag/backend/go/pkg/http"
	"agentic_rag/backend/go/pkg/logger"
)

// agents 持有服务进程里所有需要关闭的组件。
type agents struct {
	store      *vectorstore.Store
	service    *service.Service
	dispatcher *protocol.Dispatcher
	closers    []func()
}

func (a *agents) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildAgents 按配置装配两个 Agent 及其依赖。任何一步失败都会关闭已创建的组件。
func buildAgents(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (_ *agents, err error) {
	a := &agents{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	emb, err := embedding.FromConfig(ctx, cfg.Embedding, cfg.Middleware.CircuitBreaker)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	store, err := buildStore(ctx, cfg, emb, log)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })
	stats := store.Stats()
	log.Info(fmt.Sprintf("Vector store ready: backend=%s entries=%d dimension=%d", stats.Backend, stats.Entries, stats.Dimension))

	registry, err := buildLoader(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	splitter, err := splitters.NewRecursiveCharacterSplitter(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	answerer, err := llm.FromConfig(ctx, cfg.LLM, cfg.Middleware.CircuitBreaker)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	recorder, closeRecorder, err := buildRecorder(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRecorder)

	var opts []service.Option
	ledger, closeLedger, err := buildLedger(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		opts = append(opts, service.WithLedger(ledger))
		a.closers = append(a.closers, closeLedger)
	}

	a.service = service.New(
		pipeline.NewIngestionPipeline(registry, splitter, store, log.WithField("agent", protocol.AgentIngestion)),
		pipeline.NewRetrievalQA(store, answerer, cfg.Retrieval.TopK, log.WithField("agent", protocol.AgentLLMResponse)),
		store, log, opts...,
	)
	a.dispatcher = protocol.NewDispatcher(recorder, log)
	a.service.Register(a.dispatcher)
	return a, nil
}

// buildStore 打开本地 SQLite 索引或 Milvus 集合。
func buildStore(ctx context.Context, cfg *config.AppConfig, emb embedding.Embedding, log *logger.Logger) (*vectorstore.Store, error) {
	opts := vectorstore.Options{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
		Log:         log,
	}
	switch cfg.VectorStore.Type {
	case "milvus":
		c, err := milvus.NewClient(ctx, cfg.VectorStore.Milvus)
		if err != nil {
			return nil, err
		}
		store, err := vectorstore.OpenMilvus(ctx, c, cfg.VectorStore.Milvus.CollectionName, emb, opts)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		return store, nil
	default:
		return vectorstore.OpenOrCreate(ctx, cfg.VectorStore.Path, emb, opts)
	}
}

// buildLoader 创建文档加载注册表，并按配置启用路径白名单与 MinIO 对象来源。
func buildLoader(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (*loaders.Registry, error) {
	var opts []loaders.Option
	if len(cfg.Ingestion.AllowedPaths) > 0 {
		policy, err := loaders.NewPathPolicy(cfg.Ingestion.AllowedPaths)
		if err != nil {
			return nil, err
		}
		opts = append(opts, loaders.WithPathPolicy(policy))
	}
	mc, err := minio.NewClient(ctx, cfg.Databases.MinIO)
	if err != nil {
		return nil, err
	}
	if mc != nil {
		opts = append(opts, loaders.WithObjectFetcher(loaders.NewMinioFetcher(mc)))
		log.Info(fmt.Sprintf("MinIO document source enabled at %s", cfg.Databases.MinIO.Endpoint))
	}
	var breaker *circuitbreaker.Breaker
	if cb := cfg.Middleware.CircuitBreaker; cb.Enabled {
		breaker = circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout.Std())
	}
	opts = append(opts, loaders.WithHTTPClient(rhttp.NewClient(breaker), cfg.Ingestion.FetchTimeout.Std()))
	if key := cfg.Ingestion.OfficeLicenseKey; key != "" {
		if err := loaders.SetOfficeLicense(key); err != nil {
			log.WithError(err).Warn("Could not set office license, .docx ingestion will fail")
		}
	}
	return loaders.NewRegistry(log, opts...), nil
}

// buildRecorder 返回协议生命周期记录器及其关闭函数。
func buildRecorder(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (protocol.Recorder, func(), error) {
	if cfg.Protocol.TraceRecorder != "redis" {
		return protocol.NewMemoryRecorder(
			protocol.WithMaxTraces(cfg.Protocol.MaxTraces),
			protocol.WithTraceTTL(cfg.Protocol.TraceTTL.Std()),
		), func() {}, nil
	}
	rdb, err := redis.NewClient(ctx, cfg.Databases.Redis)
	if err != nil {
		return nil, nil, err
	}
	log.Info(fmt.Sprintf("Recording protocol traces in Redis at %s", cfg.Databases.Redis.Address))
	return protocol.NewRedisRecorder(rdb, "", cfg.Protocol.TraceTTL.Std()), func() { _ = rdb.Close() }, nil
}

// buildLedger 在配置了 MySQL 时返回入库台账，否则返回 nil。
func buildLedger(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (service.Ledger, func(), error) {
	db, err := mysql.Open(ctx, cfg.Databases.MySQL)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		return nil, func() {}, nil
	}
	ledger := dal.NewIngestionDAL(db)
	if err := ledger.Migrate(ctx); err != nil {
		_ = mysql.Close(db)
		return nil, nil, err
	}
	log.Info("Ingestion ledger enabled")
	return ledger, func() { _ = mysql.Close(db) }, nil
}
