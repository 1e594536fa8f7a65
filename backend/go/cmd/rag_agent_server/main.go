package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentic_rag/backend/go/internal/config"
	"agentic_rag/backend/go/internal/database/kafka"
	"agentic_rag/backend/go/internal/rag_service/api"
	"agentic_rag/backend/go/internal/rag_service/consumer"
	"agentic_rag/backend/go/pkg/circuitbreaker"
	rhttp "agentic_rag/backend/go/pkg/http"
	"agentic_rag/backend/go/pkg/kafka_host"
	"agentic_rag/backend/go/pkg/logger"
	"agentic_rag/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const ServiceName = "rag_agent_server"

// STDIO transport (default)
//go run ./backend/go/cmd/rag_agent_server -c backend/go/config/config.yaml
//
// SSE transport on the configured port
//go run ./backend/go/cmd/rag_agent_server -t sse

func main() {
	configPath := flag.String("c", "config/config.yaml", "Path to the yaml config file")
	transport := flag.String("t", "", "MCP transport override: stdio, sse, or httpstream")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *transport != "" {
		cfg.Transport.MCP.Type = *transport
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid transport: %v", err)
		}
	}

	// 2. 初始化 Logger
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger := logger.New(ServiceName, "", "")
	appLogger.Info(fmt.Sprintf("Starting %s %s", cfg.App.Name, cfg.App.Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 装配 Agent，向量库初始化失败时直接退出
	agents, err := buildAgents(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to initialize agents: %v", err))
	}
	defer agents.Close()

	// 4. 启动各个传输层
	if err := serve(ctx, cfg, agents, appLogger); err != nil {
		appLogger.WithError(err).Error("Server stopped with error")
		agents.Close()
		os.Exit(1)
	}
	appLogger.Info("Server gracefully stopped")
}

// serve runs the MCP server plus the optional HTTP and Kafka listeners until
// ctx ends or one of them fails.
func serve(ctx context.Context, cfg *config.AppConfig, a *agents, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Transport.HTTP.Enabled {
		gin.SetMode(gin.ReleaseMode)
		rl := cfg.Middleware.RateLimiter
		limiter, err := ratelimiter.FromConfig(ratelimiter.Config{
			Enabled:   rl.Enabled,
			Algorithm: rl.Algorithm,
			Rate:      rl.Rate,
			Capacity:  rl.Capacity,
			Window:    rl.Window.Std(),
			Buckets:   rl.Buckets,
		})
		if err != nil {
			return err
		}
		log.Info(fmt.Sprintf("HTTP rate limiter: enabled=%v algorithm=%s", rl.Enabled, rl.Algorithm))
		opts := api.RouterOptions{Limiter: limiter, Log: log}
		if cb := cfg.Middleware.CircuitBreaker; cb.Enabled {
			opts.Breaker = circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout.Std())
		}
		router := api.NewRouter(api.NewAPI(a.dispatcher, a.service.Stats, log), opts)
		srv := rhttp.NewServer(router, rhttp.WithAddress(cfg.Transport.HTTP.Address), rhttp.WithLogger(log))
		g.Go(func() error { return srv.Run(gctx, 10*time.Second) })
	}

	if kc := cfg.Transport.Kafka; kc.Enabled {
		if err := kafka.EnsureTopics(ctx, kc, kc.RequestTopic, kc.ResponseTopic); err != nil {
			return err
		}
		requests := kafka_host.NewConsumer(kafka.NewReader(kc, kc.RequestTopic, kc.GroupID), log)
		responses := kafka_host.NewPublisher(kafka.NewWriter(kc, kc.ResponseTopic), kc.ResponseTopic, log)
		defer requests.Close()
		defer responses.Close()
		rc := consumer.NewRequestConsumer(requests, responses, a.dispatcher, log)
		g.Go(func() error { return rc.Run(gctx) })
	}

	// MCP 服务没有 context 参数，结束时取消其他监听。
	mcpServer := api.NewMCPServer(a.dispatcher, cfg.App.Version, log)
	mcpDone := make(chan error, 1)
	go func() { mcpDone <- api.ServeMCP(mcpServer, cfg.Transport.MCP, log) }()
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-mcpDone:
			cancel()
			return err
		}
	})

	return g.Wait()
}
