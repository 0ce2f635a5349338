package main

import (
	"context"
	"log"
	"os"

	"testcasegpt/internal/api"
	"testcasegpt/internal/config"
	"testcasegpt/internal/metrics"
	"testcasegpt/internal/service/ai"
	"testcasegpt/internal/service/assistant"
	"testcasegpt/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadDotEnv()
	cfgPath := os.Getenv("TESTCASEGPT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	gatewayCfg := cfg.Gateway(os.Getenv)
	gateway, err := ai.NewGateway(context.Background(), gatewayCfg, nil)
	if err != nil {
		log.Fatalf("init llm gateway: %v", err)
	}
	if gateway.Configured() {
		log.Printf("llm provider: %s (model %s)", gateway.Provider(), gateway.Model())
	} else {
		log.Printf("no llm provider configured: analysis is disabled, chat-sql uses the keyword fallback")
	}

	workerCfg := worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: cfg.BasicConfig.WorkerIdleDuration(),
	}
	dispatcher := worker.NewDispatcher(workerCfg)
	defer dispatcher.Stop()

	assistantService := assistant.NewFromConfig(cfg, gateway, dispatcher)
	handlers := api.NewHandler(assistantService, cfg.BasicConfig.MaxUploadBytes())

	router := gin.Default()
	router.Use(metrics.GinMiddleware())
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
