package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"planit/internal/adapter/httpapi"
	"planit/internal/adapter/store"
	"planit/internal/adapter/tool"
	"planit/internal/infra/config"
	"planit/internal/infra/logger"
	"planit/internal/infra/tracer"
	"planit/internal/security"
	"planit/internal/usecase"
)

func runServe(cfgPath string) error {
	// 1. Config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(sctx); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
	}()

	// 3. Store
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o700); err != nil {
		return fmt.Errorf("store dir: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	auth := httpapi.NewStaticTokenAuth(cfg.Auth.Tokens)
	if err := auth.SeedUsers(ctx, st); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if len(cfg.Auth.Tokens) == 0 {
		log.Warn("no auth tokens configured; every /v1 request will be rejected")
	}

	// 4. Model
	model, err := initModel(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 5. Tools
	study, err := tool.NewStudyTools(st, tool.StudyToolsConfig{DefaultTimezone: cfg.Chat.DefaultTimezone}, log)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	registry, err := tool.NewRegistry(log, cfg.Chat.ToolTimeout, study.Tools()...)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if cfg.Security.AuditLog != "" {
		audit, err := security.NewFileAuditLogger(cfg.Security.AuditLog)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer audit.Close()
		registry.WithAudit(audit)
	}

	// 6. Use cases
	loc, err := time.LoadLocation(cfg.Chat.DefaultTimezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Model:             model,
		Tools:             registry,
		Budgeter:          usecase.NewContextBudgeter(orchestratorCeiling(cfg), log),
		SystemInstruction: cfg.Chat.SystemInstruction,
		Logger:            log,
		MaxIterations:     cfg.Chat.MaxIterations,
		ModelTimeout:      cfg.Chat.ModelTimeout,
	})

	extractionEnabled := cfg.FeatureEnabled(config.FeatureStructuredExtraction)
	var extractor *usecase.Extractor
	if extractionEnabled {
		extractor = usecase.NewExtractor(model, cfg.Extraction.Timeout, log)
	}

	chat := usecase.NewChatService(usecase.ChatServiceDeps{
		Turns:        st,
		Courses:      st,
		Orchestrator: orchestrator,
		Extractor:    extractor,
		Files: usecase.FilePolicy{
			AllowedMIMETypes: cfg.Server.AllowedMIMETypes,
			MaxBytes:         cfg.Server.MaxUploadBytes,
		},
		Locker:            usecase.NewConversationLocker(),
		ImportInstruction: cfg.Extraction.CourseInstruction,
		Location:          loc,
		Logger:            log,
	})

	if limit := usecase.UploadLimitForCeiling(orchestratorCeiling(cfg)); cfg.Server.MaxUploadBytes > limit {
		log.Warn("server.max_upload_bytes exceeds what the context ceiling can carry; lowering",
			"configured", cfg.Server.MaxUploadBytes, "effective", limit)
	}

	// 7. HTTP
	srv := httpapi.NewServer(httpapi.ServerDeps{
		Chat:              chat,
		Auth:              auth,
		Ping:              st.Ping,
		Server:            cfg.Server,
		Security:          cfg.Security,
		ExtractionEnabled: extractionEnabled,
		Logger:            log,
	})

	log.Info("planit starting",
		"model", cfg.LLM.Model,
		"tools", len(registry.Names()),
		"store", cfg.Store.Path,
		"structured_extraction", extractionEnabled,
	)
	return srv.Start(ctx)
}

func orchestratorCeiling(cfg *config.Config) int {
	if cfg.Chat.ContextCeilingBytes > 0 {
		return cfg.Chat.ContextCeilingBytes
	}
	return usecase.DefaultContextCeiling
}
