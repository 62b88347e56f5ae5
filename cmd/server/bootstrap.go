package main

import (
	"github.com/assetlens/backend/internal/config"
	"github.com/assetlens/backend/internal/handlers"
	"github.com/assetlens/backend/internal/models"
	"github.com/assetlens/backend/internal/services"
	"github.com/assetlens/backend/internal/utils"
	"github.com/assetlens/backend/pkg/logger"
)

// appServices holds the initialized services and handlers the router needs.
type appServices struct {
	pipeline      *services.Pipeline
	digestService *services.DigestService
	taskQueue     services.TaskQueue
	worker        *services.Worker

	authHandler         *handlers.AuthHandler
	feedbackHandler     *handlers.FeedbackHandler
	policyHandler       *handlers.PolicyHandler
	llmConfigHandler    *handlers.LLMConfigHandler
	imBotHandler        *handlers.IMBotHandler
	systemConfigHandler *handlers.SystemConfigHandler
	systemLogHandler    *handlers.SystemLogHandler
	digestHandler       *handlers.DigestHandler
	userHandler         *handlers.UserHandler
}

// bootstrap initializes the database, services and schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	db := models.GetDB()

	services.InitSystemLogger(db)
	services.StartLogCleanupScheduler(db)

	// Analysis pipeline: feedback store + merged policy view + LLM generator.
	feedbackService := services.NewFeedbackService(db)
	policyService := services.NewPolicyService(db)
	merger := services.NewPolicyMerger(policyService)
	aiService := services.NewAIService(db, &cfg.LLM)
	generator := services.NewPolicyGenerator(aiService)

	configService := services.NewSystemConfigService(db)
	pipeline := services.NewPipeline(feedbackService, merger, generator)
	pipeline.SetRetryPolicy(configService.GenerationMaxAttempts(), configService.GenerationBackoff())

	// Task queue: asynq with Redis, in-process fallback without it.
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(pipeline.HandleTask)
	}

	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(pipeline.HandleTask)
			if err := worker.Start(); err != nil {
				logger.Errorf("Failed to start task worker: %v", err)
			}
		}
	}

	// Daily digest on business days.
	notificationService := services.NewNotificationService(db)
	digestService := services.NewDigestService(db, feedbackService, policyService, aiService, notificationService, services.NewWorkdayService())
	digestService.StartScheduler()

	authService := services.NewAuthService(db, &cfg.JWT, &cfg.LDAP)
	if err := authService.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		pipeline:      pipeline,
		digestService: digestService,
		taskQueue:     taskQueue,
		worker:        worker,

		authHandler:         handlers.NewAuthHandler(authService),
		feedbackHandler:     handlers.NewFeedbackHandler(db),
		policyHandler:       handlers.NewPolicyHandler(db, pipeline),
		llmConfigHandler:    handlers.NewLLMConfigHandler(db),
		imBotHandler:        handlers.NewIMBotHandler(db),
		systemConfigHandler: handlers.NewSystemConfigHandler(db, digestService, pipeline),
		systemLogHandler:    handlers.NewSystemLogHandler(db),
		digestHandler:       handlers.NewDigestHandler(digestService),
		userHandler:         handlers.NewUserHandler(db),
	}
}

// shutdown stops schedulers and drains the task queue.
func (s *appServices) shutdown() {
	s.digestService.StopScheduler()

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Errorf("Failed to close task queue: %v", err)
		}
	}
	logger.Info().Msg("All schedulers stopped")
}
