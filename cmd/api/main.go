package main

import (
	"log"
	"os"

	_ "backend/api/swagger" // swagger docs
	"backend/internal/database"
	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/paymongo"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// @title           Expense Workflow API
// @version         1.0
// @description     Expense report submission, budget-aware approval workflow, and reimbursement tracking.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	var logger *zap.Logger
	var err error
	if os.Getenv("GIN_MODE") == "release" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dsn := "postgres://" + env("DB_USER", "postgres") + ":" + env("DB_PASSWORD", "postgres") +
		"@" + env("DB_HOST", "localhost") + ":" + env("DB_PORT", "5432") +
		"/" + env("DB_NAME", "postgres") + "?sslmode=" + env("DB_SSLMODE", "disable")

	db, err := database.NewConnection(dsn)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	logger.Info("connected to postgres")

	if err := database.Seed(db, env("SEED_PASSWORD", "password123"), logger); err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()

	// Payment gateway: real client when a secret key is configured,
	// otherwise a noop that keeps manual reimbursement working.
	var gateway paymongo.Gateway
	if secretKey := os.Getenv("PAYMONGO_SECRET_KEY"); secretKey != "" {
		gateway = paymongo.NewClient(env("PAYMONGO_BASE_URL", "https://api.paymongo.com/v1"), secretKey, logger)
		logger.Info("paymongo gateway enabled")
	} else {
		gateway = paymongo.NewNoopGateway()
		logger.Warn("PAYMONGO_SECRET_KEY not set; checkout sessions disabled")
	}

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	reportRepo := repository.NewReportRepository(db)
	budgetRepo := repository.NewBudgetRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	budgetService := service.NewBudgetService(budgetRepo, reportRepo, auditRepo, txManager)
	reportService := service.NewReportService(reportRepo, approvalRepo, auditRepo, budgetService, txManager)
	workflowService := service.NewWorkflowService(reportRepo, approvalRepo, budgetRepo, auditRepo, budgetService, txManager, wsHub, logger)
	reimbursementService := service.NewReimbursementService(
		reportRepo, paymentRepo, approvalRepo, userRepo, auditRepo,
		budgetService, gateway, txManager, wsHub, logger,
		env("APP_BASE_URL", "http://localhost:8080"),
	)
	auditService := service.NewAuditService(auditRepo)

	// Initialize Handlers
	reportHandler := handler.NewReportHandler(reportService, budgetService)
	workflowHandler := handler.NewWorkflowHandler(workflowService)
	reimbursementHandler := handler.NewReimbursementHandler(reimbursementService)
	budgetHandler := handler.NewBudgetHandler(budgetService)
	auditHandler := handler.NewAuditHandler(auditService)
	webhookHandler := handler.NewWebhookHandler(reimbursementService, os.Getenv("PAYMONGO_WEBHOOK_SECRET"), logger)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	root := router.Group("")
	reportHandler.RegisterRoutes(root)
	workflowHandler.RegisterRoutes(root)
	reimbursementHandler.RegisterRoutes(root)
	budgetHandler.RegisterRoutes(root)
	auditHandler.RegisterRoutes(root)
	webhookHandler.RegisterRoutes(root)

	port := env("PORT", "8080")
	logger.Info("server listening", zap.String("port", port))
	if err := router.Run(":" + port); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
