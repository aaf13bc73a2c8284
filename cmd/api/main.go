package main

import (
	"log"
	"os"

	_ "tabel/api/swagger" // swagger docs
	"tabel/internal/clock"
	"tabel/internal/database"
	"tabel/internal/handler"
	"tabel/internal/middleware"
	"tabel/internal/render"
	"tabel/internal/repository"
	"tabel/internal/service"
	"tabel/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Tabel API
// @version         1.0
// @description     Timesheet and vacation document workflow for university staff.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "tabel"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	renderDir := os.Getenv("RENDER_DIR")
	if renderDir == "" {
		renderDir = "rendered"
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()
	notifier := websocket.NewNotifier(wsHub)

	// Set up dependencies (Repository -> Service -> Handler)
	clk := clock.System()
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	staffRepo := repository.NewStaffRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	lockRepo := repository.NewLockRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	userService := service.NewUserService(userRepo, db)
	staffService := service.NewStaffService(staffRepo, auditRepo, txManager)
	auditService := service.NewAuditService(auditRepo)
	conflictChecker := service.NewConflictChecker(attendanceRepo, documentRepo)
	lockRegistry := service.NewLockRegistry(lockRepo, auditRepo, txManager, notifier, clk)
	attendanceService := service.NewAttendanceService(attendanceRepo, staffRepo, auditRepo, txManager, lockRegistry, conflictChecker, notifier, clk)
	workflowService := service.NewWorkflowService(
		documentRepo, attendanceRepo, staffRepo, auditRepo, txManager,
		lockRegistry, conflictChecker, notifier,
		render.NewHTMLRenderer(renderDir), service.IdentityDeclension(), clk,
	)
	scheduleService := service.NewScheduleService(attendanceService, conflictChecker)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService)
	staffHandler := handler.NewStaffHandler(staffService)
	attendanceHandler := handler.NewAttendanceHandler(attendanceService)
	timesheetHandler := handler.NewTimesheetHandler(lockRegistry, attendanceService)
	documentHandler := handler.NewDocumentHandler(workflowService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService)
	auditHandler := handler.NewAuditHandler(auditService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:5174"} // Frontend URL
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
	userHandler.RegisterRoutes(router.Group(""))
	staffHandler.RegisterRoutes(router.Group(""))
	attendanceHandler.RegisterRoutes(router.Group(""))
	timesheetHandler.RegisterRoutes(router.Group(""))
	documentHandler.RegisterRoutes(router.Group(""))
	scheduleHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
