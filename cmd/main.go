package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/engageautomations/ghl-oauth-bridge/internal/config"
	"github.com/engageautomations/ghl-oauth-bridge/internal/controllers"
	"github.com/engageautomations/ghl-oauth-bridge/internal/ghl"
	"github.com/engageautomations/ghl-oauth-bridge/internal/models"
	"github.com/engageautomations/ghl-oauth-bridge/internal/scheduler"
	"github.com/engageautomations/ghl-oauth-bridge/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	db                     *gorm.DB
	configuration          *config.Config
	installationStore      store.InstallationStore
	exchanger              *ghl.Exchanger
	apiClient              *ghl.Client
	refreshScheduler       *scheduler.RefreshScheduler
	oauthController        controllers.OAuthController
	installationController controllers.InstallationController
	productController      controllers.ProductController
	mediaController        controllers.MediaController
	priceController        controllers.PriceController
)

// @title GoHighLevel OAuth Bridge
// @version 1.0
// @description OAuth token lifecycle manager and API proxy for GoHighLevel marketplace installations
// @host localhost:8080
// @BasePath /
func main() {
	// Load environment variables
	loadDotenvFile()

	// Initialize logger
	setUpLogger()

	// Load configuration
	configuration = loadConfig()

	// Initialize database connection; a failed connection is survivable
	// because the store falls back to memory
	setupDatabase(configuration)

	// Initialize token lifecycle components
	installationStore = store.NewStore(db)
	exchanger = ghl.NewExchanger(configuration)
	apiClient = ghl.NewClient(installationStore, exchanger, configuration)

	// Start the proactive refresh loop
	refreshScheduler = scheduler.New(installationStore, apiClient, configuration.RefreshInterval, configuration.RefreshPadding)
	if err := refreshScheduler.Start(); err != nil {
		log.Fatalf("Failed to start refresh scheduler: %v", err)
	}
	defer refreshScheduler.Stop()

	// Initialize controllers
	oauthController = controllers.NewOAuthController(exchanger, installationStore, configuration)
	installationController = controllers.NewInstallationController(installationStore, apiClient, configuration.RefreshPadding)
	productController = controllers.NewProductController(apiClient)
	mediaController = controllers.NewMediaController(apiClient)
	priceController = controllers.NewPriceController(apiClient)

	// Initialize Gin router
	var router *gin.Engine = setupRouter()

	// Start the server
	log.Infof("Starting server on %s:%d", configuration.Host, configuration.Port)
	router.Run(fmt.Sprintf("%v:%d", configuration.Host, configuration.Port))
}

// checkPanicErr checks if an error occurred and panics if it did
func checkPanicErr(err error) {
	if err != nil {
		panic(err)
	}
}

// loadDotenvFile loads environment variables from a .env file
// If the file is not found, it will log a warning and use system environment variables
func loadDotenvFile() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using system environment variables")
	}
}

// setUpLogger initializes the logger with a JSON formatter and sets the log level based on the environment
func setUpLogger() {
	log.SetFormatter(&log.JSONFormatter{})
	environment := config.GetEnvWithDefault("APP_ENV", "development")
	switch environment {
	case "development":
		log.SetLevel(log.DebugLevel)
	case "production":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// loadConfig loads the application configuration from environment variables
// It returns a Config struct or panics if there is an error
func loadConfig() *config.Config {
	log.Info("Loading configuration from environment variables")
	conf, err := config.LoadConfig()
	checkPanicErr(err)
	return conf
}

// setupDatabase opens the durable store: postgres when DATABASE_URL is set,
// a local sqlite file otherwise. On failure db stays nil and the installation
// store runs memory-only.
func setupDatabase(conf *config.Config) {
	var err error
	if conf.DatabaseURL != "" {
		db, err = gorm.Open(postgres.Open(conf.DatabaseURL), &gorm.Config{})
	} else {
		db, err = gorm.Open(sqlite.Open("installations.sqlite"), &gorm.Config{})
	}
	if err != nil {
		log.WithError(err).Error("Database connection failed, installations will be held in memory only")
		db = nil
		return
	}

	// Migrate the schema
	checkPanicErr(db.AutoMigrate(&models.Installation{}))
	log.Info("Database connected and migrated")
}

// setupRouter initializes the Gin router and sets up the routes
// It returns the configured router
func setupRouter() *gin.Engine {
	// Initialize Gin router
	router := gin.Default()

	// Define routes
	setupRoutes(router)

	return router
}

// setupRoutes defines the routes for the Gin router
func setupRoutes(router *gin.Engine) {
	// Health check endpoint
	router.GET("/health", healthCheckHandler)

	// Installation state (summaries only, no tokens)
	router.GET("/installations", installationController.ListInstallations)
	router.GET("/installations/:id", installationController.GetInstallation)
	router.POST("/installations/:id/refresh", installationController.RefreshInstallation)

	api := router.Group("/api")
	{
		oauth := api.Group("/oauth")
		{
			oauth.GET("/callback", oauthController.HandleCallback)
			oauth.GET("/authorize-url", oauthController.GetAuthorizeURL)
		}

		products := api.Group("/products")
		{
			products.POST("", productController.CreateProduct)
			products.GET("", productController.ListProducts)
			products.GET("/:productId", productController.GetProduct)
			products.PUT("/:productId", productController.UpdateProduct)
			products.DELETE("/:productId", productController.DeleteProduct)

			products.POST("/:productId/price", priceController.CreatePrice)
			products.GET("/:productId/price", priceController.ListPrices)
			products.PUT("/:productId/price/:priceId", priceController.UpdatePrice)
			products.DELETE("/:productId/price/:priceId", priceController.DeletePrice)
		}

		medias := api.Group("/medias")
		{
			medias.POST("/upload", mediaController.UploadMedia)
			medias.GET("", mediaController.ListMedia)
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// healthCheckHandler handles the health check endpoint
// @Summary Health check
// @Description Check if the service is running
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "ghl-oauth-bridge",
	})
}
