package main

import (
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"momali-api/config"
	"momali-api/handlers"
	"momali-api/jobs"
	"momali-api/middleware"
	"momali-api/providers"
	"momali-api/routes"
	"momali-api/services"
	"momali-api/store"
	"momali-api/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	settings, err := config.LoadSettings()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	db, err := config.InitDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	log.Println("✅ Database connected successfully")

	if err := config.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	cipher, err := utils.NewTokenCipher(settings.OBClientSecret)
	if err != nil {
		log.Fatal("Failed to initialize token cipher:", err)
	}

	st := store.NewPostgres(db)
	provider := providers.NewFinHubProvider(settings)

	consentService := services.NewConsentService(st, provider)
	tokenService := services.NewTokenService(st, provider, cipher, settings.TokenRefreshSafetyWindow)
	syncService := services.NewSyncService(st, provider)
	emailService := services.NewEmailService(settings.SendgridAPIKey, settings.EmailFrom)

	wsHandler := handlers.NewWSHandler()
	obHandler := handlers.NewOpenBankingHandler(st, consentService, tokenService, syncService)
	authHandler := handlers.NewAuthHandler(st, consentService, emailService, settings)

	background := jobs.NewJobs(st, consentService, tokenService, syncService, settings.TokenRefreshSafetyWindow)
	background.SetBroadcaster(wsHandler)

	scheduler := jobs.NewScheduler(background,
		settings.TokenSweepInterval, settings.SyncSweepInterval, settings.AlertSweepInterval)
	scheduler.Start()
	defer scheduler.Stop()

	router := gin.Default()

	allowedOrigins := settings.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	log.Printf("🌍 CORS: Allowing origins:")
	for _, origin := range allowedOrigins {
		log.Printf("   - %s", origin)
	}

	corsConfig := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
	router.Use(cors.New(corsConfig))

	router.Use(middleware.RateLimiter(100, time.Minute))

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/")
		auth.Use(middleware.RateLimiter(10, time.Minute))
		routes.SetupAuthRoutes(auth, authHandler)

		routes.SetupCallbackRoutes(v1, obHandler)
		routes.SetupWSRoutes(v1, wsHandler)

		protected := v1.Group("/")
		protected.Use(middleware.RequireAuth(settings.JWTSecret))
		{
			routes.SetupOpenBankingRoutes(protected, obHandler)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	log.Printf("🚀 Server starting on port %s...", settings.Port)
	if err := router.Run(":" + settings.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
