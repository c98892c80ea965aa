package main

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devunity/auth"
	"devunity/internal/analytics"
	"devunity/internal/chat"
	"devunity/internal/config"
	"devunity/internal/db"
	"devunity/internal/document"
	"devunity/internal/folder"
	"devunity/internal/gitmirror"
	"devunity/internal/health"
	"devunity/internal/invitation"
	"devunity/internal/logger"
	"devunity/internal/middleware"
	"devunity/internal/permission"
	"devunity/internal/realtime"
	"devunity/internal/storage"
	"devunity/internal/user"
	"devunity/internal/worker"
	"devunity/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	shutdownTimeout     = 5 * time.Second
	sessionPurgeEvery   = time.Hour
	healthRefreshPeriod = 15 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)
	log.Info("starting devunity", zap.Stringer("config", cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	database, err := db.Connect(cfg.DSN(), cfg.IsProduction(), log)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close(database, log)

	// Migrate database schema
	if err := db.Migrate(database, log); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}

	// Seed database with initial data (for development)
	if !cfg.IsProduction() {
		if err := db.SeedData(ctx, database, log); err != nil {
			log.Warn("seeding failed", zap.Error(err))
		}
	}

	// Initialize Redis
	redisClient := redis.Connect(ctx, cfg.RedisAddress, log)
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := redis.NewCache(redisClient, log)

	avatarStore, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		PublicURL: cfg.MinioPublicURL,
	}, log)
	if err != nil {
		log.Warn("avatar storage unavailable", zap.Error(err))
	}
	var avatars user.AvatarStore
	if avatarStore != nil {
		avatars = avatarStore
	}

	pool := worker.NewWorkerPool(cfg.WorkerPoolSize, log.Named("worker"))
	defer pool.Shutdown()

	// Initialize repositories
	userRepo := user.NewRepository(database)
	docRepo := document.NewRepository(database)
	folderRepo := folder.NewRepository(database)
	invitationRepo := invitation.NewRepository(database)
	messageRepo := chat.NewRepository(database)
	usageRepo := analytics.NewRepository(database)

	// Initialize services
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL)
	userService := user.NewService(userRepo, tokens, avatars, pool, log.Named("user"))
	resolver := permission.NewResolver(folderRepo)
	docService := document.NewService(docRepo, resolver, folderRepo, userService, cache, log.Named("document"))
	folderService := folder.NewService(folderRepo, resolver, userService, log.Named("folder"))
	invitationService := invitation.NewService(invitationRepo, cache, log.Named("invitation"))
	usageService := analytics.NewService(usageRepo, cache, log.Named("analytics"))

	registry := realtime.NewRegistry(log.Named("realtime"))
	chatService := chat.NewService(messageRepo, docService, folderService, registry, log.Named("chat"))
	hub := realtime.NewHub(registry, docService, folderService, chatService, log.Named("realtime"))

	githubClient, err := gitmirror.NewGitHubClient(cfg.GithubAPIURL, cfg.GithubOAuthURL, cfg.GithubClientID, cfg.GithubClientSecret)
	if err != nil {
		log.Fatal("invalid GitHub API URL", zap.Error(err))
	}
	mirrorService := gitmirror.NewService(
		githubClient,
		gitmirror.NewExecRunner(log.Named("git")),
		gitmirror.NewMirror(cfg.MirrorDir),
		folderService,
		docService,
		pool,
		cfg.GithubOAuthURL,
		log.Named("gitmirror"),
	)

	// Initialize handlers
	userHandler := user.NewHandler(userService)
	docHandler := document.NewHandler(docService)
	folderHandler := folder.NewHandler(folderService)
	invitationHandler := invitation.NewHandler(invitationService)
	chatHandler := chat.NewHandler(chatService)
	usageHandler := analytics.NewHandler(usageService)
	socketHandler := realtime.NewHandler(hub, cfg.ClientURL)
	githubHandler := gitmirror.NewHandler(mirrorService)
	authn := &middleware.Auth{Sessions: userService}

	checker := health.NewChecker(2 * time.Second)
	checker.Add("database", func(ctx context.Context) error { return db.Ping(ctx, database) })
	if redisClient != nil {
		checker.Add("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(log.Named("http")))
	router.Use(middleware.ErrorHandler(log, cfg.IsProduction()))
	router.Use(middleware.Recovery(log, cfg.IsProduction()))

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-GitHub-Token"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.ClientURL == "" || cfg.ClientURL == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = []string{cfg.ClientURL}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", health.Liveness)
	router.GET("/readyz", checker.Readiness)
	router.GET("/socket", authn.AuthMiddleWare(), socketHandler.Serve)

	api := router.Group("/api")
	api.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"autosaveDebounceMs": cfg.AutosaveDebounce.Milliseconds(),
			"socketPath":         "/socket",
		})
	})

	// Auth routes
	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", userHandler.Register)
	authRoutes.POST("/login", userHandler.Login)
	authRoutes.POST("/logout", authn.AuthMiddleWare(), userHandler.Logout)
	authRoutes.GET("/me", authn.AuthMiddleWare(), userHandler.GetProfile)
	authRoutes.POST("/avatar", authn.AuthMiddleWare(), userHandler.UploadAvatar)

	protected := api.Group("", authn.AuthMiddleWare())
	protected.GET("/users/search", userHandler.SearchUsers)

	documents := protected.Group("/documents")
	documents.GET("", docHandler.ListDocuments)
	documents.POST("", docHandler.Create)
	documents.POST("/import", docHandler.Import)
	documents.GET("/:id", docHandler.ShowDocument)
	documents.PUT("/:id", docHandler.Update)
	documents.DELETE("/:id", docHandler.DeleteDocument)
	documents.GET("/:id/collaborators", docHandler.ListCollaborators)
	documents.POST("/:id/collaborators", docHandler.AddCollaborator)
	documents.DELETE("/:id/collaborators/:userId", docHandler.RemoveCollaborator)
	documents.GET("/:id/export", docHandler.Export)
	documents.GET("/:id/export/:format", docHandler.Export)
	documents.GET("/:id/activity", docHandler.ListActivity)
	documents.GET("/:id/versions", docHandler.ListVersions)
	documents.POST("/:id/versions", docHandler.SaveVersion)
	documents.GET("/:id/versions/:versionId", docHandler.ShowVersion)
	documents.POST("/:id/versions/:versionId/restore", docHandler.RestoreVersion)
	documents.GET("/:id/messages", chatHandler.ListDocumentMessages)
	documents.POST("/:id/messages", chatHandler.PostDocumentMessage)

	folders := protected.Group("/folders")
	folders.GET("", folderHandler.ListFolders)
	folders.POST("", folderHandler.Create)
	folders.GET("/:id", folderHandler.ShowFolder)
	folders.PUT("/:id", folderHandler.Update)
	folders.DELETE("/:id", folderHandler.DeleteFolder)
	folders.GET("/:id/documents", folderHandler.Tree)
	folders.GET("/:id/collaborators", folderHandler.ListCollaborators)
	folders.POST("/:id/collaborators", folderHandler.AddCollaborator)
	folders.DELETE("/:id/collaborators/:userId", folderHandler.RemoveCollaborator)
	folders.GET("/:id/messages", chatHandler.ListFolderMessages)
	folders.POST("/:id/messages", chatHandler.PostFolderMessage)

	invitations := protected.Group("/invitations")
	invitations.GET("", invitationHandler.ListPending)
	invitations.POST("/:id/accept", invitationHandler.Accept)
	invitations.POST("/:id/reject", invitationHandler.Reject)

	protected.GET("/analytics/usage", usageHandler.Usage)

	githubHandler.RegisterRoutes(protected.Group("/github"))

	// Server configuration
	servers := []*http.Server{{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router.Handler(),
	}}

	// cursor and presence traffic can be split onto its own port
	if cfg.CursorPort != "" && cfg.CursorPort != cfg.ServerPort {
		cursorRouter := gin.New()
		cursorRouter.Use(middleware.ErrorHandler(log, cfg.IsProduction()))
		cursorRouter.Use(middleware.Recovery(log, cfg.IsProduction()))
		cursorRouter.GET("/socket", authn.AuthMiddleWare(), socketHandler.Serve)
		servers = append(servers, &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.CursorPort),
			Handler: cursorRouter.Handler(),
		})
	}

	// Start servers
	for _, server := range servers {
		go func(server *http.Server) {
			log.Info("server listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
				log.Fatal("server failed to start", zap.String("addr", server.Addr), zap.Error(err))
			}
		}(server)
	}

	var grpcServer *health.GRPCServer
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			log.Fatal("grpc listen failed", zap.Error(err))
		}
		grpcServer = health.NewGRPCServer(checker, log.Named("grpc"))
		go func() {
			if err := grpcServer.Serve(ctx, lis, healthRefreshPeriod); err != nil {
				log.Error("grpc server stopped", zap.Error(err))
			}
		}()
	}

	go purgeSessions(ctx, userService, log)

	// Graceful shutdown
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Stop()
	}
	for _, server := range servers {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", zap.String("addr", server.Addr), zap.Error(err))
		}
	}
	log.Info("Server shutdown complete")
}

func purgeSessions(ctx context.Context, users user.Service, log *zap.Logger) {
	ticker := time.NewTicker(sessionPurgeEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := users.PurgeExpiredSessions(ctx)
			if err != nil {
				log.Warn("session purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("expired sessions purged", zap.Int64("count", n))
			}
		}
	}
}
