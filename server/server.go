package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"ChainFM/cache"
	"ChainFM/config"
	"ChainFM/core/entitystore"
	"ChainFM/core/rental"
	"ChainFM/core/segmentgraph"
	"ChainFM/core/stream"
	"ChainFM/core/upload"
	"ChainFM/core/walletauth"
	"ChainFM/db"
	"ChainFM/logger"
	"ChainFM/model"
	"ChainFM/repository"
	"ChainFM/storage"
)

// Start wires every component and runs the HTTP server until SIGINT or
// SIGTERM, then shuts down gracefully.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{Level: logger.InfoLevel})

	gdb, err := db.ConnectGorm(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGorm(gdb)

	if err := db.AutoMigrateModels(gdb,
		&model.Profile{},
		&model.CatalogItem{},
		&model.CatalogSegment{},
		&model.Rental{},
		&model.UploadJob{},
	); err != nil {
		logger.Fatal("Failed to migrate schema", logger.ErrorField(err))
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	var store entitystore.Store
	if cfg.ArkivMode == "memory" {
		logger.Warn("Entity store running in memory mode, data will not survive restarts")
		store = entitystore.NewMemStore()
	} else {
		store = entitystore.NewArkivStore(cfg.ArkivGatewayURL, cfg.ArkivToken, 30*time.Second)
	}

	chainClient, err := rental.DialChain(cfg.ChainRPCURL)
	if err != nil {
		logger.Fatal("Failed to connect to chain RPC",
			logger.String("url", cfg.ChainRPCURL),
			logger.ErrorField(err))
	}
	defer chainClient.Close()

	covers, err := storage.NewCoverStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize cover storage", logger.ErrorField(err))
	}

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		logger.Fatal("Failed to create upload directory",
			logger.String("dir", cfg.UploadDir),
			logger.ErrorField(err))
	}

	profileRepo := repository.NewProfileRepository(gdb)
	catalogRepo := repository.NewCatalogRepository(gdb)
	segmentRepo := repository.NewSegmentRepository(gdb)
	rentalRepo := repository.NewRentalRepository(gdb)
	jobRepo := repository.NewUploadJobRepository(gdb)

	authenticator := walletauth.NewAuthenticator(walletauth.NewRedisNonceStore(redisClient), profileRepo)
	tokens := walletauth.NewTokenIssuer(cfg.JWTSecret)

	callTTL := time.Duration(cfg.ChainCallWindow) * time.Second
	verifier := rental.NewVerifier(chainClient, store, rentalRepo, catalogRepo, profileRepo,
		cfg.RentalContract, callTTL, nil)

	resolver := segmentgraph.NewResolver(store)
	streamCache := cache.NewStreamCache(redisClient)
	gate := stream.NewGate(rentalRepo, catalogRepo, segmentRepo, store, resolver,
		streamCache, cfg.SegmentSec, nil)

	hub := NewProgressHub()
	segmenter := upload.NewFFmpegSegmenter(cfg.FFmpegPath, cfg.SegmentSec)
	pipeline := upload.NewPipeline(jobRepo, catalogRepo, segmentRepo, store,
		segmenter, hub, entitystore.DefaultExpirySeconds)

	apiHandler := NewAPIHandler(cfg, profileRepo, catalogRepo, segmentRepo, rentalRepo,
		jobRepo, authenticator, tokens, verifier, gate, pipeline, covers, hub)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Wallet auth
	router.HandleFunc("/api/auth/nonce", apiHandler.NonceHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/verify", apiHandler.VerifyHandler).Methods(http.MethodPost)

	// Profiles
	router.HandleFunc("/api/profile", apiHandler.AuthMiddleware(apiHandler.GetProfileHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/profile", apiHandler.AuthMiddleware(apiHandler.UpdateProfileHandler)).Methods(http.MethodPatch)

	// Catalog
	router.HandleFunc("/api/catalog", apiHandler.ListCatalogHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/catalog/{id}", apiHandler.GetCatalogItemHandler).Methods(http.MethodGet)

	// Uploads
	router.HandleFunc("/api/upload", apiHandler.AuthMiddleware(apiHandler.UploadMediaHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/upload/jobs", apiHandler.AuthMiddleware(apiHandler.ListUploadJobsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/upload/jobs/{id}", apiHandler.AuthMiddleware(apiHandler.GetUploadJobHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/upload/jobs/{id}/ws", apiHandler.JobProgressWSHandler).Methods(http.MethodGet)

	// Rentals
	router.HandleFunc("/api/rentals/verify", apiHandler.AuthMiddleware(apiHandler.VerifyRentalHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/rentals/{wallet}", apiHandler.AuthMiddleware(apiHandler.ListRentalsHandler)).Methods(http.MethodGet)

	// Streaming, authorized per request via the wallet query parameter
	router.HandleFunc("/stream/{rental_id}/playlist.m3u8", apiHandler.PlaylistHandler).Methods(http.MethodGet)
	router.HandleFunc("/stream/{rental_id}/segment/{sequence}", apiHandler.SegmentHandler).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting",
			logger.String("addr", cfg.ServerAddr),
			logger.String("arkivMode", cfg.ArkivMode),
			logger.String("rentalContract", cfg.RentalContract))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}
	logger.Info("Server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
