package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ratelimit-gateway/admission-gateway/admission"
	"github.com/ratelimit-gateway/admission-gateway/config"
	"github.com/ratelimit-gateway/admission-gateway/database"
	"github.com/ratelimit-gateway/admission-gateway/handlers"
	"github.com/ratelimit-gateway/admission-gateway/kafka"
	"github.com/ratelimit-gateway/admission-gateway/middleware"
	"github.com/ratelimit-gateway/admission-gateway/models"
	"github.com/ratelimit-gateway/admission-gateway/providers"
	"github.com/ratelimit-gateway/admission-gateway/proxy"
	"github.com/ratelimit-gateway/admission-gateway/ratelimiter"
	"github.com/ratelimit-gateway/admission-gateway/reputation"
	"github.com/ratelimit-gateway/admission-gateway/repository"
	"github.com/ratelimit-gateway/admission-gateway/torlist"
)

func main() {
	cfg := config.Load()

	logger := log.New(os.Stdout, "[ADMISSION-GATEWAY] ", log.LstdFlags|log.Lshortfile)

	db, err := database.New(cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("PostgreSQL connection failed: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		logger.Fatalf("Schema initialization failed: %v", err)
	}
	defer db.Close()
	logger.Println("Connected to PostgreSQL")

	counterRepo := repository.NewCounterRepository(db.Conn())
	banRepo := repository.NewBanRepository(db.Conn())
	keyRepo := repository.NewAPIKeyRepository(db.Conn())
	logRepo := repository.NewRequestLogRepository(db.Conn())
	geoRepo := repository.NewGeoBlockRepository(db.Conn())
	repRepo := repository.NewReputationRepository(db.Conn())

	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := cache.Ping(context.Background()).Err(); err != nil {
		logger.Printf("Warning: Redis connection failed: %v. Counter Store will read Postgres directly.", err)
	}
	defer cache.Close()

	counters := ratelimiter.New(counterRepo, cache)

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	eventHandler := &kafka.DefaultEventHandler{}
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, "admission-gateway-consumers", eventHandler)
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()
	consumer.Start(consumerCtx)
	defer consumer.Close()

	providerTimeout := cfg.ProviderTimeout()
	registry := providers.NewRegistry(
		providers.NewThrottled(providers.NewPrivacyGuard(cfg.PrivacyProviderToken, providerTimeout), 5, 2),
		providers.NewThrottled(providers.NewRiskScore(cfg.RiskScoreProviderKey, providerTimeout), 5, 2),
	)
	asnLookup := providers.NewFreeASN(providerTimeout)

	repEngine := reputation.New(repRepo, asnLookup, registry, producer, cfg.TorListEnabled, time.Duration(cfg.IPReputationTTLSeconds)*time.Second)

	torUpdater := torlist.New(
		repRepo,
		cfg.TorListURL,
		time.Duration(cfg.TorListIntervalSeconds)*time.Second,
		time.Duration(cfg.TorFetchTimeoutSeconds)*time.Second,
		cfg.TorListEnabled,
	)
	torCtx, cancelTor := context.WithCancel(context.Background())
	defer cancelTor()
	torUpdater.Start(torCtx)

	if cfg.GeoBlockEnabled {
		if err := geoRepo.SetEnabled(context.Background(), true); err != nil {
			logger.Printf("Warning: failed to apply startup geo-block setting: %v", err)
		}
		for _, code := range cfg.GeoBlockCountries {
			if err := geoRepo.Add(context.Background(), code, ""); err != nil {
				logger.Printf("Warning: failed to seed geo-block country %s: %v", code, err)
			}
		}
	}

	detector := admission.NewAbuseDetector(logRepo, banRepo, models.AbuseDetectorConfig{
		BurstThreshold:      cfg.BurstThreshold,
		BurstWindowSeconds:  cfg.BurstWindowSeconds,
		BurstMultiplier:     cfg.BurstMultiplier,
		AutoBanDurationSecs: cfg.AutoBanDurationSecs,
	})

	pipeline := admission.New(
		banRepo,
		geoRepo,
		keyRepo,
		counters,
		logRepo,
		detector,
		producer,
		models.RateLimitConfig{Limit: cfg.RateLimitMax, WindowSeconds: cfg.RateLimitWindow, Sliding: cfg.RateLimitSliding},
		cfg.LogAllRequests,
	)

	adminHandler := handlers.NewAdminHandler(keyRepo, banRepo, geoRepo, repRepo, logRepo)
	admissionMiddleware := middleware.NewAdmissionMiddleware(pipeline)
	loggingMiddleware := middleware.NewLoggingMiddleware(logger)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", adminHandler.HealthCheck)

	mux.HandleFunc("/reputation", func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address == "" {
			http.Error(w, `{"error": "address is required"}`, http.StatusBadRequest)
			return
		}
		bypass := r.URL.Query().Get("bypass_cache") == "true"
		classification, err := repEngine.Classify(r.Context(), address, bypass)
		if err != nil {
			http.Error(w, `{"error": "classification failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(classification)
	})

	mux.HandleFunc("/admin/keys", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			adminHandler.ListKeys(w, r)
		case http.MethodPost:
			adminHandler.CreateKey(w, r)
		default:
			http.Error(w, `{"error": "method not allowed"}`, http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/admin/keys/get", adminHandler.GetKey)
	mux.HandleFunc("/admin/keys/rotate", adminHandler.RotateKey)
	mux.HandleFunc("/admin/keys/deactivate", adminHandler.DeactivateKey)
	mux.HandleFunc("/admin/keys/delete", adminHandler.DeleteKey)

	mux.HandleFunc("/admin/bans", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			adminHandler.ListBans(w, r)
		case http.MethodPost:
			adminHandler.CreateBan(w, r)
		default:
			http.Error(w, `{"error": "method not allowed"}`, http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/admin/bans/remove", adminHandler.RemoveBan)

	mux.HandleFunc("/admin/geo-block", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			adminHandler.GetGeoBlock(w, r)
		case http.MethodPost:
			adminHandler.SetGeoBlock(w, r)
		default:
			http.Error(w, `{"error": "method not allowed"}`, http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/admin/geo-block/countries/add", adminHandler.AddGeoBlockCountry)
	mux.HandleFunc("/admin/geo-block/countries/remove", adminHandler.RemoveGeoBlockCountry)
	mux.HandleFunc("/admin/geo-block/countries/replace", adminHandler.ReplaceGeoBlockCountries)

	mux.HandleFunc("/admin/manual-blocks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			adminHandler.ListManualBlocks(w, r)
		case http.MethodPost:
			adminHandler.AddManualBlock(w, r)
		case http.MethodDelete:
			adminHandler.RemoveManualBlock(w, r)
		default:
			http.Error(w, `{"error": "method not allowed"}`, http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/admin/stats", adminHandler.Aggregate)

	if reverseProxy, err := proxy.NewReverseProxy(cfg.BackendURL); err != nil {
		logger.Printf("Warning: failed to create reverse proxy: %v", err)
	} else {
		mux.Handle("/api/", reverseProxy)
	}

	var handlerChain http.Handler = mux
	handlerChain = middleware.CORS(handlerChain)
	handlerChain = admissionMiddleware.Admit(handlerChain)
	handlerChain = loggingMiddleware.Log(handlerChain)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handlerChain,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("Starting admission gateway on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Server forced to shutdown: %v", err)
	}

	// Shutdown reverses startup: stop the Tor-list updater first, letting an
	// in-flight fetch finish, before closing the stores it writes to.
	torUpdater.Stop()

	logger.Println("Server exited")
}
