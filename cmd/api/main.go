package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/filippmiller/myaitutor-sub000/internal/config"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/account"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/ledger"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/pricing"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/referral"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/usage"
	"github.com/filippmiller/myaitutor-sub000/internal/domain/wallet"
	"github.com/filippmiller/myaitutor-sub000/internal/middleware"
	"github.com/filippmiller/myaitutor-sub000/internal/pkg/database"
	"github.com/filippmiller/myaitutor-sub000/internal/pkg/jwt"
	"github.com/filippmiller/myaitutor-sub000/internal/pkg/logger"
	pkgresponse "github.com/filippmiller/myaitutor-sub000/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.Env)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting billing API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret)

	// ---------- Repositories ----------
	accountRepo := account.NewRepository(db)
	ledgerStore := ledger.NewStore(db)
	tierRepo := pricing.NewRepository(db, redis)
	usageRepo := usage.NewRepository(db)
	referralRepo := referral.NewRepository(db)

	// ---------- Services ----------
	engine := pricing.NewEngine(cfg.BaseRatePerMinute, cfg.Currency)
	walletService := wallet.NewService(ledgerStore, tierRepo, engine, cfg.TrialMinutes)
	usageService := usage.NewService(usageRepo, walletService, accountRepo, engine)
	referralService := referral.NewService(referralRepo, walletService, accountRepo, cfg.ReferrerRewardMinutes, cfg.ReferredRewardMinutes)

	reconciler := wallet.NewReconciler(walletService, cfg.ReconcileInterval)
	reconciler.Start()
	defer reconciler.Stop()

	// ---------- Handlers ----------
	walletHandler := wallet.NewHandler(walletService)
	usageHandler := usage.NewHandler(usageService)
	referralHandler := referral.NewHandler(referralService)
	pricingHandler := pricing.NewHandler(tierRepo)
	accountHandler := account.NewHandler(accountRepo, walletService, referralService)

	authMiddleware := middleware.Auth(jwtService)
	adminMiddleware := middleware.RequireAdmin()

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/signup", accountHandler.Routes())
		r.Mount("/wallet", walletHandler.Routes(authMiddleware))
		r.Mount("/usage", usageHandler.Routes(authMiddleware))
		r.Mount("/referrals", referralHandler.Routes(authMiddleware))
		r.Mount("/pricing", pricingHandler.Routes(authMiddleware, adminMiddleware))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Mount("/wallet", walletHandler.AdminRoutes(authMiddleware, adminMiddleware))
		r.Mount("/referrals", referralHandler.AdminRoutes(authMiddleware, adminMiddleware))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
