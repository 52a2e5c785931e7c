package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risapp/ris-api/internal/config"
	"github.com/risapp/ris-api/internal/domain/account"
	"github.com/risapp/ris-api/internal/domain/admin"
	"github.com/risapp/ris-api/internal/domain/beneficiary"
	"github.com/risapp/ris-api/internal/domain/notification"
	"github.com/risapp/ris-api/internal/domain/payout"
	"github.com/risapp/ris-api/internal/domain/rate"
	"github.com/risapp/ris-api/internal/domain/settlement"
	"github.com/risapp/ris-api/internal/domain/topup"
	"github.com/risapp/ris-api/internal/middleware"
	"github.com/risapp/ris-api/internal/pkg/database"
	"github.com/risapp/ris-api/internal/pkg/imaging"
	"github.com/risapp/ris-api/internal/pkg/jwt"
	"github.com/risapp/ris-api/internal/pkg/mercadopago"
	"github.com/risapp/ris-api/internal/pkg/push"
	pkgresponse "github.com/risapp/ris-api/internal/pkg/response"
	"github.com/risapp/ris-api/internal/pkg/storage"
	"github.com/risapp/ris-api/internal/pkg/twilio"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg)

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting RIS API")

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

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- External clients ----------
	mpClient := mercadopago.NewClient(mercadopago.Config{
		BaseURL:     cfg.MercadoPagoBaseURL,
		AccessToken: cfg.MercadoPagoAccessToken,
	})

	twilioClient := twilio.NewClient(twilio.Config{
		BaseURL:      cfg.TwilioBaseURL,
		AccountSID:   cfg.TwilioAccountSID,
		AuthToken:    cfg.TwilioAuthToken,
		WhatsAppFrom: cfg.TwilioWhatsAppFrom,
		WhatsAppTo:   cfg.TwilioWhatsAppTo,
	})

	fcmClient := push.NewFCMClient(push.FCMConfig{
		ServerKey: cfg.FCMServerKey,
		ProjectID: cfg.FCMProjectID,
	})

	storageBackend := "local"
	if cfg.S3Endpoint != "" && cfg.S3AccessKey != "" {
		storageBackend = "s3"
	}
	evidenceStorage, err := storage.New(storage.Config{
		Backend:     storageBackend,
		S3Endpoint:  cfg.S3Endpoint,
		S3Region:    cfg.S3Region,
		S3AccessKey: cfg.S3AccessKey,
		S3SecretKey: cfg.S3SecretKey,
		S3Bucket:    cfg.S3Bucket,
		LocalPath:   cfg.LocalPath,
		LocalURL:    cfg.LocalURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create evidence storage")
	}

	processor := imaging.NewProcessor(imaging.DefaultConfig())

	// ---------- Repositories ----------
	accountRepo := account.NewRepository(db)
	beneficiaryRepo := beneficiary.NewRepository(db)
	rateRepo := rate.NewRepository(db)
	settlementRepo := settlement.NewRepository(db)
	notificationRepo := notification.NewRepository(db)

	// ---------- WebSocket hub ----------
	hub := notification.NewHub(redis)
	go hub.Run()
	defer hub.Shutdown()

	dispatcher := notification.NewDispatcher(notificationRepo, accountRepo, fcmClient, hub)

	// ---------- Settlement engine ----------
	engine := settlement.NewEngine(
		settlement.Config{
			MinTopupAmount: cfg.TopupMinAmount,
			MaxTopupAmount: cfg.TopupMaxAmount,
		},
		settlementRepo,
		&settlementBalances{repo: accountRepo},
		rateRepo,
		topup.IntentCreator{Provider: mpClient, PixExpiration: cfg.PixExpiration},
		dispatcher,
	)

	// ---------- Services and handlers ----------
	topupSvc := topup.NewService(engine, settlementRepo, mpClient, evidenceStorage, processor, cfg.PixExpiration)
	topupHandler := topup.NewHandler(topupSvc, accountRepo)

	payoutSvc := payout.NewService(engine, settlementRepo, twilioClient, evidenceStorage, processor)
	payoutHandler := payout.NewHandler(payoutSvc, beneficiaryRepo)

	accountHandler := account.NewHandler(accountRepo)
	beneficiaryHandler := beneficiary.NewHandler(beneficiaryRepo)
	rateHandler := rate.NewHandler(rateRepo)
	notificationHandler := notification.NewHandler(notificationRepo, hub)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		authMiddleware(http.HandlerFunc(notificationHandler.WebSocket)).ServeHTTP(w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/pix", topupHandler.Routes(authMiddleware))
		r.Mount("/withdrawal", payoutHandler.Routes(authMiddleware))
		r.Mount("/transactions", topupHandler.TransactionRoutes(authMiddleware))
		r.Mount("/beneficiaries", beneficiaryHandler.Routes(authMiddleware))
		r.Mount("/rate", rateHandler.Routes(authMiddleware))
		r.Mount("/user", accountHandler.Routes(authMiddleware))
		r.Mount("/notifications", notificationHandler.Routes(authMiddleware))

		r.With(authMiddleware).Get("/auth/me", accountHandler.Me)

		r.Route("/admin", func(r chi.Router) {
			r.Mount("/recharges", topupHandler.AdminRoutes(authMiddleware))
			r.Mount("/withdrawals", payoutHandler.AdminRoutes(authMiddleware))
			r.With(authMiddleware, admin.RequirePermission(admin.PermissionViewTransactions)).
				Get("/transactions", topupHandler.OpenTransactions)
		})
	})

	// Provider callbacks are unauthenticated by nature; both verify
	// against upstream state before acting.
	r.Post("/webhooks/mercadopago", topupHandler.Webhook)
	r.Post("/webhooks/twilio/whatsapp", payoutHandler.WhatsAppWebhook)

	if storageBackend == "local" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(cfg.LocalPath))))
	}

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

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}
}

// settlementBalances adapts the account repository to the engine's
// balance contract, translating its sentinels.
type settlementBalances struct {
	repo *account.Repository
}

func (a *settlementBalances) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta int64) error {
	err := a.repo.AdjustBalance(ctx, accountID, delta)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, account.ErrInsufficientBalance):
		return settlement.ErrInsufficientBalance
	case errors.Is(err, account.ErrNotFound):
		return settlement.ErrNotFound
	default:
		return err
	}
}
