package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	nats "github.com/nats-io/nats.go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/BengeeL/Dental-Chatbot/config"
	"github.com/BengeeL/Dental-Chatbot/internal/adapters/gotrue"
	httpadapter "github.com/BengeeL/Dental-Chatbot/internal/adapters/http"
	apiv1 "github.com/BengeeL/Dental-Chatbot/internal/adapters/http/api/v1"
	handlers "github.com/BengeeL/Dental-Chatbot/internal/adapters/http/api/v1/handlers"
	authmw "github.com/BengeeL/Dental-Chatbot/internal/adapters/http/middleware"
	"github.com/BengeeL/Dental-Chatbot/internal/adapters/lex"
	natsadapter "github.com/BengeeL/Dental-Chatbot/internal/adapters/nats"
	pollyadapter "github.com/BengeeL/Dental-Chatbot/internal/adapters/polly"
	repo "github.com/BengeeL/Dental-Chatbot/internal/adapters/postgres"
	redisstore "github.com/BengeeL/Dental-Chatbot/internal/adapters/redis"
	"github.com/BengeeL/Dental-Chatbot/internal/adapters/secrets"
	"github.com/BengeeL/Dental-Chatbot/internal/adapters/transcribe"
	"github.com/BengeeL/Dental-Chatbot/internal/domain"
	"github.com/BengeeL/Dental-Chatbot/internal/telemetry"
	"github.com/BengeeL/Dental-Chatbot/internal/tokenverify"
	"github.com/BengeeL/Dental-Chatbot/internal/usecase"
	pkglog "github.com/BengeeL/Dental-Chatbot/pkg/log"
)

var setupTracing = telemetry.Setup

type App struct {
	cfg             *config.Config
	logger          pkglog.Logger
	db              *gorm.DB
	cache           *redisstore.Store
	natsConn        *nats.Conn
	server          *http.Server
	shutdownTracing func(context.Context) error
}

// New builds every client handle. When a step fails the handles built so far are released.
func New(ctx context.Context, cfg *config.Config, logger pkglog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	a.shutdownTracing = setupTracing(ctx, cfg.AppName, logger)

	provider, err := secrets.NewProvider(ctx, cfg.SecretsProvider, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	supabase, err := secrets.Supabase(ctx, provider, cfg.SupabaseSecretName)
	if err != nil {
		return nil, err
	}
	for _, w := range supabase.Warnings {
		logger.Warn().Str("secret", cfg.SupabaseSecretName).Msg(w)
	}
	pgCreds, err := secrets.Postgres(ctx, provider, cfg.PostgresSecretName)
	if err != nil {
		return nil, err
	}
	redisCreds, err := secrets.Redis(ctx, provider, cfg.RedisSecretName)
	if err != nil {
		return nil, err
	}

	a.db, err = gorm.Open(postgres.Open(buildDSN(cfg, pgCreds)), &gorm.Config{
		Logger:         loggerForGorm(cfg),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DBMinConns)
	if cfg.DBAutoMigrate {
		if err = a.db.AutoMigrate(&domain.Profile{}); err != nil {
			return nil, err
		}
	}

	useTLS := cfg.RedisTLS
	if redisCreds.SSL != nil {
		useTLS = *redisCreds.SSL
	}
	a.cache = redisstore.New(redisstore.Options{
		Host:     redisCreds.Host,
		Port:     redisCreds.Port,
		Password: redisCreds.Password,
		DB:       redisCreds.DB,
		TLS:      useTLS,
	})

	verifier, err := tokenverify.New(tokenverify.Config{
		Secret:   []byte(supabase.JWTSecret),
		Audience: cfg.JWTAudience,
		Leeway:   cfg.JWTLeeway,
	})
	if err != nil {
		return nil, err
	}

	profiles := repo.NewProfileRepository(a.db)
	identity := gotrue.NewClient(supabase.URL, supabase.ServiceRoleKey, cfg.IdentityTimeout)

	sessions, err := usecase.NewSessionManager(usecase.SessionManagerDeps{
		Cache:    a.cache,
		Profiles: profiles,
		Identity: identity,
		Verifier: verifier,
		Policy:   usecase.PolicyFromConfig(cfg),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.NATSURL != "" {
		nc, connErr := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if connErr != nil {
			logger.Warn().Err(connErr).Str("url", cfg.NATSURL).Msg("nats connect failed")
		} else {
			a.natsConn = nc
		}
	}

	deps := usecase.AuthServiceDeps{
		Sessions:      sessions,
		Profiles:      profiles,
		Identity:      identity,
		Logger:        logger,
		ResetRedirect: cfg.PasswordResetRedirect(),
	}
	if a.natsConn != nil {
		deps.Events = natsadapter.NewUserEvents(a.natsConn, cfg.NATSUserCreatedSubject)
	}
	service := usecase.NewAuthService(deps)

	if a.natsConn != nil {
		verifyHandler := natsadapter.NewVerifyHandler(service, logger)
		if _, subErr := verifyHandler.Subscribe(a.natsConn, cfg.NATSVerifySubject, cfg.AppName); subErr != nil {
			logger.Warn().Err(subErr).Str("subject", cfg.NATSVerifySubject).Msg("nats subscribe failed")
		}
	}

	var chatHandler *handlers.ChatHandler
	if cfg.ChatEnabled {
		chatHandler = handlers.NewChatHandler(newChatService(ctx, cfg, provider, a.cache, logger))
	}

	authMW := authmw.NewAuthMiddleware(service)
	router := httpadapter.NewRouter(cfg, apiv1.NewRouter(handlers.NewAuthHandler(service), chatHandler, authMW.Handler), profiles, a.cache, logger)

	e := echo.New()
	router.Setup(e)

	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.HTTPHost, cfg.HTTPPort),
		Handler:           telemetry.Wrap(e, cfg.AppName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// newChatService builds the assistant. A broken chat configuration leaves the service
// unhealthy instead of failing startup.
func newChatService(ctx context.Context, cfg *config.Config, provider secrets.Provider, cache usecase.CacheStore, logger pkglog.Logger) *usecase.ChatService {
	deps := usecase.ChatServiceDeps{
		Cache:             cache,
		SessionTTL:        cfg.ChatSessionTTL,
		TranscribeTimeout: cfg.TranscribeTimeout,
		Logger:            logger,
	}
	lexCreds, err := secrets.Lex(ctx, provider, cfg.LexSecretName)
	if err != nil {
		logger.Warn().Err(err).Msg("chat disabled: lex secret unavailable")
		return usecase.NewChatService(deps)
	}
	awsCfg, err := lexCreds.AWSConfig(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("chat disabled: aws config")
		return usecase.NewChatService(deps)
	}
	deps.NLU = lex.New(awsCfg, lex.Bot{ID: lexCreds.BotID, AliasID: lexCreds.BotAliasID, LocaleID: lexCreds.LocaleID})
	deps.Speech = pollyadapter.New(awsCfg, pollyadapter.Voice{ID: cfg.SpeechVoice, Engine: cfg.SpeechEngine, Language: cfg.SpeechLanguage})
	if cfg.TranscribeBucket != "" {
		deps.Transcriber = transcribe.New(awsCfg, transcribe.Options{
			Bucket:       cfg.TranscribeBucket,
			LanguageCode: cfg.TranscribeLanguage,
			PollInterval: cfg.TranscribePollInterval,
			MaxPolls:     cfg.TranscribeMaxPolls,
		})
	}
	logger.Info().Str("bot_id", lexCreds.BotID).Str("region", lexCreds.Region).Msg("chat enabled")
	return usecase.NewChatService(deps)
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
	}()
	go func() {
		a.logger.Info().Str("addr", a.server.Addr).Str("env", a.cfg.AppEnv).Msg("http server listening")
		errCh <- a.server.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("tracer shutdown")
		}
	}
}

func buildDSN(cfg *config.Config, creds *secrets.PostgresCredentials) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		creds.Host, creds.Port, creds.Username, creds.Password, cfg.DBName, cfg.DBSSLMode)
}

func loggerForGorm(cfg *config.Config) logger.Interface {
	level := logger.Silent
	switch cfg.AppEnv {
	case "local":
		level = logger.Info
	default:
		level = logger.Warn
	}
	return logger.Default.LogMode(level)
}
