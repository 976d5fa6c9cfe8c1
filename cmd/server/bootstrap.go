package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/attachvault/internal/api"
	"github.com/charlesng35/attachvault/internal/app"
	"github.com/charlesng35/attachvault/internal/app/maintenance"
	"github.com/charlesng35/attachvault/internal/attachments"
	iauth "github.com/charlesng35/attachvault/internal/auth"
	"github.com/charlesng35/attachvault/internal/database"
	"github.com/charlesng35/attachvault/internal/messages"
	"github.com/charlesng35/attachvault/internal/vault"
	"github.com/charlesng35/attachvault/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Cache    *attachments.Cache
	Messages *messages.Service
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, crypto engine, cache, and router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	vaultOpts, err := cfg.Vault.VaultOptions()
	if err != nil {
		return nil, fmt.Errorf("decode vault salt: %w", err)
	}
	conversationCrypto, err := vault.NewCrypto(vaultOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise conversation crypto: %w", err)
	}

	signerSecret, err := cfg.Cache.SigningSecretBytes()
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	cacheOpts := []attachments.Option{}
	if len(signerSecret) > 0 {
		cacheOpts = append(cacheOpts, attachments.WithSignerSecret(signerSecret))
	}

	stack.Cache, err = attachments.New(stack.DB, conversationCrypto, cfg.Cache.AttachmentCacheConfig(), cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise attachment cache: %w", err)
	}

	stack.Messages, err = messages.NewService(stack.DB, conversationCrypto, cfg.Messages.MaxAge)
	if err != nil {
		return nil, fmt.Errorf("initialise message service: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Cache, stack.Messages,
		maintenance.WithCacheSchedule(cfg.Cache.CleanupInterval))
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.Cache, stack.Messages, jwtSvc, cfg)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown tears down the runtime stack in reverse construction order.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			log.Warn("failed to close attachment cache", zap.Error(err))
		}
		// The cache owns the shared database handle.
		s.DB = nil
	}

	closeDatabase(s.DB, log)
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOptions()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
