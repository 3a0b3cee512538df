// Votely is an online election management platform: admins run elections and
// electoral rolls, the public nominates candidates and casts anonymous
// ballots through phone, email-OTP or secret-code authentication.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JavaBool/votely/internal/api"
	"github.com/JavaBool/votely/internal/auth"
	"github.com/JavaBool/votely/internal/config"
	"github.com/JavaBool/votely/internal/database"
	"github.com/JavaBool/votely/internal/mailer"
	"github.com/JavaBool/votely/internal/otp"
	"github.com/JavaBool/votely/internal/phone"
	"github.com/JavaBool/votely/internal/service"
)

const version = "1.0.0"

func main() {
	flags, configFile, showVersion := config.ParseFlags()
	if showVersion {
		fmt.Printf("votely %s\n", version)
		return
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("fatal error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database ready", zap.String("type", cfg.Database.Type))

	// The persisted pool size wins over the configured bootstrap default
	workers := cfg.Mailer.Workers
	if stored, err := db.GetSystemConfig(service.MailerWorkersKey); err == nil {
		if n, err := strconv.Atoi(stored); err == nil && n > 0 {
			workers = n
		}
	}
	mail := mailer.New(mailer.NewSMTPSender(cfg.SMTP), workers, cfg.Mailer.QueueSize, logger)
	defer mail.Close()
	logger.Info("mailer started", zap.Int("workers", workers))

	codes := otp.NewStore(cfg.Security.OTPTTL)
	tokens := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.BallotExpiration, cfg.JWT.Issuer)
	verifier := phone.NewHTTPVerifier(cfg.Phone)

	svcs := api.Services{
		Admins:    service.NewAdminService(db, codes, mail, tokens, logger),
		Elections: service.NewElectionService(db, codes, mail, logger),
		Electors:  service.NewElectorService(db, codes, mail, logger),
		Voting:    service.NewVotingService(db, codes, mail, tokens, verifier, logger),
	}

	adminEmail := cfg.SMTP.From
	if adminEmail == "" {
		adminEmail = "admin@localhost"
	}
	if err := svcs.Admins.EnsureDefaultAdmin(adminEmail); err != nil {
		return err
	}

	router := api.NewRouter(cfg, svcs, tokens, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.Server.TLSEnabled))

		var err error
		if cfg.Server.TLSEnabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Logging.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Logging.Output != "" && cfg.Logging.Output != "stdout" {
		zapCfg.OutputPaths = []string{cfg.Logging.Output}
	}

	return zapCfg.Build()
}
