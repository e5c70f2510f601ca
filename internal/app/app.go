// Package app holds the start-up steps shared by the marketplace binaries.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/kafka"
	"ms-marketplace/internal/logger"
)

// Publisher is what the services publish domain events through.
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

// Bootstrap loads .env and the environment and opens the service logger.
func Bootstrap(service string) (*config.Config, *logger.Logger) {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.New(logger.Options{
		Service:  service,
		Dir:      cfg.Log.Dir,
		MinLevel: logger.ParseLevel(cfg.Log.Level),
	})

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	return cfg, log
}

// NewPublisher returns the Kafka producer, or a logging stand-in when Kafka
// is disabled. The closer is always safe to call.
func NewPublisher(cfg config.KafkaConfig, log *logger.Logger) (Publisher, func()) {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, domain events will only be logged")
		return kafka.Discard{Logger: log}, func() {}
	}

	if err := kafka.EnsureTopicsExist(cfg.Brokers, cfg.Topics.All(), log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}

	producer := kafka.NewProducer(cfg.Brokers, log)
	log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Brokers))
	return producer, func() {
		if err := producer.Close(); err != nil {
			log.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
}

// UserVerifier accepts identity provider tokens and, when a device secret
// is configured, the locally issued HS256 tokens.
func UserVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) (auth.Verifier, error) {
	var chain auth.Chain
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
		log.Info("AUTH", fmt.Sprintf("Accepting tokens from %s", cfg.OIDCIssuer))
	}
	if cfg.DeviceSecret != "" {
		v, err := auth.NewHMACVerifier(cfg.DeviceSecret, cfg.DeviceIssuer)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no token verifier configured: set OIDC_ISSUER or GATE_JWT_SECRET")
	}
	return chain, nil
}

// Serve runs srv until SIGINT or SIGTERM, then shuts it down and calls the
// cleanup hooks in order.
func Serve(srv *http.Server, name string, log *logger.Logger, cleanup ...func()) {
	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 %s running on %s", name, srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	WaitForSignal(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	}
	for _, fn := range cleanup {
		fn()
	}
	log.Info("APP", fmt.Sprintf("✅ %s shutdown complete", name))
}

func WaitForSignal(log *logger.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop
	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
}

// NewServer applies the configured timeouts.
func NewServer(addr string, h http.Handler, cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
