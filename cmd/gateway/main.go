package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lafabrique/excerpt-gateway/internal/api"
	"github.com/lafabrique/excerpt-gateway/internal/botgate"
	"github.com/lafabrique/excerpt-gateway/internal/config"
	"github.com/lafabrique/excerpt-gateway/internal/excerpt"
	"github.com/lafabrique/excerpt-gateway/internal/mailer"
	"github.com/lafabrique/excerpt-gateway/internal/ratelimit"
	"github.com/lafabrique/excerpt-gateway/internal/service/gateway"
	"github.com/lafabrique/excerpt-gateway/internal/store"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateForServing(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	dynamoClient, err := store.NewDynamoClient(ctx, cfg.Store.Region, cfg.Store.Profile)
	if err != nil {
		log.Fatalf("Failed to create DynamoDB client: %v", err)
	}
	signups := store.NewDynamoStore(dynamoClient, cfg.Store.RecipientsTable)

	// Preorders share the signup table unless a dedicated one is set.
	preorders := signups
	if cfg.Store.PreordersTable != "" && cfg.Store.PreordersTable != cfg.Store.RecipientsTable {
		preorders = store.NewDynamoStore(dynamoClient, cfg.Store.PreordersTable)
	}

	// Counters live in the recipient table by default; Redis takes over
	// when REDIS_URL is set.
	var limiter ratelimit.Limiter = ratelimit.NewStoreLimiter(signups, cfg.RateLimit.Window(), cfg.RateLimit.Limit)
	if cfg.RateLimit.RedisURL != "" {
		rl, err := ratelimit.NewRedisLimiterFromURL(cfg.RateLimit.RedisURL, cfg.RateLimit.Window(), cfg.RateLimit.Limit)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		limiter = rl
		log.Println("Rate limiting: Redis")
	} else {
		log.Println("Rate limiting: recipient table counters")
	}

	sesMailer, err := mailer.NewSESMailer(ctx, cfg.Mail.Region, cfg.Mail.AccessKey, cfg.Mail.SecretKey, cfg.Mail.From, cfg.Mail.ConfigurationSet)
	if err != nil {
		log.Fatalf("Failed to create SES mailer: %v", err)
	}

	excerpts, err := excerpt.NewS3Fetcher(ctx, cfg.Store.Region, cfg.Store.Profile, cfg.Excerpt.Bucket, cfg.Excerpt.Keys)
	if err != nil {
		log.Fatalf("Failed to create excerpt fetcher: %v", err)
	}

	gate := botgate.New(cfg.Turnstile.Secret, cfg.Turnstile.VerifyURL, cfg.Turnstile.Timeout())
	if cfg.Turnstile.Secret == "" {
		log.Println("WARNING: Turnstile secret not set, bot verification disabled")
	}

	svc := gateway.NewService(gateway.Deps{
		Signups:       signups,
		Preorders:     preorders,
		Limiter:       limiter,
		Gate:          gate,
		Mailer:        sesMailer,
		Excerpts:      excerpts,
		SigningSecret: cfg.Link.SigningSecret,
		SiteURL:       cfg.Link.SiteURL,
		NotifyAddress: cfg.Mail.NotifyAddress,
		Window:        cfg.RateLimit.Window(),
	})

	server := api.NewServer(*cfg, svc)

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("%v", err)
	}
	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Excerpt gateway listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
