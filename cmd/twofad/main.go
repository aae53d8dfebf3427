// twofad serves the Chatter two-factor authentication API. It sits behind
// the API gateway, which terminates the user session and forwards the
// authenticated identity in trusted headers; the pre-session validate and
// check endpoints are proxied through without identity.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"

	"github.com/chatterhq/twofactor/modules/twofa"
	"github.com/chatterhq/twofactor/pkg/pg"
	"github.com/chatterhq/twofactor/pkg/ratelimiter"
	"github.com/chatterhq/twofactor/pkg/redis"
)

type config struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// Store selects the record backend: memory, postgres or redis.
	Store string `env:"TWOFA_STORE" envDefault:"memory"`

	// Throttle for the pre-session validate/check endpoints, per claimed
	// user: ValidateBurst attempts, then one more per ValidateRefill.
	ValidateBurst  int           `env:"TWOFA_VALIDATE_BURST" envDefault:"5"`
	ValidateRefill time.Duration `env:"TWOFA_VALIDATE_REFILL" envDefault:"1m"`

	TwoFA twofa.Config
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("twofad exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := twofa.NewService(cfg.TwoFA, store, twofa.WithLogger(log))
	if err != nil {
		return err
	}
	limiterStore := ratelimiter.NewMemoryStore()
	defer limiterStore.Close()
	limiter, err := ratelimiter.NewBucket(limiterStore, ratelimiter.Config{
		Capacity:       cfg.ValidateBurst,
		RefillRate:     1,
		RefillInterval: cfg.ValidateRefill,
	})
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/totp-2fa", twofa.Router(svc, limiter, gatewayAuth))

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	log.InfoContext(ctx, "twofad listening", "addr", cfg.Addr, "store", cfg.Store)

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("twofad stopped")
	return nil
}

func openStore(ctx context.Context, name string, log *slog.Logger) (twofa.Store, func(), error) {
	switch name {
	case "memory":
		log.Warn("using the in-memory store; records are lost on restart")
		return twofa.NewMemoryStore(), func() {}, nil

	case "postgres":
		var cfg pg.Config
		if err := env.Parse(&cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return twofa.NewPostgresStore(pool), pool.Close, nil

	case "redis":
		var cfg redis.Config
		if err := env.Parse(&cfg); err != nil {
			return nil, nil, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return twofa.NewRedisStore(client), func() { _ = client.Close() }, nil

	default:
		return nil, nil, errors.Join(
			errors.New("unknown store backend"),
			fmt.Errorf("TWOFA_STORE=%q, want memory, postgres or redis", name),
		)
	}
}

// gatewayAuth trusts the identity headers the gateway sets after session
// validation. Requests reaching this service directly must be blocked at
// the network layer.
func gatewayAuth(r *http.Request) (twofa.Identity, bool) {
	userID, err := uuid.Parse(r.Header.Get("X-User-Id"))
	if err != nil {
		return twofa.Identity{}, false
	}
	return twofa.Identity{UserID: userID, Email: r.Header.Get("X-User-Email")}, true
}
