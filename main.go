package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/valyala/fasthttp"

	"restructure-engine/internal/collab"
	"restructure-engine/internal/config"
	"restructure-engine/internal/engine"
	"restructure-engine/internal/handler"
	"restructure-engine/internal/health"
	"restructure-engine/internal/model"
	"restructure-engine/internal/observability"
	"restructure-engine/internal/policy"
	"restructure-engine/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("restructure engine stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obsCfg := observability.DefaultConfig()
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	defer obs.Shutdown(context.Background())

	var (
		overrides []model.PolicyCaps
		rules     []health.Rule
		seed      []model.ContractSnapshot
	)
	if cfg.PolicyFile != "" {
		f, err := config.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return err
		}
		if overrides, err = f.Caps(); err != nil {
			return fmt.Errorf("policy file %s: %w", cfg.PolicyFile, err)
		}
		rules = f.HealthRules
		seed = f.Contracts
	}

	registry := policy.NewRegistry(cfg.PolicyRegistryURL, overrides)
	registry.Prefetch(ctx, policyKeys(overrides))

	evaluator, err := health.NewEvaluator(rules)
	if err != nil {
		return fmt.Errorf("health rules: %w", err)
	}

	deps, closeStores, err := openStores(ctx, cfg, seed)
	if err != nil {
		return err
	}
	defer closeStores()

	deps.Policies = registry
	deps.Health = evaluator
	if cfg.SigningURL != "" {
		deps.Signer = collab.NewHTTPSigner(cfg.SigningURL)
	}
	if cfg.NotifyURL != "" {
		deps.Notifier = collab.NewHTTPNotifier(cfg.NotifyURL)
	}

	eng, err := engine.New(deps,
		engine.WithLogger(logger.With("component", "engine")),
		engine.WithObservability(obs),
	)
	if err != nil {
		return err
	}

	go sweepExpired(ctx, eng, registry, cfg.ExpirySweepInterval)

	h := handler.New(eng, cfg.HealthEventRPS, logger)
	srv := &fasthttp.Server{
		Handler:      h.Handle,
		Name:         "restructure-engine",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(":" + cfg.Port)
	}()
	logger.Info("restructure engine starting", "port", cfg.Port, "store", cfg.Store)

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.ShutdownWithContext(shutdownCtx)
}

// openStores builds the plan, contract and schedule stores for the configured
// backend. Redis only holds plans; contracts and schedules then live in Postgres.
func openStores(ctx context.Context, cfg *config.Config, seed []model.ContractSnapshot) (engine.Deps, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pg, db, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return engine.Deps{}, nil, err
		}
		return engine.Deps{Plans: pg, Contracts: pg, Schedules: pg}, func() { db.Close() }, nil

	case config.StoreRedis:
		rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, 0)
		if err := rdb.Ping(ctx); err != nil {
			rdb.Close()
			return engine.Deps{}, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		pg, db, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			rdb.Close()
			return engine.Deps{}, nil, err
		}
		closeAll := func() {
			rdb.Close()
			db.Close()
		}
		return engine.Deps{Plans: rdb, Contracts: pg, Schedules: pg}, closeAll, nil

	default:
		mem := store.NewMemory()
		for _, c := range seed {
			mem.PutContract(c)
		}
		return engine.Deps{Plans: mem, Contracts: mem, Schedules: mem}, func() {}, nil
	}
}

func openPostgres(ctx context.Context, url string) (*store.Postgres, *sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	pg := store.NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return pg, db, nil
}

func policyKeys(overrides []model.PolicyCaps) [][2]string {
	keys := [][2]string{
		{policy.MarketAguascalientes, policy.ContractIndividual},
		{policy.MarketEdomex, policy.ContractIndividual},
	}
	for _, c := range overrides {
		keys = append(keys, [2]string{c.Market, c.ContractType})
	}
	return keys
}

// sweepExpired expires stale plans on every tick and drops cached policy caps
// so changes in the policy service are picked up.
func sweepExpired(ctx context.Context, eng *engine.Engine, registry *policy.Registry, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			registry.Invalidate()
			if _, err := eng.ExpireStale(ctx, now); err != nil {
				slog.WarnContext(ctx, "expiry sweep failed", "error", err)
			}
		}
	}
}
