package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kairos/internal/audit"
	"kairos/internal/blobstore"
	capsulehandler "kairos/internal/capsule/handler"
	capsulemetrics "kairos/internal/capsule/metrics"
	capsulesvc "kairos/internal/capsule/service"
	capsulestore "kairos/internal/capsule/store"
	"kairos/internal/consensus"
	consensushandler "kairos/internal/consensus/handler"
	consensusstore "kairos/internal/consensus/store"
	httpapi "kairos/internal/http"
	jwttoken "kairos/internal/jwt_token"
	"kairos/internal/platform/config"
	"kairos/internal/platform/httpserver"
	"kairos/internal/platform/logger"
	"kairos/internal/platform/metrics"
	"kairos/internal/platform/postgres"
	redisclient "kairos/internal/platform/redis"
	"kairos/internal/ratelimit"
	"kairos/internal/sealer"
	"kairos/pkg/platform/circuit"
)

// main wires configuration, backends and HTTP, then blocks until a signal
// arrives. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("kairos exited with error", "error", err)
		os.Exit(1)
	}
}

type backends struct {
	capsules     capsulesvc.Store
	tx           capsulesvc.CapsuleStoreTx
	approvals    consensus.Store
	limits       ratelimit.Store
	blobs        capsulesvc.BlobStore
	healthChecks map[string]httpapi.HealthCheck
	closers      []func() error
}

func (b *backends) close(log *slog.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn("failed to close backend", "error", err)
		}
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close(log)

	g, gctx := errgroup.WithContext(ctx)

	recorderOpts := []audit.Option{}
	if len(cfg.Kafka.Brokers) > 0 {
		worker, err := openAuditStream(ctx, cfg.Kafka, log, b)
		if err != nil {
			return err
		}
		recorderOpts = append(recorderOpts, audit.WithDispatcher(worker))
		g.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit worker: %w", err)
			}
			return nil
		})
	}
	recorder := audit.NewRecorder(log, recorderOpts...)

	capsules := capsulesvc.New(
		b.capsules,
		sealer.New(sealer.WithIterations(cfg.Vault.KDFIterations)),
		b.blobs,
		b.approvals,
		recorder,
		capsulesvc.WithLogger(log),
		capsulesvc.WithMetrics(capsulemetrics.New()),
		capsulesvc.WithTx(b.tx),
		capsulesvc.WithPingConcurrency(cfg.Vault.PingBatchWorkers, cfg.Vault.PingBatchMax),
	)
	approvals := consensus.New(b.approvals, capsules.Capsules(), capsules.Tx(), recorder,
		consensus.WithLogger(log),
		consensus.WithMetrics(consensus.NewMetrics()),
	)

	limiter := ratelimit.New(b.limits, log,
		ratelimit.WithDisabled(!cfg.RateLimit.Enabled),
		ratelimit.WithMetrics(ratelimit.NewMetrics()),
	)
	claimLimit := limiter.Limit(ratelimit.Class{
		Name:   "claim",
		Limit:  cfg.RateLimit.ClaimLimit,
		Window: cfg.RateLimit.ClaimWindow,
	}, ratelimit.ByActorAndCapsule)
	apiLimit := limiter.Limit(ratelimit.Class{
		Name:   "api",
		Limit:  cfg.RateLimit.APILimit,
		Window: cfg.RateLimit.APIWindow,
	}, ratelimit.ByActor)

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	router := httpapi.NewRouter(httpapi.Deps{
		Logger:         log,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		Metrics:        metrics.New(),
		RequestTimeout: cfg.Server.RequestTimeout,
		HealthChecks:   b.healthChecks,
		RateLimit:      apiLimit,
		Handlers: []httpapi.Registrar{
			capsulehandler.New(capsules, log, capsulehandler.WithClaimLimiter(claimLimit)),
			consensushandler.New(approvals, log),
		},
	})
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)

	g.Go(func() error {
		log.Info("starting kairos", "addr", cfg.Server.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down kairos")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// openBackends picks durable backends where configured and in-memory ones
// otherwise.
func openBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{healthChecks: map[string]httpapi.HealthCheck{}}
	ok := false
	defer func() {
		if !ok {
			b.close(log)
		}
	}()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if db != nil {
		b.closers = append(b.closers, db.Close)
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return nil, err
			}
		}
		store := capsulestore.NewPostgres(db)
		b.capsules = store
		b.tx = newCapsulePostgresTx(db, store, cfg.Vault.TxTimeout)
		b.healthChecks["postgres"] = pingDB(db)
		log.Info("capsule store: postgres")
	} else {
		store := capsulestore.NewInMemory()
		b.capsules = store
		b.tx = capsulesvc.NewShardedTx(store, cfg.Vault.TxTimeout)
		log.Warn("capsule store: in-memory, data is lost on restart")
	}

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		b.closers = append(b.closers, rdb.Close)
		b.approvals = consensusstore.NewRedis(rdb.Client)
		b.limits = ratelimit.NewRedis(rdb.Client)
		b.healthChecks["redis"] = rdb.Health
		log.Info("consensus store: redis")
	} else {
		b.approvals = consensusstore.NewInMemory()
		b.limits = ratelimit.NewInMemory()
		log.Warn("consensus store: in-memory")
	}

	if cfg.S3.Bucket != "" {
		s3, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			Prefix:   cfg.S3.Prefix,
			Timeout:  cfg.S3.Timeout,
		})
		if err != nil {
			return nil, err
		}
		b.blobs = s3
		b.healthChecks["s3"] = s3.Health
		log.Info("blob store: s3", "bucket", cfg.S3.Bucket)
	} else {
		b.blobs = blobstore.NewInMemory()
		log.Warn("blob store: in-memory")
	}

	ok = true
	return b, nil
}

func openAuditStream(ctx context.Context, cfg config.Kafka, log *slog.Logger, b *backends) (*audit.Worker, error) {
	sink, err := audit.NewKafkaSink(audit.KafkaConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		PublishTimeout: cfg.PublishTimeout,
	})
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() error {
		sink.Close()
		return nil
	})

	topicCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := sink.EnsureTopic(topicCtx, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		return nil, err
	}
	log.Info("audit stream: kafka", "topic", cfg.Topic)

	return audit.NewWorker(sink, log,
		audit.WithQueueSize(cfg.QueueSize),
		audit.WithBreaker(circuit.New("audit-sink")),
		audit.WithMetrics(audit.NewMetrics()),
	), nil
}

func pingDB(db *sql.DB) httpapi.HealthCheck {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}
