package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/relational/api/handler"
	"github.com/fastygo/relational/internal/config"
	"github.com/fastygo/relational/internal/infrastructure/boltdb"
	"github.com/fastygo/relational/internal/infrastructure/buffer"
	"github.com/fastygo/relational/internal/infrastructure/kafka"
	mongoInfra "github.com/fastygo/relational/internal/infrastructure/mongo"
	"github.com/fastygo/relational/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/relational/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/relational/internal/infrastructure/redis"
	"github.com/fastygo/relational/internal/router"
	"github.com/fastygo/relational/internal/services"
	"github.com/fastygo/relational/internal/services/lifecycle"
	"github.com/fastygo/relational/pkg/httpcontext"
	"github.com/fastygo/relational/pkg/logger"
	"github.com/fastygo/relational/repository"
	boltRepo "github.com/fastygo/relational/repository/bolt"
	"github.com/fastygo/relational/repository/memory"
	mongoRepo "github.com/fastygo/relational/repository/mongo"
	"github.com/fastygo/relational/repository/postgres"
	redisRepo "github.com/fastygo/relational/repository/redis"
	complianceUC "github.com/fastygo/relational/usecase/compliance"
	entityUC "github.com/fastygo/relational/usecase/entity"
	eventUC "github.com/fastygo/relational/usecase/event"
	relationshipUC "github.com/fastygo/relational/usecase/relationship"
	traceabilityUC "github.com/fastygo/relational/usecase/traceability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Service:     cfg.AppName,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	var backends monitor.Backends

	var (
		store      repository.EntityStore
		frameworks repository.FrameworkRepository
	)
	switch cfg.Store.Backend {
	case config.StoreMongo:
		client, err := mongoInfra.NewClient(appCtx, cfg.Mongo, zapLogger)
		if err != nil {
			zapLogger.Fatal("mongo connection failed", zap.Error(err))
		}
		manager.Register("mongo", func(ctx context.Context) error {
			mongoInfra.Close(ctx, client, zapLogger)
			return nil
		})
		db := client.Database(cfg.Mongo.Database)
		store = mongoRepo.NewEntityStore(db)
		frameworks = mongoRepo.NewFrameworkRepository(db)
		backends.Mongo = client
	case config.StoreBolt:
		db, err := boltdb.Open(cfg.Store.BoltPath, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed to open entity store", zap.Error(err))
		}
		manager.Register("entity_store", func(ctx context.Context) error {
			return db.Close()
		})
		store = boltRepo.NewEntityStore(db)
		frameworks = boltRepo.NewFrameworkRepository(db)
	default:
		store = memory.NewEntityStore()
		frameworks = memory.NewFrameworkRepository()
	}

	events := memory.NewEventLog()
	if cfg.Store.EventLog == config.EventLogPostgres {
		if cfg.Migrations.Enabled {
			if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
				zapLogger.Fatal("migrations failed", zap.Error(err))
			}
		}
		pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pgInfra.Close(pool, zapLogger)
			return nil
		})
		events = postgres.NewEventRepository(pool)
		backends.Postgres = pool
	}

	journal := memory.NewCascadeJournal()
	if cfg.Store.CascadeJournal == config.CascadeJournalRedis {
		redisClient, err := redisInfra.NewClient(cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
		journal = redisRepo.NewCascadeJournal(redisClient, cfg.Redis.Prefix, 0)
		backends.Redis = redisClient
	}

	repairQueue, err := buffer.Open(cfg.Repair.Path, "")
	if err != nil {
		zapLogger.Fatal("failed to open repair queue", zap.Error(err))
	}
	manager.Register("repair_queue", func(ctx context.Context) error {
		return repairQueue.Close()
	})
	backends.RepairQueue = repairQueue

	mon := monitor.New(backends, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	cascadeUseCase := eventUC.New(store, zapLogger,
		eventUC.WithJournal(journal),
		eventUC.WithConflictRetries(cfg.Store.MaxRetries),
	)

	relationshipOpts := []relationshipUC.Option{
		relationshipUC.WithEventLog(events),
		relationshipUC.WithRepairQueue(services.NewRepairBridge(repairQueue, zapLogger)),
		relationshipUC.WithConflictRetries(cfg.Store.MaxRetries),
		relationshipUC.WithMaxDepth(cfg.Traceability.MaxDepth),
	}
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka, zapLogger)
		manager.Register("kafka", func(ctx context.Context) error {
			return producer.Close()
		})
		relationshipOpts = append(relationshipOpts, relationshipUC.WithPublisher(producer))
	}
	relationshipUseCase := relationshipUC.New(store, cascadeUseCase, zapLogger, relationshipOpts...)

	traceabilityUseCase := traceabilityUC.New(store, zapLogger,
		traceabilityUC.WithEventLog(events),
		traceabilityUC.WithMaxDepth(cfg.Traceability.MaxDepth),
		traceabilityUC.WithRetentionYears(cfg.Traceability.RetentionYears),
	)
	complianceUseCase := complianceUC.New(frameworks, store, traceabilityUseCase, zapLogger,
		complianceUC.WithReviewInterval(cfg.Compliance.ReviewInterval),
		complianceUC.WithConflictRetries(cfg.Store.MaxRetries),
	)
	entityUseCase := entityUC.New(store, zapLogger)

	repairProcessor, err := services.NewRepairProcessor(
		repairQueue,
		mon,
		relationshipUseCase,
		cascadeUseCase,
		store,
		zapLogger,
		services.ProcessorConfig{
			Schedule:      cfg.Repair.Schedule,
			SweepSchedule: cfg.Repair.SweepSchedule,
			BatchSize:     cfg.Repair.BatchSize,
			MaxRetries:    cfg.Repair.MaxRetry,
			Retention:     time.Duration(cfg.Repair.RetentionHours) * time.Hour,
		},
	)
	if err != nil {
		zapLogger.Fatal("repair processor setup failed", zap.Error(err))
	}
	repairProcessor.Start()
	manager.Register("repair_processor", func(ctx context.Context) error {
		repairProcessor.Stop(ctx)
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Entity:       apiHandler.NewEntityHandler(entityUseCase, ctxAdapter, zapLogger),
		Relationship: apiHandler.NewRelationshipHandler(relationshipUseCase, ctxAdapter, zapLogger),
		Traceability: apiHandler.NewTraceabilityHandler(traceabilityUseCase, ctxAdapter, zapLogger),
		Compliance:   apiHandler.NewComplianceHandler(complianceUseCase, ctxAdapter, zapLogger),
		Health:       apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}
	r := router.New(handlers, cfg.HTTP.EnableMetrics)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	zapLogger.Info("server started",
		zap.String("address", cfg.Address()),
		zap.String("store", cfg.Store.Backend),
		zap.String("event_log", cfg.Store.EventLog),
		zap.String("cascade_journal", cfg.Store.CascadeJournal),
	)
	manager.Go("http_server", func() error {
		return server.ListenAndServe(cfg.Address())
	})

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
	if err := manager.Err(); err != nil {
		zapLogger.Fatal("component crashed", zap.Error(err))
	}
}
