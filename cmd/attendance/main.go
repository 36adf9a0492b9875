package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/attendance-engine/internal/audit"
	"github.com/xela07ax/attendance-engine/internal/console/handler"
	"github.com/xela07ax/attendance-engine/internal/console/server"
	"github.com/xela07ax/attendance-engine/internal/console/service"
	"github.com/xela07ax/attendance-engine/internal/engine"
	"github.com/xela07ax/attendance-engine/internal/infra"
	"github.com/xela07ax/attendance-engine/internal/infra/auth"
	"github.com/xela07ax/attendance-engine/internal/ingest"
	"github.com/xela07ax/attendance-engine/internal/ledger"
	"github.com/xela07ax/attendance-engine/internal/repository/postgres"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("attendance engine failed", zap.Error(err))
	}
	logger.Info("attendance engine exited properly")
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст жизненного цикла: SIGINT/SIGTERM останавливают слушателей и серверы
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Engine.Location()
	if err != nil {
		return err
	}

	// 1. Инфраструктура и ресурсы
	repo, err := postgres.NewRepo(appCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.EnsureSchema(appCtx); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return err
	}
	validator := auth.NewValidator(pubKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 2. Журнал распознаваний: пачками в отдельный пул
	journalRepo, err := postgres.NewJournalRepo(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer journalRepo.Close()
	journal := audit.NewJournal(journalRepo, audit.Options{}, logger)
	journal.Start()
	defer journal.Stop() // Стоп сливает очередь до закрытия пула
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "attendance_journal_backlog",
		Help: "Recognition journal events waiting to be flushed.",
	}, func() float64 { return float64(journal.Backlog()) }))

	// 3. Реестр лиц (L1 map + Redis hash + Pub/Sub)
	registry := engine.NewRegistry(rdb, repo, logger)
	if err := registry.Init(appCtx); err != nil {
		return err
	}

	// 4. Ledger с защитой хранилища
	store := ledger.NewReliableStore(repo, ledger.ReliabilitySettings{
		Attempts:      cfg.Engine.RetryAttempts,
		WriteRPS:      cfg.Engine.WriteRPS,
		CBMaxRequests: cfg.Engine.CBMaxRequests,
		CBInterval:    cfg.Engine.CBInterval,
		CBTimeout:     cfg.Engine.CBTimeout,
	}, logger)
	l := ledger.New(store, logger,
		ledger.WithTimeout(cfg.Engine.StorageTimeout),
		ledger.WithLoadTimeout(cfg.Engine.LoadTimeout))
	ledgerSync := engine.NewLedgerSync(rdb, logger)

	// 5. Core
	eng := engine.New(l, registry, metrics, engine.Settings{
		Location:      loc,
		MinConfidence: cfg.Engine.MinConfidence,
		CacheSize:     cfg.Engine.CacheSize,
		MaxDays:       cfg.Engine.MaxDays,
		Notifier:      ledgerSync,
		Auditor:       journal,
	}, logger)
	if err := eng.Restore(appCtx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(appCtx)
	g.Go(func() error { registry.StartListener(ctx); return nil })
	g.Go(func() error { ledgerSync.Listen(ctx, eng.Restore, eng.Refresh); return nil })

	// 6. Входы: Kafka и gRPC (опционально)
	if cfg.Kafka.Enabled {
		consumer, err := ingest.NewKafkaConsumer(cfg.Kafka, eng, metrics, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()
		g.Go(func() error { return consumer.Run(ctx) })
	}

	if cfg.GRPC.Enabled {
		grpcSrv, health := ingest.NewGRPCServer(ingest.NewGRPCIngest(eng, metrics, logger), validator, logger)
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		g.Go(func() error {
			logger.Info("gRPC ingest started", zap.String("addr", cfg.GRPC.Addr))
			return grpcSrv.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			health.Shutdown()
			grpcSrv.GracefulStop()
			return nil
		})
	}

	// 7. HTTP API
	api := server.NewConsoleServer(
		logger,
		validator,
		metrics,
		reg,
		handler.NewAttendanceHandler(eng),
		handler.NewAnalyticsHandler(eng, cfg.Engine.DefaultDays, loc),
		handler.NewPersonHandler(registry),
		handler.NewJournalHandler(service.NewJournalService(journalRepo)),
	)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		logger.Info("attendance engine started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 8. Graceful Shutdown
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("attendance engine stopping...")

		// Даем 5 секунд на завершение запросов
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
