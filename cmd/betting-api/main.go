package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/dog-race-platform/internal/bet"
	racecache "github.com/radieske/dog-race-platform/internal/betting-api/cache"
	"github.com/radieske/dog-race-platform/internal/betting-api/consumer"
	httpapi "github.com/radieske/dog-race-platform/internal/betting-api/http"
	"github.com/radieske/dog-race-platform/internal/betting-api/producer"
	"github.com/radieske/dog-race-platform/internal/betting-api/ws"
	"github.com/radieske/dog-race-platform/internal/player"
	"github.com/radieske/dog-race-platform/internal/race"
	"github.com/radieske/dog-race-platform/internal/shared/cache"
	"github.com/radieske/dog-race-platform/internal/shared/config"
	"github.com/radieske/dog-race-platform/internal/shared/db"
	"github.com/radieske/dog-race-platform/internal/shared/kafka"
	"github.com/radieske/dog-race-platform/internal/shared/logger"
	"github.com/radieske/dog-race-platform/internal/shared/metrics"
	"github.com/radieske/dog-race-platform/internal/store"
	"github.com/radieske/dog-race-platform/internal/store/memory"
	"github.com/radieske/dog-race-platform/internal/store/postgres"
	"github.com/radieske/dog-race-platform/pkg/contracts/events"
)

func main() {
	cfg := config.Load("betting-api")

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	var (
		st store.Store
		pg *sql.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		// sem estado compartilhado com o race-manager: só para testes locais da API
		log.Warn("memory store in betting-api does not see races created by race-manager")
		st = memory.New()
	default:
		pg, err = db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if err := postgres.EnsureSchema(ctx, pg); err != nil {
			log.Fatal("schema setup", zap.Error(err))
		}
		st = postgres.New(pg)
		log.Info("postgres connected")
	}

	api := &httpapi.API{
		Log:     log,
		Players: player.NewService(st, cfg.Betting.InitialBalance),
		Races:   race.NewService(st, race.DefaultWindow),
		Bets: bet.NewEngine(st, bet.Limits{
			MinBet:    cfg.Betting.MinBet,
			MaxBet:    cfg.Betting.MaxBet,
			MaxPayout: cfg.Betting.MaxPayout,
			WinOdds:   cfg.Betting.WinOdds,
		}),
	}
	instrument(api)

	// Redis: cache de corridas ativas e pub/sub de anúncios para o websocket
	hub := ws.NewHub(func(*http.Request) bool { return true })
	api.WS = hub.HandleWS

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, running without cache and live announcements", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			api.Cache = racecache.New(redisClient)
			ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)
			log.Info("redis connected", zap.String("channel", cfg.RedisPubSubChannel))
		}
	}

	var consumers []*consumer.RaceEvents

	// Kafka: publica bet_placed e consome race_events para invalidar o cache
	if cfg.KafkaBrokers != "" {
		writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
		defer writer.Close()
		api.Publ = producer.NewKafkaPublisher(writer)
		log.Info("kafka writer ready", zap.String("topic", cfg.TopicBetPlaced))

		if redisClient != nil {
			reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicRaceEvents, cfg.ServiceName)
			defer reader.Close()
			consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "betting_api_race_events_consumed_total", Help: "anúncios consumidos por tipo"}, []string{"kind"})
			prometheus.MustRegister(consumed)
			c := &consumer.RaceEvents{
				Reader:  reader,
				Cache:   racecache.New(redisClient),
				Log:     log,
				OnEvent: func(k events.AnnouncementKind) { consumed.WithLabelValues(string(k)).Inc() },
			}
			consumers = append(consumers, c)
			log.Info("kafka consumer ready", zap.String("topic", cfg.TopicRaceEvents))
		}
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if pg != nil {
			if err := pg.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}, log)
	log.Info("metrics/health server starting", zap.String("addr", metricsSrv.Addr))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("betting-api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	for _, c := range consumers {
		g.Go(func() error {
			c.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("betting-api stopped with error", zap.Error(err))
	}
}

func instrument(api *httpapi.API) {
	placed := prometheus.NewCounter(prometheus.CounterOpts{Name: "betting_api_bets_placed_total", Help: "apostas aceitas"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "betting_api_bets_rejected_total", Help: "apostas recusadas por motivo"}, []string{"reason"})
	prometheus.MustRegister(placed, rejected)

	api.OnBetPlaced = placed.Inc
	api.OnBetRejected = func(code string) { rejected.WithLabelValues(code).Inc() }
}
