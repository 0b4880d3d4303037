package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/dog-race-platform/internal/bet"
	httpapi "github.com/radieske/dog-race-platform/internal/betting-api/http"
	"github.com/radieske/dog-race-platform/internal/models"
	"github.com/radieske/dog-race-platform/internal/player"
	"github.com/radieske/dog-race-platform/internal/race"
	"github.com/radieske/dog-race-platform/internal/race-manager/announce"
	"github.com/radieske/dog-race-platform/internal/race-manager/scheduler"
	"github.com/radieske/dog-race-platform/internal/shared/cache"
	"github.com/radieske/dog-race-platform/internal/shared/config"
	"github.com/radieske/dog-race-platform/internal/shared/db"
	"github.com/radieske/dog-race-platform/internal/shared/kafka"
	"github.com/radieske/dog-race-platform/internal/shared/logger"
	"github.com/radieske/dog-race-platform/internal/shared/metrics"
	"github.com/radieske/dog-race-platform/internal/store"
	"github.com/radieske/dog-race-platform/internal/store/memory"
	"github.com/radieske/dog-race-platform/internal/store/postgres"
)

func main() {
	cfg := config.Load("race-manager")

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting service",
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreDriver),
	)

	// persistência: Postgres ou memória (demo em processo único)
	var (
		st store.Store
		pg *sql.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		st = memory.New()
	default:
		pg, err = db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.ResetDB {
			err = postgres.ResetSchema(ctx, pg)
		} else {
			err = postgres.EnsureSchema(ctx, pg)
		}
		if err != nil {
			log.Fatal("schema setup", zap.Error(err))
		}
		st = postgres.New(pg)
		log.Info("postgres connected", zap.Bool("reset", cfg.ResetDB))
	}

	// anúncios: log sempre; Kafka e Redis quando configurados
	ann := announce.Fanout{announce.Log{L: log}}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, announcements will not reach websocket clients", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			ann = append(ann, announce.NewRedis(redisClient, cfg.RedisPubSubChannel))
			log.Info("redis connected", zap.String("channel", cfg.RedisPubSubChannel))
		}
	}

	if cfg.KafkaBrokers != "" {
		writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRaceEvents)
		defer writer.Close()
		ann = append(ann, announce.Kafka{W: writer})
		log.Info("kafka writer ready", zap.String("topic", cfg.TopicRaceEvents))
	}

	races := race.NewService(st, race.Window{
		MinUntilStart:   time.Duration(cfg.Sim.MinSecondsUntilRace) * time.Second,
		MaxUntilStart:   time.Duration(cfg.Sim.MaxSecondsUntilRace) * time.Second,
		RunningDuration: cfg.Sim.RunningDuration,
		MinGap:          cfg.Sim.MinGapBetweenRaces,
	})
	bets := bet.NewEngine(st, bet.Limits{
		MinBet:    cfg.Betting.MinBet,
		MaxBet:    cfg.Betting.MaxBet,
		MaxPayout: cfg.Betting.MaxPayout,
		WinOdds:   cfg.Betting.WinOdds,
	})

	sched := scheduler.New(scheduler.Config{
		TickSpec:              cfg.Sim.TickSpec,
		MinActiveRaces:        cfg.Sim.MinActiveRaces,
		ParticipantsPerRace:   cfg.Sim.ParticipantsPerRace,
		RunningDuration:       cfg.Sim.RunningDuration,
		AnnouncementThreshold: cfg.Sim.AnnouncementThreshold,
		Seed:                  cfg.Sim.RNGSeed,
		TickOnStart:           true,
	}, races, bets, ann, log)
	instrument(sched)

	// métricas e health
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
		if s := sched.State(); s == scheduler.Stopped {
			return errors.New("scheduler stopped")
		}
		return nil
	}, log)
	log.Info("metrics/health server starting", zap.String("addr", metricsSrv.Addr))

	// com HTTP_PORT_RACE_MANAGER a API de apostas roda no mesmo processo (útil com STORE_DRIVER=memory)
	var apiSrv *http.Server
	if cfg.HTTPPort != "" {
		api := &httpapi.API{
			Log:     log,
			Players: player.NewService(st, cfg.Betting.InitialBalance),
			Races:   races,
			Bets:    bets,
		}
		apiSrv = &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.Router(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", zap.Error(err))
			}
		}()
		log.Info("embedded betting api listening", zap.String("addr", apiSrv.Addr))
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatal("scheduler start", zap.Error(err))
	}

	fmt.Println("Commands: 1 = pause, 2 = resume, 3 = stop")
	go readCommands(os.Stdin, sched, stop, log)

	<-ctx.Done()
	log.Info("shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if apiSrv != nil {
		_ = apiSrv.Shutdown(shutdownCtx)
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// readCommands controla o scheduler pela entrada padrão.
func readCommands(in io.Reader, sched *scheduler.Scheduler, stop context.CancelFunc, log *zap.Logger) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		switch strings.TrimSpace(sc.Text()) {
		case "1":
			sched.Pause()
			fmt.Println("simulation paused")
		case "2":
			sched.Resume()
			fmt.Println("simulation resumed")
		case "3":
			fmt.Println("stopping simulation")
			stop()
			return
		case "":
		default:
			fmt.Println("unknown command, use 1 (pause), 2 (resume) or 3 (stop)")
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn("stdin read", zap.Error(err))
	}
}

// instrument liga os callbacks do scheduler aos contadores Prometheus.
func instrument(s *scheduler.Scheduler) {
	ticks := prometheus.NewCounter(prometheus.CounterOpts{Name: "race_manager_ticks_total", Help: "ticks executados"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "race_manager_ticks_skipped_total", Help: "ticks descartados por sobreposição"})
	created := prometheus.NewCounter(prometheus.CounterOpts{Name: "race_manager_races_created_total", Help: "corridas agendadas"})
	finished := prometheus.NewCounter(prometheus.CounterOpts{Name: "race_manager_races_finished_total", Help: "corridas finalizadas"})
	promoted := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_manager_bets_promoted_total", Help: "apostas promovidas por status"}, []string{"status"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_manager_bets_settled_total", Help: "apostas liquidadas por resultado"}, []string{"result"})
	paid := prometheus.NewCounter(prometheus.CounterOpts{Name: "race_manager_payout_total", Help: "valor pago em prêmios"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_manager_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(ticks, skipped, created, finished, promoted, settled, paid, errorsBy)

	s.OnTick = ticks.Inc
	s.OnTickSkipped = skipped.Inc
	s.OnRaceCreated = func(models.Race) { created.Inc() }
	s.OnRaceFinished = func(models.Race) { finished.Inc() }
	s.OnBetPromoted = func(res bet.PromotionResult) { promoted.WithLabelValues(string(res.Status)).Inc() }
	s.OnBetsSettled = func(_ int64, sum bet.ResolveSummary) {
		settled.WithLabelValues("won").Add(float64(sum.Won))
		settled.WithLabelValues("lost").Add(float64(sum.Lost))
		paid.Add(sum.Paid.InexactFloat64())
	}
	s.OnError = func(stage string, _ error) { errorsBy.WithLabelValues(stage).Inc() }
}
