package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/duelboard/duelboard/internal/audit"
	appcfg "github.com/duelboard/duelboard/internal/config"
	"github.com/duelboard/duelboard/internal/exchange"
	"github.com/duelboard/duelboard/internal/gateway"
	"github.com/duelboard/duelboard/internal/ledger"
	"github.com/duelboard/duelboard/internal/match"
	"github.com/duelboard/duelboard/internal/msgcat"
	"github.com/duelboard/duelboard/internal/obslog"
	"github.com/duelboard/duelboard/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	cat, err := msgcat.New(cfg.MsgTemplateDir)
	if err != nil {
		obslog.L().Fatal("msgcat_init_error", zap.Error(err))
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		obslog.L().Fatal("redis_url_error", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			obslog.L().Fatal("redis_connect_error", zap.Error(err))
		}
	}
	defer rdb.Close()

	var repo audit.Repository
	if cfg.DatabaseURL != "" {
		pg, err := audit.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Fatal("audit_init_error", zap.Error(err))
		}
		repo = pg
	} else {
		obslog.L().Warn("audit_memory_fallback")
		repo = audit.NewMemoryRepository()
	}
	defer repo.Close()

	pub := stream.NewPublisher(rdb)

	ledgerMgr := ledger.NewManager(rdb, cfg.ExchangeRate)
	ledgerMgr.AttachRepository(repo)
	ledgerMgr.AttachPublisher(pub)
	if cfg.ExchangeNotifyURL != "" {
		ledgerMgr.AttachNotifier(exchange.NewNotifier(cfg.ExchangeNotifyURL))
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		obslog.L().Fatal("scheduler_init_error", zap.Error(err))
	}

	matchMgr := match.NewManager(rdb, match.Options{
		WinAward:    cfg.WinAward,
		LossPenalty: cfg.LossPenalty,
		ResetDelay:  cfg.ResetDelay,
	})
	matchMgr.AttachPublisher(pub)
	matchMgr.AttachRepository(repo)
	matchMgr.AttachScheduler(sched)

	if cfg.SweepInterval > 0 {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.SweepInterval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := matchMgr.RecoverStuck(ctx); err != nil {
					obslog.L().Warn("recover_sweep_error", zap.Error(err))
				}
			}),
		)
		if err != nil {
			obslog.L().Fatal("sweep_job_error", zap.Error(err))
		}
	}
	sched.Start()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	hub := stream.NewHub()
	go func() {
		if err := hub.Listen(rootCtx, rdb); err != nil && rootCtx.Err() == nil {
			obslog.L().Error("stream_listen_error", zap.Error(err))
		}
	}()

	gw := gateway.NewServer(hub, matchMgr, ledgerMgr, cat, cfg.AllowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obslog.L().Fatal("server_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("server_shutdown")

	rootCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = sched.Shutdown()
}
