package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/inventorynest/shop-orders/internal/config"
	"github.com/inventorynest/shop-orders/internal/httpx"
	kafkax "github.com/inventorynest/shop-orders/internal/kafka"
	"github.com/inventorynest/shop-orders/internal/logging"
	"github.com/inventorynest/shop-orders/internal/metrics"
	"github.com/inventorynest/shop-orders/internal/notify"
	"github.com/inventorynest/shop-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.MustNew(cfg.ServiceName+"-notifier", cfg.Env)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Fatal("redis_connect_failed", zap.Error(err))
	}

	var mailer notify.Mailer = notify.LogMailer{Log: log}
	if cfg.SMTPAddr != "" {
		sm, err := notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
		if err != nil {
			log.Fatal("smtp_config_invalid", zap.Error(err))
		}
		mailer = sm
	}
	m := metrics.New(prometheus.DefaultRegisterer)
	svc := &notify.Service{
		Dedup:   &redisx.Dedup{RDB: rdb, Service: "notifier"},
		Mailer:  mailer,
		Metrics: m,
	}

	// health + metrics only
	srv := &http.Server{Addr: cfg.NotifierHTTP, Handler: httpx.NewRouter(log, m)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_listen_failed", zap.Error(err))
		}
	}()

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, cfg.NotifyTopic, cfg.NotifierWorkers, log)
	cons.MaxAttempts = cfg.NotifierRetries
	cons.Backoff = cfg.NotifierBackoff
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier_consumer_started",
			zap.String("group", cfg.NotifierGroup),
			zap.String("topic", cfg.NotifyTopic),
			zap.Int("workers", cfg.NotifierWorkers),
		)
		if err := cons.Start(logging.ContextWithLogger(ctx, log), svc.HandleNotification); err != nil {
			log.Error("consumer_exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting_down")
	cancel()
	<-done
	_ = srv.Shutdown(context.Background())
}
