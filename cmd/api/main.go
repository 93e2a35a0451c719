package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/inventorynest/shop-orders/internal/auth"
	"github.com/inventorynest/shop-orders/internal/cart"
	"github.com/inventorynest/shop-orders/internal/checkout"
	"github.com/inventorynest/shop-orders/internal/config"
	"github.com/inventorynest/shop-orders/internal/httpx"
	"github.com/inventorynest/shop-orders/internal/inventory"
	kafkax "github.com/inventorynest/shop-orders/internal/kafka"
	"github.com/inventorynest/shop-orders/internal/logging"
	"github.com/inventorynest/shop-orders/internal/metrics"
	"github.com/inventorynest/shop-orders/internal/notify"
	"github.com/inventorynest/shop-orders/internal/orders"
	"github.com/inventorynest/shop-orders/internal/postgres"
	"github.com/inventorynest/shop-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.MustNew(cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db_connect_failed", zap.Error(err))
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("migrate_failed", zap.Error(err))
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Fatal("redis_connect_failed", zap.Error(err))
	}

	// Kafka producer for notifications
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, 1024, log)
	prod.Start(ctx)

	m := metrics.New(prometheus.DefaultRegisterer)
	store := postgres.NewStore(db)
	notifier := notify.NewPublisher(prod, cfg.ServiceName, m)
	orderSvc := orders.NewService(store, inventory.NewLedger(m), notifier, m)

	h := &httpx.Handler{
		Store:    store,
		Orders:   orderSvc,
		Cart:     cart.NewService(store),
		Checkout: checkout.NewService(store, orderSvc, notifier, m),
		Auth: &auth.Resolver{
			Secret:     []byte(cfg.JWTSecret),
			Sessions:   redisx.NewSessions(rdb, cfg.SessionTTL),
			SessionTTL: cfg.SessionTTL,
		},
		Cache:               &redisx.StatusCache{RDB: rdb},
		Idem:                &redisx.Idempotency{RDB: rdb},
		CheckoutMaxAttempts: cfg.CheckoutMaxAttempts,
	}
	router := httpx.NewRouter(log, m)
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http_listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http_listen_failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting_down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	prod.WaitClosed()
}
