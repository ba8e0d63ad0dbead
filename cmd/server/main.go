package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"menu_digital/internal/config"
	"menu_digital/internal/events"
	"menu_digital/internal/notify"
	"menu_digital/internal/order"
	"menu_digital/internal/payment"
	"menu_digital/internal/reaper"
	"menu_digital/internal/router"
	"menu_digital/internal/store"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 1. 建库连接，自动建表
	db, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	// 2. 组装核心服务：网关 + outbox + 生命周期服务
	gateway := payment.NewXenditGateway(cfg.XenditSecretKey, cfg.XenditWebhookToken, cfg.FrontendURL)
	outbox := events.NewOutbox(rdb, cfg.OrderEventStream)
	svc := order.NewService(db, gateway, outbox, cfg.StaleAfter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 后台任务：outbox relay、通知消费、过期桌位锁回收
	relay := events.NewRelay(rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer)
	go relay.Run(ctx)

	hub := notify.NewHub()
	consumer := events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, func(ev events.Event) {
		hub.Broadcast(notify.FromEvent(ev))
	})
	defer consumer.Close()
	go consumer.Run(ctx)

	rp := reaper.New(svc, cfg.SweepInterval)
	rp.Start(ctx)

	// 4. HTTP
	r := gin.Default()
	router.Setup(r, db, svc, gateway, rdb, hub, cfg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	// 5. 优雅停机：先停调度与消费，再给在途请求 10s 收尾
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutting down")

	cancel()
	rp.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
