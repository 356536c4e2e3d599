package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"newsletter_service/internal/cache"
	"newsletter_service/internal/config"
	"newsletter_service/internal/handlers"
	"newsletter_service/internal/kafka"
	"newsletter_service/internal/logging"
	"newsletter_service/internal/mail"
	"newsletter_service/internal/metrics"
	"newsletter_service/internal/repository"
	"newsletter_service/internal/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---------- config ----------
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	// ---------- db ----------
	pool, err := repository.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer pool.Close()

	// ---------- repositories ----------
	topicRepo := repository.NewTopicRepository(pool)
	subscriberRepo := repository.NewSubscriberRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	deliveryRepo := repository.NewDeliveryLogRepository(pool)

	// ---------- cache ----------
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisCache.Close()

	// ---------- kafka producer ----------
	var events service.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewSyncProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatal().Err(err).Msg("kafka producer")
		}
		defer producer.Close()
		events = producer
	}

	// ---------- mailer ----------
	mailer, err := mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("mailer")
	}

	// ---------- services ----------
	dispatcher := service.NewDispatcher(
		messageRepo,
		topicRepo,
		subscriberRepo,
		deliveryRepo,
		mailer,
		events,
		cfg.SendTimeout,
		log,
	)
	scheduler := service.NewScheduler(dispatcher, messageRepo, cfg.CronSpec, log)
	topicSvc := service.NewTopicService(topicRepo, log)
	subscriberSvc := service.NewSubscriberService(subscriberRepo, topicRepo, redisCache, cfg.CacheTTL, log)
	messageSvc := service.NewMessageService(messageRepo, topicRepo, deliveryRepo, redisCache, cfg.CacheTTL, log)

	// ---------- metrics ----------
	metrics.Register()
	metrics.StartDBCollector(ctx, pool, 15*time.Second, log)
	metrics.StartRedisCollector(ctx, redisCache.RawClient(), 15*time.Second, log)

	// ---------- scheduler ----------
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}
	defer scheduler.Stop()

	// ---------- handlers ----------
	topicHandler := handlers.NewTopicHandler(topicSvc)
	subscriberHandler := handlers.NewSubscriberHandler(subscriberSvc)
	newsletterHandler := handlers.NewNewsletterHandler(messageSvc, scheduler)

	// ---------- router ----------
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	handlers.RegisterTopicRoutes(r, topicHandler)
	handlers.RegisterSubscriberRoutes(r, subscriberHandler)
	handlers.RegisterNewsletterRoutes(r, newsletterHandler)

	// ---------- start server ----------
	addr := ":" + cfg.HTTPPort
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
