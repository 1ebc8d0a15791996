package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"ankaa/config"
	"ankaa/cron"
	"ankaa/database"
	deliveryRepo "ankaa/database/repository/delivery"
	inboxRepo "ankaa/database/repository/inbox"
	notificationRepo "ankaa/database/repository/notification"
	preferenceRepo "ankaa/database/repository/preference"
	recipientRepo "ankaa/database/repository/recipient"
	"ankaa/models"
	"ankaa/services/notification"
	"ankaa/services/notification/delivery"
	"ankaa/services/notification/dispatch"
	"ankaa/services/notification/events"
	"ankaa/services/notification/formatter"
	"ankaa/services/notification/links"
	"ankaa/services/notification/phone"
	"ankaa/services/notification/preference"
	"ankaa/services/notification/ratelimit"
	"ankaa/services/notification/transport"
	"ankaa/utils"
)

const eventPublishTimeout = 5 * time.Second

// engine is the fully wired delivery stack shared by serve and notify.
type engine struct {
	cfg         config.Config
	redis       *redis.Client
	inbox       inboxRepo.InboxRepository
	records     deliveryRepo.DeliveryRecordRepository
	transports  transport.Set
	dispatcher  *dispatch.Dispatcher
	service     *notification.DefaultNotificationService
	timer       *dispatch.TimerScheduler
	asynqClient *asynq.Client
	worker      *asynq.Server
	sink        events.Sink

	cancel context.CancelFunc
	logger *zap.Logger
}

// buildEngine connects every backend selected by configuration and starts
// the dispatcher pools.
func buildEngine(ctx context.Context, logger *zap.Logger) (*engine, error) {
	cfg := config.AppConfig
	e := &engine{cfg: cfg, logger: logger}

	if err := database.InitDB(logger); err != nil {
		return nil, err
	}
	e.redis = utils.GetCacheClient()
	db := database.Database()

	notifications, err := notificationRepo.NewMongoNotificationRepo(db)
	if err != nil {
		return nil, err
	}
	recipients, err := recipientRepo.NewMongoRecipientRepo(db)
	if err != nil {
		return nil, err
	}
	if e.inbox, err = inboxRepo.NewMongoInboxRepo(db); err != nil {
		return nil, err
	}
	prefStore, err := preferenceRepo.NewMongoPreferenceRepo(db)
	if err != nil {
		return nil, err
	}
	prefs := preferenceRepo.NewCachedPreferenceRepo(prefStore, e.redis, cfg.PreferenceCacheTTL, logger)
	if e.records, err = openDeliveryStore(cfg, db, logger); err != nil {
		return nil, err
	}

	limiter := newLimiter(cfg, e.redis)
	if e.transports, err = buildTransports(ctx, cfg, e.inbox, e.redis, logger); err != nil {
		return nil, err
	}

	plan, ok := phone.PlanFor(cfg.PhoneCountry)
	if !ok {
		return nil, fmt.Errorf("unsupported PHONE_COUNTRY %q", cfg.PhoneCountry)
	}

	linkResolver := links.NewResolver(cfg.WebBaseURL)
	// attempts untouched for twice the transport timeout are abandoned
	tracker := delivery.NewTracker(e.records, notifications, logger).WithStaleAfter(2 * cfg.TransportTimeout)
	rs := cfg.RetryPolicy()
	controller := delivery.NewController(delivery.RetryPolicy{
		MaxAttempts:   rs.MaxAttempts,
		BaseDelay:     rs.BaseDelay,
		BackoffFactor: rs.BackoffFactor,
		MaxDeferrals:  rs.MaxDeferrals,
	}, tracker, logger)

	var scheduler dispatch.Scheduler
	switch cfg.RetryBackend {
	case "asynq":
		e.asynqClient = asynq.NewClient(cron.RedisConnOpt())
		scheduler = cron.NewAsynqScheduler(e.asynqClient, logger)
	case "memory", "":
		e.timer = dispatch.NewTimerScheduler(logger)
		scheduler = e.timer
	default:
		return nil, fmt.Errorf("unknown RETRY_BACKEND %q", cfg.RetryBackend)
	}

	e.dispatcher = dispatch.NewDispatcher(dispatch.Deps{
		Preferences: preference.NewResolver(prefs, preference.Policy{
			Supported: e.transports.Channels(),
			Fallback:  cfg.FallbackChannels(),
			OptIn:     cfg.OptInChannels(),
		}, logger),
		Formatter:  formatter.New(linkResolver, logger),
		Links:      linkResolver,
		Limiter:    limiter,
		Transports: e.transports,
		Tracker:    tracker,
		Controller: controller,
		Scheduler:  scheduler,
		PhonePlan:  plan,
	}, dispatch.Options{
		Concurrency: cfg.ChannelConcurrency(),
		QueueBuffer: cfg.QueueBuffer,
	}, logger)

	if e.sink, err = openSink(cfg); err != nil {
		return nil, err
	}
	if e.sink != nil {
		e.dispatcher.Observe(events.Observer(e.sink, eventPublishTimeout, logger))
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.dispatcher.Start(runCtx)
	if e.asynqClient != nil {
		e.worker = cron.InitRedeliveryWorker(e.dispatcher.Redeliver, logger)
	}

	e.service, err = notification.NewDefaultNotificationService(notifications, recipients, e.records, e.dispatcher, e.transports, limiter, logger)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Close stops the pools after their buffers drain, then releases backends.
func (e *engine) Close(ctx context.Context) {
	if e.worker != nil {
		e.worker.Shutdown()
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.cancel()
	e.dispatcher.Close()

	if e.asynqClient != nil {
		if err := e.asynqClient.Close(); err != nil {
			e.logger.Warn("Failed to close asynq client", zap.Error(err))
		}
	}
	if e.sink != nil {
		if err := e.sink.Close(); err != nil {
			e.logger.Warn("Failed to close event sink", zap.Error(err))
		}
	}
	if err := database.Disconnect(ctx); err != nil {
		e.logger.Warn("Failed to disconnect from MongoDB", zap.Error(err))
	}
}

func openDeliveryStore(cfg config.Config, db *mongo.Database, logger *zap.Logger) (deliveryRepo.DeliveryRecordRepository, error) {
	switch cfg.DeliveryStore {
	case "mongo", "":
		return deliveryRepo.NewMongoDeliveryRepo(db)
	case "postgres":
		pg, err := database.OpenPostgres(cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return deliveryRepo.NewPostgresDeliveryRepo(pg)
	}
	return nil, fmt.Errorf("unknown DELIVERY_STORE %q", cfg.DeliveryStore)
}

func newLimiter(cfg config.Config, client *redis.Client) ratelimit.Limiter {
	if cfg.RateLimitBackend == "redis" {
		return ratelimit.NewRedisLimiter(client, cfg.ChannelRateLimits(), cfg.RateLimitWindow)
	}
	return ratelimit.NewSlidingWindow(cfg.ChannelRateLimits(), cfg.RateLimitWindow)
}

// buildTransports returns a transport for every channel that is configured.
// In-app delivery needs only the stores and is always on.
func buildTransports(ctx context.Context, cfg config.Config, inbox inboxRepo.InboxRepository, client *redis.Client, logger *zap.Logger) (transport.Set, error) {
	ts := []transport.Transport{transport.NewInAppTransport(inbox, client, logger)}
	if cfg.SMTPHost != "" {
		ts = append(ts, transport.NewEmailTransport(transport.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger))
	}
	if cfg.SMSGatewayURL != "" {
		ts = append(ts, transport.NewSMSTransport(cfg.SMSGatewayURL, cfg.SMSGatewayToken, cfg.TransportTimeout, logger))
	}
	if cfg.ChatGatewayURL != "" {
		ts = append(ts, transport.NewChatTransport(cfg.ChatGatewayURL, cfg.ChatGatewayToken, cfg.TransportTimeout, logger))
	}
	fcm, err := utils.FirebaseInit(ctx)
	if err != nil {
		return nil, err
	}
	if fcm != nil {
		ts = append(ts, transport.NewPushTransport(fcm, logger))
	}

	set := transport.NewSet(ts...)
	for _, ch := range models.AllChannels {
		if _, ok := set.Get(ch); !ok {
			logger.Info("Channel disabled, no transport configured", zap.String("channel", string(ch)))
		}
	}
	return set, nil
}

func openSink(cfg config.Config) (events.Sink, error) {
	switch cfg.EventsSink {
	case "none", "":
		return nil, nil
	case "kafka":
		prod, err := events.NewKafkaProducer(cfg.KafkaBrokerList())
		if err != nil {
			return nil, err
		}
		return events.NewKafkaSink(prod, cfg.KafkaTopic), nil
	case "rabbitmq":
		return events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	}
	return nil, fmt.Errorf("unknown EVENTS_SINK %q", cfg.EventsSink)
}
