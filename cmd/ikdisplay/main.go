package main

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mediamatic/ikdisplay/internal/aggregator"
	"github.com/mediamatic/ikdisplay/internal/config"
	"github.com/mediamatic/ikdisplay/internal/database"
	"github.com/mediamatic/ikdisplay/internal/dispatch"
	"github.com/mediamatic/ikdisplay/internal/embed"
	"github.com/mediamatic/ikdisplay/internal/handlers"
	"github.com/mediamatic/ikdisplay/internal/livepage"
	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/middleware"
	"github.com/mediamatic/ikdisplay/internal/models"
	"github.com/mediamatic/ikdisplay/internal/monitoring"
	"github.com/mediamatic/ikdisplay/internal/server"
	"github.com/mediamatic/ikdisplay/internal/source"
	"github.com/mediamatic/ikdisplay/internal/store"
	"github.com/mediamatic/ikdisplay/internal/twitter"
	"github.com/mediamatic/ikdisplay/internal/version"
	"github.com/mediamatic/ikdisplay/internal/xmpp"
)

const serviceName = "ikdisplay"

func main() {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)
	logger.SetLevel(config.GetLogLevel())
	if config.GetEnvBool("VERBOSE", false) {
		logger.SetLevel(logging.DebugLevel)
	}

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"commit":  version.GetShortCommit(),
	}).Info("Starting ikdisplay")

	dbCfg := database.ConfigFromEnv()
	db := database.MustConnect(dbCfg, logger)
	defer db.Close()

	ctx := context.Background()
	st := store.New(db, logger)
	if err := st.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to ensure database schema")
	}

	clk := clock.WallClock

	sessionJID, err := xmpp.ParseJID(config.GetEnv("XMPP_JID", "ikdisplay@localhost/display"))
	if err != nil {
		logger.WithError(err).Fatal("Invalid XMPP_JID")
	}
	pubsubService, err := xmpp.ParseJID(config.GetEnv("PUBSUB_SERVICE", "pubsub.mediamatic.net"))
	if err != nil {
		logger.WithError(err).Fatal("Invalid PUBSUB_SERVICE")
	}

	// The wire session is an external collaborator; until one is
	// attached, the loopback fabric carries publishes and subscriptions
	// within the process.
	fabric := xmpp.NewLoopback()
	if host := config.GetEnv("XMPP_HOST", ""); host != "" {
		logger.WithFields(logging.Fields{
			"host": host,
			"port": config.GetEnvInt("XMPP_PORT", 5222),
			"jid":  sessionJID.Full(),
		}).Warn("XMPP_HOST set but no wire session built in; using loopback fabric")
	}

	dispatcher := dispatch.New(fabric, sessionJID, st, clk, logger)
	fabric.Attach(sessionJID, dispatcher)

	pinger := xmpp.NewPinger(fabric, pubsubService, clk, logger, func() {
		dispatcher.HandleDisconnected()
		dispatcher.HandleConnected()
	})
	go pinger.Run(ctx)
	defer pinger.Stop()

	var cache goredis.UniversalClient
	if addr := config.GetEnv("REDIS_ADDR", ""); addr != "" {
		cache = goredis.NewClient(&goredis.Options{Addr: addr})
	}
	embedder := embed.New(config.GetEnv("EMBEDLY_KEY", ""), cache, logger)

	hub := livepage.NewHub(logger)
	go hub.Run()

	collector := monitoring.NewMetricsCollector(serviceName, version.Version, version.GetShortCommit())
	processed, subscriptionRequests, livePages := collector.CreateNotificationMetrics()
	dispatcher.SetMetrics(subscriptionRequests)
	hub.SetMetrics(livePages)

	registry := aggregator.NewRegistry(&aggregator.Logging{Logger: logger}, logger)
	registry.SetMetrics(processed)
	registry.Register("logging", &aggregator.Logging{Logger: logger})
	registry.Register("pubsub", &aggregator.PubSub{Publisher: dispatcher, Service: pubsubService, Logger: logger})
	registry.Register("livepage", &aggregator.LivePage{Hub: hub})

	var kafkaAgg *aggregator.Kafka
	if brokers := config.GetEnvStrings("KAFKA_BROKERS", nil); len(brokers) > 0 {
		kafkaAgg, err = aggregator.NewKafka(brokers, config.GetEnv("KAFKA_TOPIC", "ikdisplay.notifications"), logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create kafka producer")
		}
		defer kafkaAgg.Close()
		registry.Register("kafka", kafkaAgg)
	}

	if room := config.GetEnv("MUC_ROOM", ""); room != "" {
		roomJID, err := xmpp.ParseJID(room)
		if err != nil {
			logger.WithError(err).Fatal("Invalid MUC_ROOM")
		}
		handle := config.GetEnv("MUC_FEED", "display")
		feed, err := st.GetFeedByHandle(ctx, handle)
		if err != nil {
			logger.WithError(err).WithFields(logging.Fields{
				"feed": handle,
			}).Fatal("Group chat feed not found")
		}
		chat := xmpp.NewGroupChat(func(n models.Notification) {
			registry.ProcessNotifications(feed, []models.Notification{n})
		})
		fabric.AttachMessages(roomJID, chat)
		logger.WithFields(logging.Fields{
			"room": roomJID.Bare(),
			"feed": feed.Handle,
		}).Info("Group chat attached")
	}

	attachStoredSources(ctx, st, dispatcher, registry, logger)
	dispatcher.HandleConnected()

	monitor := twitter.NewMonitor(
		config.GetEnv("TWITTER_STREAM_URL", "https://stream.twitter.com/1.1/statuses/filter.json"),
		config.GetEnv("TWITTER_USERNAME", ""),
		config.GetEnv("TWITTER_PASSWORD", ""),
		clk, logger)
	defer monitor.Disconnect()

	twitterDispatcher := twitter.NewDispatcher(monitor, twitter.StoreLoader{Store: st}, registry, embedder, logger)
	if err := twitterDispatcher.RefreshFilters(ctx); err != nil {
		logger.WithError(err).Warn("Could not start stream monitor")
	}

	router := server.SetupRouter(logger)
	router.Use(collector.MetricsMiddleware())

	health := monitoring.NewHealthChecker(serviceName, version.Version)
	health.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	health.AddCheck("redis", monitoring.RedisHealthCheck(cache))
	if kafkaAgg != nil {
		health.AddCheck("kafka", monitoring.KafkaProducerHealthCheck(kafkaAgg.Client()))
	}
	health.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbCfg.URL,
	}))

	router.GET("/health", health.Handler())
	router.GET("/metrics", collector.Handler())
	router.GET("/live", gin.WrapF(hub.ServeWS))
	router.GET("/live/stats", func(c *gin.Context) {
		c.JSON(200, hub.Stats())
	})

	api := router.Group("/api", middleware.AuthMiddleware(config.GetEnv("ADMIN_TOKEN", "")))
	h := &handlers.Handlers{
		Store:      st,
		Dispatcher: dispatcher,
		Twitter:    twitterDispatcher,
		Sink:       registry,
		Logger:     logger,
	}
	h.RegisterRoutes(api)

	cfg := server.DefaultConfig(serviceName, "8080")
	if err := server.Start(cfg, router, logger); err != nil {
		logger.WithError(err).Fatal("Server error")
	}
}

// attachStoredSources powers every enabled pub/sub source from the
// registry onto the dispatcher, so subscriptions resume across
// restarts.
func attachStoredSources(ctx context.Context, st *store.Store, dispatcher *dispatch.Dispatcher, sink aggregator.Aggregator, logger logging.Logger) {
	records, err := st.ListSources(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to list sources")
	}

	attached := 0
	for i := range records {
		rec := &records[i]
		if !rec.Enabled || rec.Kind == string(source.KindTwitter) {
			continue
		}
		src, err := source.Load(ctx, st, rec)
		if err != nil {
			logger.WithError(err).WithFields(logging.Fields{
				"source": rec.ID,
			}).Error("Failed to load source, skipping")
			continue
		}
		service, node, err := src.NodeAddress()
		if errors.Is(err, source.ErrNoNode) {
			continue
		}
		if err != nil {
			logger.WithError(err).WithFields(logging.Fields{
				"source": rec.ID,
			}).Error("Failed to derive node address, skipping")
			continue
		}
		observer := &aggregator.FeedObserver{Source: src, Sink: sink, Logger: logger}
		if err := dispatcher.AddObserver(ctx, service, node, rec.ID, observer); err != nil {
			logger.WithError(err).WithFields(logging.Fields{
				"source": rec.ID,
				"node":   node,
			}).Error("Failed to attach source")
			continue
		}
		attached++
	}
	logger.WithFields(logging.Fields{
		"count": attached,
	}).Info("Attached stored sources")
}
