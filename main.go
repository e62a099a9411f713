package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Traviscatt/picknroll-sub000/internal/auth"
	"github.com/Traviscatt/picknroll-sub000/internal/clickhouse"
	"github.com/Traviscatt/picknroll-sub000/internal/dal"
	"github.com/Traviscatt/picknroll-sub000/internal/espn"
	grpcserver "github.com/Traviscatt/picknroll-sub000/internal/grpc"
	"github.com/Traviscatt/picknroll-sub000/internal/handlers"
	"github.com/Traviscatt/picknroll-sub000/internal/logger"
	"github.com/Traviscatt/picknroll-sub000/internal/metrics"
	"github.com/Traviscatt/picknroll-sub000/internal/mocks"
	"github.com/Traviscatt/picknroll-sub000/internal/pubsub"
	"github.com/Traviscatt/picknroll-sub000/internal/recalc"
	"github.com/Traviscatt/picknroll-sub000/internal/scoring"
)

// historyStore records and serves score history
type historyStore interface {
	recalc.History
	handlers.HistoryReader
	Close() error
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func isDevelopment(environment string) bool {
	return environment == "" || environment == "development"
}

func main() {
	// Initialize logger first
	logger.Init()

	logger.Info("Starting PicknRoll scoring service")

	environment := os.Getenv("ENVIRONMENT")

	dataStore := openStore(environment)
	table := loadRules()

	// Use embedded NATS in development mode, real NATS in production
	natsSubject := getenv("NATS_SUBJECT", "picknroll.events")
	var upstream pubsub.Upstream
	var jetstream *pubsub.NATSPubSub
	if isDevelopment(environment) && os.Getenv("NATS_MODE") == "mock" {
		mockNats := pubsub.NewMockNATSPubSub(natsSubject)
		defer mockNats.Close()
		upstream = mockNats
	} else if isDevelopment(environment) {
		logger.Info("Starting embedded NATS server for local development")
		opts := pubsub.DefaultEmbeddedNATSOptions()
		opts.Subject = natsSubject
		embeddedNats, err := pubsub.NewEmbeddedNATSPubSub(opts)
		if err != nil {
			logger.Error("Failed to initialize embedded NATS", "error", err)
			log.Fatalf("Failed to initialize embedded NATS: %v", err)
		}
		defer embeddedNats.Close()
		upstream = embeddedNats
		logger.Info("Embedded NATS server ready", "url", embeddedNats.ServerURL())
	} else {
		natsURL := getenv("NATS_URL", "nats://localhost:4222")
		realNats, err := pubsub.NewNATSPubSub(natsURL, natsSubject)
		if err != nil {
			logger.Error("Failed to initialize NATS", "error", err)
			log.Fatalf("Failed to initialize NATS: %v", err)
		}
		defer realNats.Close()
		upstream = realNats
		jetstream = realNats
	}
	ps := pubsub.NewWithUpstream(upstream)

	history := openHistory(environment)
	defer history.Close()

	m := metrics.New()

	workers, err := strconv.Atoi(getenv("RECALC_WORKERS", "4"))
	if err != nil {
		log.Fatalf("Invalid RECALC_WORKERS: %v", err)
	}

	svc := recalc.New(dataStore, table,
		recalc.WithPublisher(ps),
		recalc.WithHistory(history),
		recalc.WithMetrics(m),
		recalc.WithWorkers(workers),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bring stored totals in line with the active rules before serving
	if _, err := svc.RecalculateAll(ctx); err != nil {
		logger.Error("Startup recalculation failed", "error", err)
	}

	// Shared NATS deployments recalculate each result once through a durable
	// queue consumer. Single instances listen on the local bus.
	var resultEvents <-chan pubsub.Event
	if jetstream != nil {
		resultEvents = queueResultEvents(ctx, jetstream, getenv("NATS_RECALC_CONSUMER", "picknroll-recalc"))
	} else {
		local := ps.SubscribeTypes(pubsub.EventResultsRecorded, pubsub.EventResultsCleared)
		defer ps.Unsubscribe(local)
		resultEvents = local
	}
	go svc.Run(ctx, resultEvents)

	if feedURL := os.Getenv("RESULTS_FEED_URL"); feedURL != "" {
		go newFeed(feedURL, dataStore, ps, m).Run(ctx)
	} else {
		logger.Info("Results feed disabled (RESULTS_FEED_URL not set)")
	}

	// Start gRPC server in a goroutine
	grpcPort := getenv("GRPC_PORT", "50051")
	lis, err := net.Listen("tcp", "0.0.0.0:"+grpcPort)
	if err != nil {
		logger.Error("Failed to listen for gRPC", "error", err, "port", grpcPort)
		log.Fatalf("Failed to listen for gRPC: %v", err)
	}
	grpcServer := grpcserver.NewServer(dataStore, 15*time.Second)
	go grpcServer.Watch(ctx)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("Failed to serve gRPC", "error", err)
		}
	}()

	adminKey := os.Getenv("ADMIN_KEY")
	if adminKey == "" {
		logger.Warn("ADMIN_KEY not set, admin routes are disabled")
	}

	mux := http.NewServeMux()
	api := handlers.NewAPIHandlers(dataStore, svc, ps, history, m)
	api.Register(mux, auth.NewAdminGuard(adminKey))

	addr := "0.0.0.0:" + getenv("PORT", "3000")
	server := &http.Server{
		Addr:              addr,
		Handler:           handlers.WithLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed", "error", err)
		}
		grpcServer.Stop()
	}()

	logger.Info("Server starting", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Failed to start server", "error", err)
		log.Fatalf("Failed to start server: %v", err)
	}

	logger.Info("Server stopped")
}

func openStore(environment string) dal.PoolDAL {
	dbDriver := getenv("DB_DRIVER", "memory")
	sqliteFile := getenv("SQLITE_FILE", "dev.sqlite")

	switch dbDriver {
	case "memory":
		logger.Info("Using in-memory data store")
		return dal.NewMemoryDAL()
	case "sqlite":
		store, err := dal.NewSQLiteDAL(sqliteFile)
		if err != nil {
			logger.Error("Failed to initialize SQLite", "error", err)
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		logger.Info("Connected to SQLite database", "file", sqliteFile)
		return store
	case "postgres":
		dbConnString := os.Getenv("DATABASE_URL")
		if dbConnString == "" {
			if isDevelopment(environment) {
				store, err := mocks.NewMockPostgresDAL(sqliteFile)
				if err != nil {
					log.Fatalf("Failed to initialize mock Postgres: %v", err)
				}
				return store
			}
			logger.Error("DATABASE_URL environment variable is required for postgres driver")
			log.Fatal("DATABASE_URL environment variable is required for postgres driver")
		}
		store, err := dal.NewPostgresDAL(dbConnString)
		if err != nil {
			logger.Error("Failed to initialize Postgres", "error", err)
			log.Fatalf("Failed to initialize Postgres: %v", err)
		}
		logger.Info("Connected to Postgres database")
		return store
	default:
		logger.Error("Unknown DB_DRIVER", "driver", dbDriver)
		log.Fatalf("Unknown DB_DRIVER: %s (valid: memory, sqlite, postgres)", dbDriver)
	}
	return nil
}

func loadRules() *scoring.RuleTable {
	path := os.Getenv("SCORING_RULES_FILE")
	if path == "" {
		table := scoring.DefaultRuleTable()
		logger.Info("Using default scoring rules", "maxPoints", table.MaxPointsTotal())
		return table
	}

	table, err := scoring.LoadRuleTable(path)
	if err != nil {
		logger.Error("Failed to load scoring rules", "error", err, "file", path)
		log.Fatalf("Failed to load scoring rules: %v", err)
	}
	logger.Info("Loaded scoring rules", "file", path, "maxPoints", table.MaxPointsTotal())
	return table
}

// openHistory returns ClickHouse in production and an in-memory recorder otherwise
func openHistory(environment string) historyStore {
	if isDevelopment(environment) {
		return mocks.NewMockClickHouseClient()
	}

	chAddr := getenv("CLICKHOUSE_ADDR", "localhost:9000")
	chDB := getenv("CLICKHOUSE_DB", "default")
	chUser := getenv("CLICKHOUSE_USER", "default")
	chPass := os.Getenv("CLICKHOUSE_PASSWORD")

	client, err := clickhouse.NewClient(chAddr, chDB, chUser, chPass)
	if err != nil {
		logger.Error("Failed to initialize ClickHouse", "error", err, "address", chAddr)
		log.Fatalf("Failed to initialize ClickHouse: %v", err)
	}
	logger.Info("Connected to ClickHouse", "address", chAddr, "database", chDB)
	return client
}

// queueResultEvents feeds result events taken from the durable consumer into
// a channel for the recalculation loop
func queueResultEvents(ctx context.Context, js *pubsub.NATSPubSub, consumer string) <-chan pubsub.Event {
	events := make(chan pubsub.Event, 16)
	err := js.SubscribeJetStream(consumer, func(e pubsub.Event) {
		if e.Type != pubsub.EventResultsRecorded && e.Type != pubsub.EventResultsCleared {
			return
		}
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})
	if err != nil {
		logger.Error("Failed to join recalculation consumer", "error", err, "consumer", consumer)
		log.Fatalf("Failed to join recalculation consumer: %v", err)
	}
	return events
}

func newFeed(url string, d dal.PoolDAL, ps *pubsub.PubSub, m *metrics.Metrics) *espn.Syncer {
	interval, err := time.ParseDuration(getenv("RESULTS_FEED_INTERVAL", "1m"))
	if err != nil || interval <= 0 {
		log.Fatalf("Invalid RESULTS_FEED_INTERVAL: %q", os.Getenv("RESULTS_FEED_INTERVAL"))
	}

	opts := []espn.Option{
		espn.WithPublisher(ps),
		espn.WithMetrics(m),
		espn.WithInterval(interval),
	}
	if path := os.Getenv("RESULTS_FEED_GAME_MAP"); path != "" {
		ids, err := espn.LoadGameIDs(path)
		if err != nil {
			log.Fatalf("Failed to load RESULTS_FEED_GAME_MAP: %v", err)
		}
		opts = append(opts, espn.WithGameIDs(ids))
	}

	return espn.NewSyncer(espn.NewClient(url, nil), d, opts...)
}
