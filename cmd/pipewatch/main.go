package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/lib/pq"

	"github.com/pipewatch/pipewatch/internal/bot"
	"github.com/pipewatch/pipewatch/internal/config"
	"github.com/pipewatch/pipewatch/internal/diag"
	"github.com/pipewatch/pipewatch/internal/httpserver"
	"github.com/pipewatch/pipewatch/internal/journal"
	"github.com/pipewatch/pipewatch/internal/logging"
	"github.com/pipewatch/pipewatch/internal/notify"
	"github.com/pipewatch/pipewatch/internal/route"
	"github.com/pipewatch/pipewatch/internal/scm"
	"github.com/pipewatch/pipewatch/internal/store"
	"github.com/pipewatch/pipewatch/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatalw("failed to load aws config", "error", err)
	}

	// Store: DynamoDB when a table is configured, Postgres when a database
	// URL is, in-memory otherwise (local runs only).
	var st store.Store
	switch {
	case cfg.DynamoTable != "":
		st = store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
		logger.Infow("using dynamodb store", "table", cfg.DynamoTable)
	case cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalw("failed to open postgres", "error", err)
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			logger.Fatalw("failed to ping postgres", "error", err)
		}
		st = store.NewPGStore(db)
		logger.Infow("using postgres store")
	default:
		st = store.NewMemoryStore()
		logger.Warnw("no DYNAMO_TABLE or DATABASE_URL configured; using in-memory store")
	}

	// Commit resolver: GitHub unless Bitbucket credentials are supplied.
	var resolver tracker.CommitResolver
	if cfg.BitbucketUsername != "" {
		resolver = scm.NewBitbucketResolver(cfg.BitbucketBaseURL, cfg.BitbucketUsername, cfg.BitbucketPassword)
		logger.Infow("using bitbucket commit resolver")
	} else {
		resolver = scm.NewGitHubResolver(scm.NewGitHubClient(ctx, cfg.GitHubToken))
		logger.Infow("using github commit resolver", "authenticated", cfg.GitHubToken != "")
	}

	factory := diag.NewFactory(awsCfg)
	enrichers := func(roleARN string) (bot.BuildLogResolver, bot.DeployDiagnosticsResolver) {
		return factory.ForRole(roleARN)
	}
	b := bot.New(st, resolver, enrichers, cfg.Credentials, logger)

	rules, err := cfg.LoadRoutes()
	if err != nil {
		logger.Fatalw("failed to load routing rules", "error", err)
	}
	router := route.New(rules, logger)
	logger.Infow("routing rules loaded", "count", len(rules))

	var jrnl *journal.Journal
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 && cfg.KafkaTopic != "" {
		producer, err := journal.NewProducer(journal.ProducerConfig{
			Brokers: brokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			logger.Fatalw("failed to initialize kafka producer", "error", err)
		}
		var archiver *journal.Archiver
		if cfg.S3Bucket != "" {
			archiver, err = journal.NewArchiver(awsCfg, cfg.S3Bucket, cfg.S3Prefix)
			if err != nil {
				logger.Fatalw("failed to initialize s3 archiver", "error", err)
			}
		}
		jrnl = journal.New(producer, archiver, logger)
		defer func() { _ = jrnl.Close() }()
		logger.Infow("journal enabled", "brokers", brokers, "topic", cfg.KafkaTopic, "bucket", cfg.S3Bucket)
	}

	notifier := notify.NewSlackClient(cfg.SlackWebhookURL)
	server := httpserver.New(b, router, notifier, st, jrnl, cfg.IngestSecret, logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Infow("starting server", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("shutdown error", "error", err)
	}
	logger.Infow("server stopped")
}
