// The lambda entry point unwraps SNS envelopes: each record's message is
// either a pipeline lifecycle event, a CloudWatch alarm payload, or plain
// text. Pipeline events flow through the orchestrator; the other two map
// straight to Alarm/Simple notifications.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/pipewatch/pipewatch/internal/bot"
	"github.com/pipewatch/pipewatch/internal/config"
	"github.com/pipewatch/pipewatch/internal/diag"
	"github.com/pipewatch/pipewatch/internal/event"
	"github.com/pipewatch/pipewatch/internal/logging"
	"github.com/pipewatch/pipewatch/internal/models"
	"github.com/pipewatch/pipewatch/internal/notify"
	"github.com/pipewatch/pipewatch/internal/route"
	"github.com/pipewatch/pipewatch/internal/scm"
	"github.com/pipewatch/pipewatch/internal/store"
	"github.com/pipewatch/pipewatch/internal/tracker"
)

type handler struct {
	bot      *bot.Bot
	router   *route.Router
	notifier *notify.SlackClient
	log      *zap.SugaredLogger
}

type cloudWatchAlarm struct {
	AlarmName        string `json:"AlarmName"`
	AlarmDescription string `json:"AlarmDescription"`
	NewStateValue    string `json:"NewStateValue"`
}

func (h *handler) handle(ctx context.Context, snsEvent events.SNSEvent) error {
	for _, record := range snsEvent.Records {
		if err := h.handleMessage(ctx, record.SNS.Message); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) handleMessage(ctx context.Context, message string) error {
	var ev event.Event
	if err := json.Unmarshal([]byte(message), &ev); err == nil && ev.DetailType != "" {
		return h.handlePipelineEvent(ctx, ev)
	}

	var alarm cloudWatchAlarm
	if err := json.Unmarshal([]byte(message), &alarm); err == nil && alarm.AlarmName != "" {
		return h.deliver(ctx, models.AlarmNotification{
			Name:        alarm.AlarmName,
			Description: alarm.AlarmDescription,
			State:       alarm.NewStateValue,
		})
	}

	return h.deliver(ctx, models.SimpleNotification{Text: message})
}

func (h *handler) handlePipelineEvent(ctx context.Context, ev event.Event) error {
	res, err := h.bot.Handle(ctx, ev)
	if err != nil {
		return fmt.Errorf("handle event for execution %s: %w", ev.Detail.ExecutionID, err)
	}
	if res == nil || res.Notification == nil {
		return nil
	}
	if err := h.deliver(ctx, res.Notification); err != nil {
		return err
	}
	if err := h.bot.NotificationSent(ctx, res); err != nil {
		if errors.Is(err, store.ErrAlreadyNotified) {
			h.log.Warnw("notification race lost, message may have been duplicated",
				"execution", ev.Detail.ExecutionID)
			return nil
		}
		return err
	}
	return nil
}

func (h *handler) deliver(ctx context.Context, n models.Notification) error {
	channel, ok := h.router.Evaluate(route.Attributes(n))
	if !ok {
		h.log.Infow("no route matched notification", "type", n.NotificationKind())
		return nil
	}
	return h.notifier.Send(ctx, channel, n)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Fatalw("failed to load aws config", "error", err)
	}

	var st store.Store
	switch {
	case cfg.DynamoTable != "":
		st = store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
	case cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalw("failed to open postgres", "error", err)
		}
		st = store.NewPGStore(db)
	default:
		logger.Fatalw("a durable store is required: set DYNAMO_TABLE or DATABASE_URL")
	}

	var resolver tracker.CommitResolver
	if cfg.BitbucketUsername != "" {
		resolver = scm.NewBitbucketResolver(cfg.BitbucketBaseURL, cfg.BitbucketUsername, cfg.BitbucketPassword)
	} else {
		resolver = scm.NewGitHubResolver(scm.NewGitHubClient(ctx, cfg.GitHubToken))
	}

	factory := diag.NewFactory(awsCfg)
	enrichers := func(roleARN string) (bot.BuildLogResolver, bot.DeployDiagnosticsResolver) {
		return factory.ForRole(roleARN)
	}

	rules, err := cfg.LoadRoutes()
	if err != nil {
		logger.Fatalw("failed to load routing rules", "error", err)
	}

	h := &handler{
		bot:      bot.New(st, resolver, enrichers, cfg.Credentials, logger),
		router:   route.New(rules, logger),
		notifier: notify.NewSlackClient(cfg.SlackWebhookURL),
		log:      logger,
	}
	lambda.Start(h.handle)
}
