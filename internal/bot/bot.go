// Package bot orchestrates one inbound pipeline event end to end: classify,
// fold into the execution tracker, enrich a confirmed failure, and build the
// single notification for the execution's terminal disposition.
package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pipewatch/pipewatch/internal/event"
	"github.com/pipewatch/pipewatch/internal/models"
	"github.com/pipewatch/pipewatch/internal/store"
	"github.com/pipewatch/pipewatch/internal/tracker"
)

// BuildLogResolver resolves a failed build to its log URL.
type BuildLogResolver interface {
	LogURL(ctx context.Context, buildID string) (string, error)
}

// DeployDiagnosticsResolver resolves a failed deployment to per-target detail.
type DeployDiagnosticsResolver interface {
	TargetDiagnostics(ctx context.Context, deploymentID string) ([]models.TargetDiagnostics, error)
}

// Result is the outcome of handling one event. Notification is nil when the
// event produced nothing to say. Terminal marks notifications that represent
// the execution's final disposition; only those participate in the
// notify-once bookkeeping.
type Result struct {
	Notification models.Notification
	Terminal     bool

	tracker *tracker.Tracker
}

// Bot drives the tracker and enrichers for each inbound event.
type Bot struct {
	store       store.Store
	scm         tracker.CommitResolver
	enrichers   EnricherFactory
	credentials []CredentialEntry
	log         *zap.SugaredLogger
}

// EnricherFactory returns diagnostic resolvers for a resolved credential
// scope. An empty role ARN means ambient credentials.
type EnricherFactory func(roleARN string) (BuildLogResolver, DeployDiagnosticsResolver)

func New(st store.Store, scm tracker.CommitResolver, enrichers EnricherFactory, credentials []CredentialEntry, log *zap.SugaredLogger) *Bot {
	return &Bot{
		store:       st,
		scm:         scm,
		enrichers:   enrichers,
		credentials: credentials,
		log:         log,
	}
}

// Handle processes one inbound event and returns a Result, nil when the event
// classifies as unknown or carries nothing notification-worthy. Stage events
// are intentionally ignored: they carry no information the action events
// don't.
func (b *Bot) Handle(ctx context.Context, ev event.Event) (*Result, error) {
	category := event.Classify(ev.DetailType)
	switch category {
	case event.CategoryUnknown, event.CategoryStage:
		return nil, nil
	}

	tr := tracker.New(b.store, b.scm, b.log)
	if _, err := tr.Load(ctx, ev.Detail.ExecutionID); err != nil {
		return nil, err
	}

	switch category {
	case event.CategoryExecution:
		// Failure is detected at action granularity; only execution-level
		// success triggers a notification from whatever state accumulated.
		if ev.Detail.State != event.StateSucceeded {
			return nil, nil
		}
		// A named execution event may arrive before any action event.
		tr.SetPipelineName(ev.Detail.Pipeline)
		if tr.Record().IsNotified {
			return nil, nil
		}
		n, err := b.BuildNotification(ctx, tr)
		if err != nil {
			return nil, err
		}
		return &Result{Notification: n, Terminal: true, tracker: tr}, nil

	case event.CategoryAction:
		if _, err := tr.FoldEvent(ctx, ev); err != nil {
			return nil, err
		}
		if ev.Detail.Type.Provider == event.ProviderManual && ev.Detail.State == event.StateStarted {
			rec := tr.Record()
			return &Result{
				Notification: models.ManualApprovalNotification{
					Pipeline: rec.PipelineName,
					Link:     rec.Approval.Link,
					Comment:  rec.Approval.Comment,
				},
				tracker: tr,
			}, nil
		}
		if tr.IsFailed() && !tr.Record().IsNotified {
			n, err := b.BuildNotification(ctx, tr)
			if err != nil {
				return nil, err
			}
			return &Result{Notification: n, Terminal: true, tracker: tr}, nil
		}
		return &Result{tracker: tr}, nil
	}
	return nil, nil
}

// BuildNotification materializes the Pipeline notification for the tracker's
// current state, enriching the first failure when there is one. Enrichment
// errors propagate: a partial notification is worse than a retried one.
func (b *Bot) BuildNotification(ctx context.Context, tr *tracker.Tracker) (models.Notification, error) {
	rec := tr.Record()
	n := models.PipelineNotification{
		Name:        rec.PipelineName,
		Commit:      rec.Commit,
		Successfull: !tr.IsFailed(),
	}
	failure := tr.FirstFailure()
	if failure == nil {
		return n, nil
	}
	roleARN := ResolveCredentialScope(rec.PipelineName, b.credentials)
	buildResolver, deployResolver := b.enrichers(roleARN)
	switch failure.Kind {
	case models.FailureBuild:
		logURL, err := buildResolver.LogURL(ctx, failure.ID)
		if err != nil {
			return nil, fmt.Errorf("enrich build failure: %w", err)
		}
		n.Failure = models.CodeBuildDetail{LogURL: logURL}
	case models.FailureDeploy:
		targets, err := deployResolver.TargetDiagnostics(ctx, failure.ID)
		if err != nil {
			return nil, fmt.Errorf("enrich deploy failure: %w", err)
		}
		n.Failure = models.CodeDeployDetail{
			DeploymentID: failure.ID,
			Summary:      failure.Summary,
			Targets:      targets,
		}
	case models.FailureCheckout:
		// Checkout failures carry no external diagnostics.
	}
	return n, nil
}

// NotificationSent records that the result's notification was delivered. The
// caller invokes it after delivery succeeds, never before, so a delivery
// failure leaves the record eligible for retry on the next event. A lost
// notify-once race surfaces as store.ErrAlreadyNotified.
func (b *Bot) NotificationSent(ctx context.Context, res *Result) error {
	if res == nil || !res.Terminal || res.tracker == nil {
		return nil
	}
	return res.tracker.MarkNotified(ctx)
}
