// Package tracker accumulates the state of one pipeline execution from an
// unordered stream of action events. It classifies each event by its declared
// provider, folds the relevant facts into the durable ExecutionRecord, and
// answers whether the execution is in a failed state.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/pipewatch/pipewatch/internal/event"
	"github.com/pipewatch/pipewatch/internal/models"
	"github.com/pipewatch/pipewatch/internal/store"
)

// CommitResolver fetches full commit metadata from a code host. The git
// hosting provider is a caller-supplied capability; implementations live in
// internal/scm.
type CommitResolver interface {
	ResolveCommit(ctx context.Context, repositoryID, commitID string) (models.Commit, error)
}

// Tracker owns one execution's record for the duration of processing a single
// event. It is not safe for concurrent use; create one per invocation.
type Tracker struct {
	store  store.Store
	scm    CommitResolver
	log    *zap.SugaredLogger
	record models.ExecutionRecord
}

func New(st store.Store, resolver CommitResolver, log *zap.SugaredLogger) *Tracker {
	return &Tracker{store: st, scm: resolver, log: log}
}

// Load reads the record for executionID into working memory. A missing row is
// not an error: the tracker starts from a fresh zero record and reports
// found=false.
func (t *Tracker) Load(ctx context.Context, executionID string) (bool, error) {
	rec, err := t.store.Get(ctx, executionID)
	if errors.Is(err, store.ErrNotFound) {
		t.record = models.ExecutionRecord{ExecutionID: executionID}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load execution %s: %w", executionID, err)
	}
	t.record = rec
	return true, nil
}

// Record returns a copy of the current working record.
func (t *Tracker) Record() models.ExecutionRecord {
	rec := t.record
	rec.Failures = append([]models.FailureEntry(nil), t.record.Failures...)
	return rec
}

// SetPipelineName records the pipeline name when the event carries one.
// Overwrites are idempotent: every event for an execution names the same
// pipeline.
func (t *Tracker) SetPipelineName(name string) {
	if name != "" {
		t.record.PipelineName = name
	}
}

// IsFailed reports whether any FAILED action event has been folded in.
func (t *Tracker) IsFailed() bool {
	return len(t.record.Failures) > 0
}

// FirstFailure returns the first observed failure, which is authoritative for
// notification purposes regardless of true chronology, or nil.
func (t *Tracker) FirstFailure() *models.FailureEntry {
	if len(t.record.Failures) == 0 {
		return nil
	}
	first := t.record.Failures[0]
	return &first
}

// Save persists the full current record, overwriting any stored state.
func (t *Tracker) Save(ctx context.Context) error {
	if err := t.store.Put(ctx, t.record); err != nil {
		return fmt.Errorf("save execution %s: %w", t.record.ExecutionID, err)
	}
	return nil
}

// MarkNotified conditionally records that the terminal notification for this
// execution went out. Propagates store.ErrAlreadyNotified on a lost race.
func (t *Tracker) MarkNotified(ctx context.Context) error {
	if err := t.store.MarkNotified(ctx, t.record.ExecutionID); err != nil {
		return err
	}
	t.record.IsNotified = true
	return nil
}

// FoldEvent classifies an action event by its declared provider and folds it
// into the record, persisting after every mutation. It returns the appended
// FailureEntry when the event was a failure, nil otherwise.
func (t *Tracker) FoldEvent(ctx context.Context, ev event.Event) (*models.FailureEntry, error) {
	t.SetPipelineName(ev.Detail.Pipeline)
	switch ev.Detail.Type.Provider {
	case event.ProviderCodeStarSource:
		return t.foldCheckout(ctx, ev)
	case event.ProviderCodeBuild:
		return t.foldBuild(ctx, ev)
	case event.ProviderManual:
		return t.foldApproval(ctx, ev)
	default:
		// Compatibility shim: upstream omits the provider on some
		// deploy-stage summary events, so every unrecognized provider is
		// handled as a deployment action.
		return t.foldDeploy(ctx, ev)
	}
}

func (t *Tracker) foldCheckout(ctx context.Context, ev event.Event) (*models.FailureEntry, error) {
	if ev.Detail.Stage != "Source" {
		return nil, nil
	}
	switch ev.Detail.State {
	case event.StateSucceeded:
		res := ev.Detail.ExecutionResult
		if res == nil {
			return nil, fmt.Errorf("checkout succeeded for %s without execution-result", t.record.ExecutionID)
		}
		repositoryID, commitID, err := parseCheckoutResult(res.ExternalExecutionURL)
		if err != nil {
			return nil, fmt.Errorf("checkout succeeded for %s: %w", t.record.ExecutionID, err)
		}
		commit, err := t.scm.ResolveCommit(ctx, repositoryID, commitID)
		if err != nil {
			return nil, fmt.Errorf("resolve commit %s@%s: %w", repositoryID, commitID, err)
		}
		t.record.Commit = commit
		return nil, t.Save(ctx)
	case event.StateFailed:
		return t.appendFailure(ctx, models.FailureEntry{
			Kind: models.FailureCheckout,
			Name: ev.Detail.Action,
		})
	default:
		return nil, nil
	}
}

func (t *Tracker) foldBuild(ctx context.Context, ev event.Event) (*models.FailureEntry, error) {
	if ev.Detail.State != event.StateFailed {
		return nil, nil
	}
	entry := models.FailureEntry{
		Kind: models.FailureBuild,
		Name: ev.Detail.Action,
	}
	if res := ev.Detail.ExecutionResult; res != nil {
		entry.ID = res.ExternalExecutionID
		entry.Link = res.ExternalExecutionURL
	}
	return t.appendFailure(ctx, entry)
}

func (t *Tracker) foldDeploy(ctx context.Context, ev event.Event) (*models.FailureEntry, error) {
	if ev.Detail.State != event.StateFailed {
		return nil, nil
	}
	entry := models.FailureEntry{
		Kind: models.FailureDeploy,
		Name: ev.Detail.Action,
	}
	if res := ev.Detail.ExecutionResult; res != nil {
		entry.ID = res.ExternalExecutionID
		entry.Link = res.ExternalExecutionURL
		entry.Summary = res.ExternalExecutionSummary
	}
	return t.appendFailure(ctx, entry)
}

func (t *Tracker) foldApproval(ctx context.Context, ev event.Event) (*models.FailureEntry, error) {
	approval := ev.Detail.Approval
	if approval == nil {
		return nil, nil
	}
	t.record.Approval = models.ApprovalAttributes{
		Link:    approval.ExternalEntityLink,
		Comment: approval.CustomData,
	}
	return nil, t.Save(ctx)
}

// appendFailure is append-only: observed failures are never reordered or
// deduplicated, so folding the same FAILED event twice records it twice.
func (t *Tracker) appendFailure(ctx context.Context, entry models.FailureEntry) (*models.FailureEntry, error) {
	t.record.Failures = append(t.record.Failures, entry)
	t.log.Infow("recorded action failure",
		"execution", t.record.ExecutionID,
		"kind", entry.Kind,
		"action", entry.Name)
	if err := t.Save(ctx); err != nil {
		return nil, err
	}
	return &entry, nil
}

// parseCheckoutResult extracts the repository and commit identifiers from the
// URL-encoded execution result of a successful source action.
func parseCheckoutResult(rawURL string) (repositoryID, commitID string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse execution url: %w", err)
	}
	q := u.Query()
	repositoryID = q.Get("FullRepositoryId")
	commitID = q.Get("Commit")
	if repositoryID == "" || commitID == "" {
		return "", "", fmt.Errorf("execution url %q missing FullRepositoryId or Commit", rawURL)
	}
	return repositoryID, commitID, nil
}
