package tracker_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipewatch/pipewatch/internal/event"
	"github.com/pipewatch/pipewatch/internal/logging"
	"github.com/pipewatch/pipewatch/internal/models"
	"github.com/pipewatch/pipewatch/internal/store"
	"github.com/pipewatch/pipewatch/internal/tracker"
)

type stubResolver struct {
	commit models.Commit
	err    error
	calls  []string
}

func (s *stubResolver) ResolveCommit(ctx context.Context, repositoryID, commitID string) (models.Commit, error) {
	s.calls = append(s.calls, repositoryID+"@"+commitID)
	return s.commit, s.err
}

func actionEvent(executionID, provider, stage, state string, result *event.ExecutionResult) event.Event {
	return event.Event{
		DetailType: event.DetailTypeAction,
		Detail: event.Detail{
			Pipeline:        "checkout-svc",
			ExecutionID:     executionID,
			Stage:           stage,
			Action:          stage + "-action",
			State:           state,
			Type:            event.ActionType{Provider: provider},
			ExecutionResult: result,
		},
	}
}

func newTracker(t *testing.T, resolver tracker.CommitResolver) (*tracker.Tracker, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return tracker.New(st, resolver, logging.NewNop()), st
}

func TestLoadMissingRecordStartsFresh(t *testing.T) {
	tr, _ := newTracker(t, &stubResolver{})

	found, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "E1", tr.Record().ExecutionID)
	assert.False(t, tr.IsFailed())
	assert.Nil(t, tr.FirstFailure())
}

func TestCheckoutSuccessResolvesCommit(t *testing.T) {
	resolver := &stubResolver{commit: models.Commit{
		ID:      "abc123",
		Author:  "dev",
		Summary: "fix flaky test",
		Link:    "https://github.com/org/repo/commit/abc123",
	}}
	tr, st := newTracker(t, resolver)

	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	ev := actionEvent("E1", event.ProviderCodeStarSource, "Source", event.StateSucceeded, &event.ExecutionResult{
		ExternalExecutionURL: "https://console.example.com/connections?FullRepositoryId=org%2Frepo&Commit=abc123",
	})
	entry, err := tr.FoldEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, []string{"org/repo@abc123"}, resolver.calls)
	assert.Equal(t, resolver.commit, tr.Record().Commit)

	// Persisted immediately.
	stored, err := st.Get(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, resolver.commit, stored.Commit)
}

func TestCheckoutSuccessIdempotent(t *testing.T) {
	resolver := &stubResolver{commit: models.Commit{ID: "abc123", Summary: "same"}}
	tr, _ := newTracker(t, resolver)
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	ev := actionEvent("E1", event.ProviderCodeStarSource, "Source", event.StateSucceeded, &event.ExecutionResult{
		ExternalExecutionURL: "https://example.com?FullRepositoryId=org%2Frepo&Commit=abc123",
	})
	_, err = tr.FoldEvent(context.Background(), ev)
	require.NoError(t, err)
	first := tr.Record().Commit
	_, err = tr.FoldEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, first, tr.Record().Commit)
}

func TestCheckoutSucceededWithoutResultFails(t *testing.T) {
	tr, _ := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	ev := actionEvent("E1", event.ProviderCodeStarSource, "Source", event.StateSucceeded, nil)
	_, err = tr.FoldEvent(context.Background(), ev)
	assert.Error(t, err)
}

func TestCheckoutMissingQueryParamsFails(t *testing.T) {
	tr, _ := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	ev := actionEvent("E1", event.ProviderCodeStarSource, "Source", event.StateSucceeded, &event.ExecutionResult{
		ExternalExecutionURL: "https://example.com?FullRepositoryId=org%2Frepo",
	})
	_, err = tr.FoldEvent(context.Background(), ev)
	assert.Error(t, err)
}

func TestCheckoutIgnoresNonSourceStage(t *testing.T) {
	resolver := &stubResolver{}
	tr, _ := newTracker(t, resolver)
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	ev := actionEvent("E1", event.ProviderCodeStarSource, "Verify", event.StateSucceeded, nil)
	entry, err := tr.FoldEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Empty(t, resolver.calls)
}

func TestCheckoutFailureHasEmptyID(t *testing.T) {
	tr, _ := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	ev := actionEvent("E1", event.ProviderCodeStarSource, "Source", event.StateFailed, nil)
	entry, err := tr.FoldEvent(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.FailureCheckout, entry.Kind)
	assert.Empty(t, entry.ID)
	assert.True(t, tr.IsFailed())
}

func TestBuildFailureRecordsExternalExecution(t *testing.T) {
	tr, _ := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	ev := actionEvent("E1", event.ProviderCodeBuild, "Build", event.StateFailed, &event.ExecutionResult{
		ExternalExecutionID:  "B1",
		ExternalExecutionURL: "https://console.example.com/build/B1",
	})
	entry, err := tr.FoldEvent(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.FailureBuild, entry.Kind)
	assert.Equal(t, "B1", entry.ID)
	assert.Equal(t, "https://console.example.com/build/B1", entry.Link)
}

func TestBuildNonFailureIsNoop(t *testing.T) {
	tr, _ := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	for _, state := range []string{event.StateStarted, event.StateSucceeded} {
		entry, err := tr.FoldEvent(context.Background(), actionEvent("E1", event.ProviderCodeBuild, "Build", state, nil))
		require.NoError(t, err)
		assert.Nil(t, entry)
	}
	assert.False(t, tr.IsFailed())
}

func TestUnrecognizedProviderFallsBackToDeploy(t *testing.T) {
	tr, _ := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	// No provider stamped at all: still handled as a deployment action.
	ev := actionEvent("E1", "", "Deploy", event.StateFailed, &event.ExecutionResult{
		ExternalExecutionID:      "d-123",
		ExternalExecutionSummary: "stopped: script failed",
		ExternalExecutionURL:     "https://console.example.com/deploy/d-123",
	})
	entry, err := tr.FoldEvent(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.FailureDeploy, entry.Kind)
	assert.Equal(t, "d-123", entry.ID)
	assert.Equal(t, "stopped: script failed", entry.Summary)
}

func TestParallelDeployFailuresAllRetained(t *testing.T) {
	tr, st := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	for i, group := range []string{"RED", "GREEN", "BLUE"} {
		ev := actionEvent("E1", "CodeDeploy", "Deploy", event.StateFailed, &event.ExecutionResult{
			ExternalExecutionID: fmt.Sprintf("d-%d", i),
		})
		ev.Detail.Action = "Deploy-" + group
		_, err := tr.FoldEvent(context.Background(), ev)
		require.NoError(t, err)
	}

	require.True(t, tr.IsFailed())
	assert.Equal(t, "d-0", tr.FirstFailure().ID)
	assert.Equal(t, "Deploy-RED", tr.FirstFailure().Name)

	stored, err := st.Get(context.Background(), "E1")
	require.NoError(t, err)
	assert.Len(t, stored.Failures, 3)
}

func TestDoubleFoldAppendsTwice(t *testing.T) {
	tr, _ := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	ev := actionEvent("E1", event.ProviderCodeBuild, "Build", event.StateFailed, &event.ExecutionResult{ExternalExecutionID: "B1"})
	_, err = tr.FoldEvent(context.Background(), ev)
	require.NoError(t, err)
	_, err = tr.FoldEvent(context.Background(), ev)
	require.NoError(t, err)

	assert.Len(t, tr.Record().Failures, 2)
}

func TestFirstFailureSurvivesReload(t *testing.T) {
	tr, st := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	first := actionEvent("E1", event.ProviderCodeBuild, "Build", event.StateFailed, &event.ExecutionResult{ExternalExecutionID: "B1"})
	_, err = tr.FoldEvent(context.Background(), first)
	require.NoError(t, err)

	// A later invocation observes another failure for the same execution.
	tr2 := tracker.New(st, &stubResolver{}, logging.NewNop())
	found, err := tr2.Load(context.Background(), "E1")
	require.NoError(t, err)
	assert.True(t, found)
	_, err = tr2.FoldEvent(context.Background(), actionEvent("E1", "CodeDeploy", "Deploy", event.StateFailed, &event.ExecutionResult{ExternalExecutionID: "d-9"}))
	require.NoError(t, err)

	assert.Equal(t, "B1", tr2.FirstFailure().ID)
	assert.Equal(t, models.FailureBuild, tr2.FirstFailure().Kind)
}

func TestApprovalCapturesAttributes(t *testing.T) {
	tr, _ := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)

	ev := actionEvent("E1", event.ProviderManual, "Approve", event.StateStarted, nil)
	ev.Detail.Approval = &event.Approval{
		ExternalEntityLink: "https://review.example.com/42",
		CustomData:         "ship it carefully",
	}
	entry, err := tr.FoldEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.False(t, tr.IsFailed())
	assert.Equal(t, "https://review.example.com/42", tr.Record().Approval.Link)
	assert.Equal(t, "ship it carefully", tr.Record().Approval.Comment)
}

func TestMarkNotifiedPropagatesRaceLoss(t *testing.T) {
	tr, st := newTracker(t, &stubResolver{})
	_, err := tr.Load(context.Background(), "E1")
	require.NoError(t, err)
	require.NoError(t, tr.Save(context.Background()))

	require.NoError(t, tr.MarkNotified(context.Background()))
	assert.True(t, tr.Record().IsNotified)

	tr2 := tracker.New(st, &stubResolver{}, logging.NewNop())
	_, err = tr2.Load(context.Background(), "E1")
	require.NoError(t, err)
	err = tr2.MarkNotified(context.Background())
	assert.ErrorIs(t, err, store.ErrAlreadyNotified)
}
