package route_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipewatch/pipewatch/internal/logging"
	"github.com/pipewatch/pipewatch/internal/models"
	"github.com/pipewatch/pipewatch/internal/route"
)

func evaluate(t *testing.T, rules []route.Rule, attrs map[string]any) (string, bool) {
	t.Helper()
	return route.New(rules, logging.NewNop()).Evaluate(attrs)
}

func TestFirstMatchWins(t *testing.T) {
	rules := []route.Rule{
		{Expression: "type:Pipeline&name~.*prod.*", Channel: "#prod"},
		{Expression: "type:Pipeline", Channel: "#pipe"},
	}

	channel, ok := evaluate(t, rules, map[string]any{"type": "Pipeline", "name": "x"})
	assert.True(t, ok)
	assert.Equal(t, "#pipe", channel)

	channel, ok = evaluate(t, rules, map[string]any{"type": "Pipeline", "name": "prod-x"})
	assert.True(t, ok)
	assert.Equal(t, "#prod", channel)
}

func TestNoMatchReturnsNone(t *testing.T) {
	rules := []route.Rule{{Expression: "type:Alarm", Channel: "#alerts"}}
	_, ok := evaluate(t, rules, map[string]any{"type": "Pipeline"})
	assert.False(t, ok)
}

func TestOrShortCircuits(t *testing.T) {
	rules := []route.Rule{{Expression: "type:Alarm|type:Pipeline", Channel: "#any"}}
	channel, ok := evaluate(t, rules, map[string]any{"type": "Pipeline"})
	assert.True(t, ok)
	assert.Equal(t, "#any", channel)
}

func TestAndRequiresAll(t *testing.T) {
	rules := []route.Rule{{Expression: "type:Pipeline&successfull:false", Channel: "#failures"}}

	_, ok := evaluate(t, rules, map[string]any{"type": "Pipeline", "successfull": true})
	assert.False(t, ok)

	channel, ok := evaluate(t, rules, map[string]any{"type": "Pipeline", "successfull": false})
	assert.True(t, ok)
	assert.Equal(t, "#failures", channel)
}

func TestNotNegates(t *testing.T) {
	rules := []route.Rule{{Expression: "!type:Alarm", Channel: "#not-alarms"}}
	_, ok := evaluate(t, rules, map[string]any{"type": "Alarm"})
	assert.False(t, ok)

	channel, ok := evaluate(t, rules, map[string]any{"type": "Pipeline"})
	assert.True(t, ok)
	assert.Equal(t, "#not-alarms", channel)
}

// The OR split happens before the AND split, so a&b|c reads as (a&b)|c.
func TestOrBindsLooserThanAnd(t *testing.T) {
	rules := []route.Rule{{Expression: "type:Pipeline&name:x|type:Alarm", Channel: "#x"}}

	_, ok := evaluate(t, rules, map[string]any{"type": "Pipeline", "name": "y"})
	assert.False(t, ok)

	_, ok = evaluate(t, rules, map[string]any{"type": "Alarm"})
	assert.True(t, ok)

	_, ok = evaluate(t, rules, map[string]any{"type": "Pipeline", "name": "x"})
	assert.True(t, ok)
}

func TestDotPathTraversal(t *testing.T) {
	attrs := map[string]any{
		"type": "Pipeline",
		"commit": map[string]any{
			"author": "dev",
		},
	}
	rules := []route.Rule{{Expression: "commit.author:dev", Channel: "#dev"}}
	channel, ok := evaluate(t, rules, attrs)
	assert.True(t, ok)
	assert.Equal(t, "#dev", channel)
}

func TestUnresolvedPathIsFalseNotError(t *testing.T) {
	rules := []route.Rule{{Expression: "commit.author:dev", Channel: "#dev"}}
	_, ok := evaluate(t, rules, map[string]any{"type": "Pipeline"})
	assert.False(t, ok)

	// Path through a non-map value.
	_, ok = evaluate(t, rules, map[string]any{"commit": "abc"})
	assert.False(t, ok)
}

func TestInvalidRegexIsFalseNotError(t *testing.T) {
	rules := []route.Rule{
		{Expression: "name~*broken[", Channel: "#broken"},
		{Expression: "name~good", Channel: "#good"},
	}
	channel, ok := evaluate(t, rules, map[string]any{"name": "good-pipeline"})
	assert.True(t, ok)
	assert.Equal(t, "#good", channel)
}

func TestBareWordIsFalse(t *testing.T) {
	rules := []route.Rule{{Expression: "nonsense", Channel: "#x"}}
	_, ok := evaluate(t, rules, map[string]any{"nonsense": "true"})
	assert.False(t, ok)
}

func TestPipelineAttributes(t *testing.T) {
	n := models.PipelineNotification{
		Name:        "checkout-prod-svc",
		Successfull: false,
		Commit:      models.Commit{ID: "abc", Author: "dev"},
		Failure:     models.CodeBuildDetail{LogURL: "https://logs.example.com/B1"},
	}
	attrs := route.Attributes(n)
	assert.Equal(t, "Pipeline", attrs["type"])
	assert.Equal(t, false, attrs["successfull"])

	failure, ok := attrs["failure"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "CodeBuild", failure["type"])

	rules := []route.Rule{{Expression: "failure.type:CodeBuild&commit.author:dev", Channel: "#build-failures"}}
	channel, matched := evaluate(t, rules, attrs)
	assert.True(t, matched)
	assert.Equal(t, "#build-failures", channel)
}

func TestAttributesForEveryKind(t *testing.T) {
	assert.Equal(t, "Simple", route.Attributes(models.SimpleNotification{Text: "hi"})["type"])
	assert.Equal(t, "Alarm", route.Attributes(models.AlarmNotification{Name: "cpu"})["type"])
	assert.Equal(t, "ManualApproval", route.Attributes(models.ManualApprovalNotification{Pipeline: "p"})["type"])
}
