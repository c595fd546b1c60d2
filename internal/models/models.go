// Package models holds the persistent and in-flight data types shared by the
// tracker, orchestrator and router: the per-execution record accumulated from
// pipeline events, and the notification variants emitted once an execution
// reaches a terminal disposition.
package models

// Commit identifies the source revision an execution is building. Populated
// once a Source-stage checkout succeeds; zero value until then.
type Commit struct {
	ID      string `json:"id" dynamodbav:"id"`
	Author  string `json:"author" dynamodbav:"author"`
	Summary string `json:"summary" dynamodbav:"summary"`
	Link    string `json:"link" dynamodbav:"link"`
}

// ApprovalAttributes carries the review link and comment captured from a
// manual-approval action. It never affects the failure state.
type ApprovalAttributes struct {
	Link    string `json:"link" dynamodbav:"link"`
	Comment string `json:"comment" dynamodbav:"comment"`
}

// FailureKind discriminates FailureEntry variants.
type FailureKind string

const (
	FailureCheckout FailureKind = "checkout"
	FailureBuild    FailureKind = "build"
	FailureDeploy   FailureKind = "deploy"
)

// FailureEntry records one observed FAILED action event. Created once by the
// tracker and never mutated afterwards. ID is the provider-specific
// identifier: empty for checkout, the build id, or the deployment id.
type FailureEntry struct {
	Kind    FailureKind `json:"kind" dynamodbav:"kind"`
	ID      string      `json:"id" dynamodbav:"id"`
	Name    string      `json:"name" dynamodbav:"name"`
	Link    string      `json:"link,omitempty" dynamodbav:"link"`
	Message string      `json:"message,omitempty" dynamodbav:"message"`
	Summary string      `json:"summary,omitempty" dynamodbav:"summary"`
}

// ExecutionRecord is the durable state for one pipeline execution, keyed by
// ExecutionID. Failures is append-only in observation order; the first entry
// is the authoritative failure regardless of true chronology, since event
// delivery is unordered.
type ExecutionRecord struct {
	ExecutionID  string             `json:"executionId" dynamodbav:"executionId"`
	PipelineName string             `json:"pipelineName" dynamodbav:"pipelineName"`
	Commit       Commit             `json:"commit" dynamodbav:"commit"`
	Approval     ApprovalAttributes `json:"approval" dynamodbav:"approval"`
	Failures     []FailureEntry     `json:"failures" dynamodbav:"failures"`
	IsNotified   bool               `json:"isNotified" dynamodbav:"isNotified"`
}

// Notification is the tagged variant handed off for delivery. Concrete kinds
// are SimpleNotification, AlarmNotification, PipelineNotification and
// ManualApprovalNotification. Not persisted beyond delivery.
type Notification interface {
	// NotificationKind returns the variant tag used for routing.
	NotificationKind() string
}

// SimpleNotification is a bare text message.
type SimpleNotification struct {
	Text string
}

func (SimpleNotification) NotificationKind() string { return "Simple" }

// AlarmNotification describes a monitoring alarm state change.
type AlarmNotification struct {
	Name        string
	Description string
	State       string
}

func (AlarmNotification) NotificationKind() string { return "Alarm" }

// ManualApprovalNotification pings reviewers that a pipeline is waiting on a
// manual approval action.
type ManualApprovalNotification struct {
	Pipeline string
	Link     string
	Comment  string
}

func (ManualApprovalNotification) NotificationKind() string { return "ManualApproval" }

// PipelineNotification reports the terminal disposition of one pipeline
// execution. Failure is nil when Successfull is true, and may still be nil on
// failure when no diagnostic detail applies (checkout failures).
type PipelineNotification struct {
	Name        string
	Commit      Commit
	Successfull bool
	Failure     FailureDetail
}

func (PipelineNotification) NotificationKind() string { return "Pipeline" }

// FailureDetail is the enrichment attached to a failed PipelineNotification.
// Concrete variants are CodeBuildDetail and CodeDeployDetail.
type FailureDetail interface {
	failureDetail()
}

// CodeBuildDetail points at the log of the failed build. LogURL may be empty
// when the build service had nothing to offer.
type CodeBuildDetail struct {
	LogURL string
}

func (CodeBuildDetail) failureDetail() {}

// CodeDeployDetail carries per-target diagnostics for a failed deployment.
type CodeDeployDetail struct {
	DeploymentID string
	Summary      string
	Targets      []TargetDiagnostics
}

func (CodeDeployDetail) failureDetail() {}

// TargetDiagnostics pairs a deployment target with the diagnostics of its
// first failed lifecycle step, or nil when the target had no failed step.
type TargetDiagnostics struct {
	InstanceID  string
	Diagnostics *LifecycleDiagnostics
}

// LifecycleDiagnostics is the detail of a failed lifecycle step on one target.
type LifecycleDiagnostics struct {
	ErrorCode  string
	LogTail    string
	Message    string
	ScriptName string
}
