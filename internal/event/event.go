// Package event models the inbound pipeline lifecycle notifications and
// classifies them by their declared discriminators. The shapes follow the
// CodePipeline EventBridge schema: a detail-type string naming the
// execution/stage/action granularity, and a detail object carrying the
// pipeline name, execution id, state and (for action events) the acting
// provider plus its execution result.
package event

// Category is the classification of an inbound event by its detail-type.
type Category string

const (
	CategoryUnknown   Category = ""
	CategoryExecution Category = "execution"
	CategoryStage     Category = "stage"
	CategoryAction    Category = "action"
)

// Exact detail-type discriminators. Anything else classifies as unknown and
// is dropped.
const (
	DetailTypeExecution = "CodePipeline Pipeline Execution State Change"
	DetailTypeStage     = "CodePipeline Stage Execution State Change"
	DetailTypeAction    = "CodePipeline Action Execution State Change"
)

// Lifecycle states carried in detail.state.
const (
	StateStarted   = "STARTED"
	StateSucceeded = "SUCCEEDED"
	StateFailed    = "FAILED"
)

// Action providers carried in detail.type.provider. Everything not listed
// here is handled as a deployment action (see tracker.FoldEvent).
const (
	ProviderCodeStarSource = "CodeStarSourceConnection"
	ProviderCodeBuild      = "CodeBuild"
	ProviderManual         = "Manual"
)

// Event is the inbound envelope.
type Event struct {
	DetailType string `json:"detail-type"`
	Source     string `json:"source"`
	Region     string `json:"region"`
	Detail     Detail `json:"detail"`
}

// Detail is the event payload. ExecutionResult and Approval are only present
// on some action events.
type Detail struct {
	Pipeline    string     `json:"pipeline"`
	ExecutionID string     `json:"execution-id"`
	Stage       string     `json:"stage"`
	Action      string     `json:"action"`
	State       string     `json:"state"`
	Type        ActionType `json:"type"`

	ExecutionResult *ExecutionResult `json:"execution-result,omitempty"`
	Approval        *Approval        `json:"approval,omitempty"`
}

// ActionType declares which provider performed the action.
type ActionType struct {
	Owner    string `json:"owner"`
	Provider string `json:"provider"`
	Category string `json:"category"`
}

// ExecutionResult carries the provider-side identifiers of an action run. For
// source actions the URL's query string encodes FullRepositoryId and Commit.
type ExecutionResult struct {
	ExternalExecutionID      string `json:"external-execution-id"`
	ExternalExecutionURL     string `json:"external-execution-url"`
	ExternalExecutionSummary string `json:"external-execution-summary"`
}

// Approval is attached to manual-approval action events.
type Approval struct {
	ExternalEntityLink string `json:"externalEntityLink"`
	CustomData         string `json:"customData"`
}

// Classify maps a detail-type discriminator to its category by exact string
// match. Unknown inputs yield CategoryUnknown.
func Classify(detailType string) Category {
	switch detailType {
	case DetailTypeExecution:
		return CategoryExecution
	case DetailTypeStage:
		return CategoryStage
	case DetailTypeAction:
		return CategoryAction
	default:
		return CategoryUnknown
	}
}
