package diag

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codedeploy"
	"github.com/aws/aws-sdk-go-v2/service/codedeploy/types"

	"github.com/pipewatch/pipewatch/internal/models"
)

// CodeDeployAPI is the subset of the CodeDeploy client the resolver uses.
type CodeDeployAPI interface {
	ListDeploymentTargets(ctx context.Context, params *codedeploy.ListDeploymentTargetsInput, optFns ...func(*codedeploy.Options)) (*codedeploy.ListDeploymentTargetsOutput, error)
	BatchGetDeploymentTargets(ctx context.Context, params *codedeploy.BatchGetDeploymentTargetsInput, optFns ...func(*codedeploy.Options)) (*codedeploy.BatchGetDeploymentTargetsOutput, error)
}

// DeployDiagnosticsResolver maps a failed deployment id to per-target
// diagnostics.
type DeployDiagnosticsResolver struct {
	client CodeDeployAPI
}

func NewDeployDiagnosticsResolver(client CodeDeployAPI) *DeployDiagnosticsResolver {
	return &DeployDiagnosticsResolver{client: client}
}

// TargetDiagnostics lists the deployment's targets with the diagnostics of
// each target's first failed lifecycle step, nil when the target had none.
func (r *DeployDiagnosticsResolver) TargetDiagnostics(ctx context.Context, deploymentID string) ([]models.TargetDiagnostics, error) {
	listed, err := r.client.ListDeploymentTargets(ctx, &codedeploy.ListDeploymentTargetsInput{
		DeploymentId: aws.String(deploymentID),
	})
	if err != nil {
		return nil, fmt.Errorf("list deployment targets %s: %w", deploymentID, err)
	}
	if len(listed.TargetIds) == 0 {
		return nil, nil
	}
	fetched, err := r.client.BatchGetDeploymentTargets(ctx, &codedeploy.BatchGetDeploymentTargetsInput{
		DeploymentId: aws.String(deploymentID),
		TargetIds:    listed.TargetIds,
	})
	if err != nil {
		return nil, fmt.Errorf("batch get deployment targets %s: %w", deploymentID, err)
	}
	out := make([]models.TargetDiagnostics, 0, len(fetched.DeploymentTargets))
	for _, target := range fetched.DeploymentTargets {
		instance := target.InstanceTarget
		if instance == nil {
			continue
		}
		td := models.TargetDiagnostics{InstanceID: aws.ToString(instance.TargetId)}
		for _, le := range instance.LifecycleEvents {
			if le.Status != types.LifecycleEventStatusFailed || le.Diagnostics == nil {
				continue
			}
			td.Diagnostics = &models.LifecycleDiagnostics{
				ErrorCode:  string(le.Diagnostics.ErrorCode),
				LogTail:    aws.ToString(le.Diagnostics.LogTail),
				Message:    aws.ToString(le.Diagnostics.Message),
				ScriptName: aws.ToString(le.Diagnostics.ScriptName),
			}
			break
		}
		out = append(out, td)
	}
	return out, nil
}
