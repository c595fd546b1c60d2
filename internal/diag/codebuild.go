// Package diag queries the build and deploy services for diagnostic detail
// once an execution failure is confirmed. The results only decorate the
// outgoing notification; lookup errors propagate so that no partial
// notification goes out.
package diag

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
)

// CodeBuildAPI is the subset of the CodeBuild client the resolver uses.
type CodeBuildAPI interface {
	BatchGetBuilds(ctx context.Context, params *codebuild.BatchGetBuildsInput, optFns ...func(*codebuild.Options)) (*codebuild.BatchGetBuildsOutput, error)
}

// BuildLogResolver maps a failed build id to its log URL.
type BuildLogResolver struct {
	client CodeBuildAPI
}

func NewBuildLogResolver(client CodeBuildAPI) *BuildLogResolver {
	return &BuildLogResolver{client: client}
}

// LogURL returns the deep link to the build's logs, or "" when the build
// service has nothing for this id.
func (r *BuildLogResolver) LogURL(ctx context.Context, buildID string) (string, error) {
	out, err := r.client.BatchGetBuilds(ctx, &codebuild.BatchGetBuildsInput{
		Ids: []string{buildID},
	})
	if err != nil {
		return "", fmt.Errorf("batch get builds %s: %w", buildID, err)
	}
	if len(out.Builds) == 0 || out.Builds[0].Logs == nil {
		return "", nil
	}
	return aws.ToString(out.Builds[0].Logs.DeepLink), nil
}
