package diag

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codedeploy"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Factory builds enricher clients against either the ambient credentials or a
// cross-account role, depending on which credential scope the orchestrator
// resolved for the pipeline.
type Factory struct {
	base aws.Config
}

func NewFactory(base aws.Config) *Factory {
	return &Factory{base: base}
}

// ForRole returns build/deploy resolvers using the given role ARN, or the
// ambient credentials when roleARN is empty.
func (f *Factory) ForRole(roleARN string) (*BuildLogResolver, *DeployDiagnosticsResolver) {
	cfg := f.base.Copy()
	if roleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(f.base), roleARN)
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}
	return NewBuildLogResolver(codebuild.NewFromConfig(cfg)),
		NewDeployDiagnosticsResolver(codedeploy.NewFromConfig(cfg))
}
