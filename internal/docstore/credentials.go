package docstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSAPI defines the STS client methods we use
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Identity is the AWS principal the backend credentials resolve to.
type Identity struct {
	Account string `json:"account" yaml:"account"`
	ARN     string `json:"arn" yaml:"arn"`
	UserID  string `json:"userId" yaml:"userId"`
}

// ValidateCredentials confirms the configured credentials are usable by
// asking STS who they belong to.
func ValidateCredentials(ctx context.Context, client STSAPI) (*Identity, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to validate AWS credentials: %w", err)
	}
	return &Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

// CheckCredentials loads the shared AWS configuration and validates it.
func CheckCredentials(ctx context.Context, region, profile string) (*Identity, error) {
	cfg, err := LoadAWSConfig(ctx, region, profile, 0)
	if err != nil {
		return nil, err
	}
	return ValidateCredentials(ctx, sts.NewFromConfig(cfg))
}
