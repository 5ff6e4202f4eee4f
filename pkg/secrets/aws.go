package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
	"github.com/crawlerd/crawlerd/pkg/logging"
)

// AWSProvider retrieves credentials from AWS Secrets Manager. Secrets are
// JSON documents shaped like Credentials.
type AWSProvider struct {
	client     *secretsmanager.Client
	defaultRef string
	logger     *logging.Logger
}

// NewAWSProvider creates a Secrets Manager-backed provider. defaultRef is
// used when a login action does not name a secret.
func NewAWSProvider(ctx context.Context, region, defaultRef string, logger *logging.Logger) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &AWSProvider{
		client:     secretsmanager.NewFromConfig(cfg),
		defaultRef: defaultRef,
		logger:     logger,
	}, nil
}

// Get implements Provider.
func (p *AWSProvider) Get(ctx context.Context, ref string) (Credentials, error) {
	secretID := ref
	if secretID == "" {
		secretID = p.defaultRef
	}
	if secretID == "" {
		return Credentials{}, crawlerrors.New(crawlerrors.CodeSecretRetrieval,
			"login action names no secret and no default secret is configured")
	}

	p.logger.Info(logging.CategorySecrets, "fetching_credentials", "", map[string]any{
		"secret_id": maskRef(secretID),
	})

	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return Credentials{}, ErrNotFound
		}
		return Credentials{}, crawlerrors.Wrap(err, crawlerrors.CodeSecretRetrieval, "secrets manager read failed").
			WithContext("secret_id", maskRef(secretID))
	}
	if out.SecretString == nil {
		return Credentials{}, crawlerrors.New(crawlerrors.CodeSecretRetrieval, "secret has no string value").
			WithContext("secret_id", maskRef(secretID))
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return Credentials{}, crawlerrors.Wrap(err, crawlerrors.CodeSecretRetrieval, "secret payload is not valid credentials JSON").
			WithContext("secret_id", maskRef(secretID))
	}
	return creds, nil
}

// maskRef keeps secret identifiers out of logs except for a recognizable
// stub.
func maskRef(ref string) string {
	if len(ref) <= 20 {
		if len(ref) <= 5 {
			return "***"
		}
		return ref[:5] + "***"
	}
	return ref[:10] + "***" + ref[len(ref)-5:]
}
