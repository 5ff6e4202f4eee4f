package artifact

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	crawlerrors "github.com/crawlerd/crawlerd/pkg/errors"
	"github.com/crawlerd/crawlerd/pkg/logging"
)

// S3Store persists artifacts to an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	logger *logging.Logger
}

// NewS3Store creates an S3-backed store.
func NewS3Store(ctx context.Context, bucket, region string, logger *logging.Logger) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket, logger: logger}, nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, taskID, name string, data []byte, contentType string) (Ref, error) {
	key := keyFor(taskID, name, contentType)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"task_id": taskID,
			"name":    name,
		},
	})
	if err != nil {
		s.logger.Error(logging.CategoryStorage, "put_failed", "failed to store artifact", map[string]any{
			"bucket": s.bucket,
			"key":    key,
		})
		return Ref{}, crawlerrors.Wrap(err, crawlerrors.CodeStorage, "s3 put failed").
			WithContext("bucket", s.bucket).
			WithContext("key", key)
	}

	ref := Ref{Name: name, Key: key, URL: fmt.Sprintf("s3://%s/%s", s.bucket, key)}
	s.logger.Info(logging.CategoryStorage, "artifact_stored", "", map[string]any{
		"url":  ref.URL,
		"size": len(data),
	})
	return ref, nil
}
