package awsclient

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/samber/lo"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func newS3Client(cfg aws.Config) S3API {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		// custom endpoints (localstack, minio) rarely support virtual-hosted buckets
		o.UsePathStyle = cfg.BaseEndpoint != nil
	})
}

// S3 writes report artifacts. It implements report.ObjectStore.
type S3 struct {
	api S3API
}

// NewS3 wraps api.
func NewS3(api S3API) *S3 {
	return &S3{api: api}
}

// PutObject writes body to bucket/key.
func (s *S3) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        lo.ToPtr(bucket),
		Key:           lo.ToPtr(key),
		Body:          bytes.NewReader(body),
		ContentType:   lo.ToPtr(contentType),
		ContentLength: lo.ToPtr(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", bucket, key, err)
	}
	return nil
}
