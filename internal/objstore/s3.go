package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3Config carries the settings for an S3-compatible bucket. Endpoint is for
// non-AWS providers (Cloudflare R2, MinIO); leave it empty for plain S3.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Store is the production Store backed by an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3Store from explicit credentials and bucket settings.
func NewS3Store(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if cfg.Endpoint != "" {
			options.BaseEndpoint = aws.String(cfg.Endpoint)
			options.UsePathStyle = true
		}
	})

	if logger != nil {
		logger.Info("s3 object store initialized",
			zap.String("bucket", cfg.Bucket),
			zap.String("endpoint", cfg.Endpoint))
	}

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) (Object, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isMissingObject(err) {
			return Object{}, ErrNotFound
		}
		return Object{}, err
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return Object{}, err
	}
	return Object{Data: data, ContentType: aws.ToString(output.ContentType)}, nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, key string, obj Object) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(obj.Data),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	_, err := s.client.PutObject(ctx, input)
	return err
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && isMissingObject(err) {
		return nil
	}
	return err
}

// List implements Store using ListObjectsV2 continuation tokens as cursors.
func (s *S3Store) List(ctx context.Context, prefix, cursor string, limit int) (ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}
	if limit > 0 {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	output, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return ListPage{}, err
	}

	page := ListPage{
		Keys:      make([]string, 0, len(output.Contents)),
		Truncated: aws.ToBool(output.IsTruncated),
	}
	for _, item := range output.Contents {
		page.Keys = append(page.Keys, aws.ToString(item.Key))
	}
	if page.Truncated {
		page.NextCursor = aws.ToString(output.NextContinuationToken)
	}
	return page, nil
}

func isMissingObject(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
