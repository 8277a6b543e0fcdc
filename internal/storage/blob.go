package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"callscribe/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// BlobStore is the durable object store the pipeline reads and writes.
// Works against any S3-compatible endpoint.
type BlobStore struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// NewBlobStore creates an S3 blob store client for the given endpoint.
func NewBlobStore(endpoint, region, accessKey, secretKey string) (*BlobStore, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, reg string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           endpoint,
				SigningRegion: region,
			}, nil
		})

	cfg, err := config.LoadDefaultConfig(
		context.TODO(),
		config.WithEndpointResolverWithOptions(customResolver),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	logger.Info("Blob store initialized", zap.String("endpoint", endpoint))

	return &BlobStore{
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// EnsureBucket creates the bucket if it does not already exist.
func (s *BlobStore) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to ensure bucket %s: %w", bucket, err)
	}

	logger.Info("Bucket created", zap.String("bucket", bucket))
	return nil
}

// Put uploads an object.
func (s *BlobStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}

	logger.Debug("Object uploaded",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("size", len(body)))

	return nil
}

// Get downloads an object.
func (s *BlobStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return data, nil
}

// SignedReadURL produces a time-limited read-only URL for an object, so the
// transcription service can fetch the audio without further authentication.
func (s *BlobStore) SignedReadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign object: %w", err)
	}

	logger.Debug("Signed read URL generated",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Duration("ttl", ttl))

	return req.URL, nil
}

// SanitizeObjectName derives a store key from a file path or URL: the
// basename, query string stripped, URL escapes decoded.
func SanitizeObjectName(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	name := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if decoded, err := url.QueryUnescape(name); err == nil {
		name = decoded
	}
	return name
}
