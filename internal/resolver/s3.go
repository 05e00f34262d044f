package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"retain/internal/archive"
	"retain/internal/config"
)

// s3API is the subset of the S3 client the resolver needs; narrowed for tests.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Resolver serves locators as object keys in a single S3 bucket, optionally
// under a key prefix. Files are never downloaded to disk; content is streamed
// straight out of GetObject bodies.
type S3Resolver struct {
	client s3API
	bucket string
	prefix string
}

var _ archive.Resolver = (*S3Resolver)(nil)

// NewS3Resolver builds a resolver from storage config. Static credentials are
// used when configured, otherwise the ambient AWS credential chain.
func NewS3Resolver(ctx context.Context, cfg config.StorageConfig) (*S3Resolver, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires s3_bucket to be set")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &S3Resolver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
	}, nil
}

// NewS3ResolverWithClient wires an existing client. Used by tests.
func NewS3ResolverWithClient(client s3API, bucket, prefix string) *S3Resolver {
	return &S3Resolver{client: client, bucket: bucket, prefix: prefix}
}

func (r *S3Resolver) key(loc archive.Locator) string {
	if r.prefix == "" {
		return string(loc)
	}
	return path.Join(r.prefix, string(loc))
}

func (r *S3Resolver) Exists(ctx context.Context, loc archive.Locator) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(loc)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head s3://%s/%s: %w", r.bucket, r.key(loc), err)
	}
	return true, nil
}

func (r *S3Resolver) Open(ctx context.Context, loc archive.Locator) (io.ReadCloser, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(loc)),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", r.bucket, r.key(loc), err)
	}
	return out.Body, nil
}

func (r *S3Resolver) Delete(ctx context.Context, loc archive.Locator) error {
	// S3 DeleteObject on a missing key succeeds, which matches the Resolver
	// contract.
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(loc)),
	})
	if err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", r.bucket, r.key(loc), err)
	}
	return nil
}
