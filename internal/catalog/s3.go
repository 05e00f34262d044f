package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"retain/internal/archive"
	"retain/internal/config"
)

// headAPI is the subset of the S3 client the catalog needs; narrowed for tests.
type headAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Catalog describes assets stored as objects in an S3 bucket. An asset ID
// is the object key relative to the configured prefix, or a raw http(s) URL
// for manual entries.
type S3Catalog struct {
	client headAPI
	bucket string
	prefix string
}

var _ archive.AssetCatalog = (*S3Catalog)(nil)

// NewS3Catalog builds a catalog from storage config.
func NewS3Catalog(ctx context.Context, cfg config.StorageConfig) (*S3Catalog, error) {
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

	return &S3Catalog{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
	}, nil
}

// NewS3CatalogWithClient wires an existing client. Used by tests.
func NewS3CatalogWithClient(client headAPI, bucket, prefix string) *S3Catalog {
	return &S3Catalog{client: client, bucket: bucket, prefix: prefix}
}

func (c *S3Catalog) Archivable(ctx context.Context, assetID string) (bool, error) {
	info, err := c.Describe(ctx, assetID)
	if err != nil {
		return false, err
	}
	return info.Category.Archivable(), nil
}

func (c *S3Catalog) Describe(ctx context.Context, assetID string) (*archive.AssetInfo, error) {
	if isURL(assetID) {
		base := urlBase(assetID)
		return &archive.AssetInfo{
			Locator:    archive.Locator(assetID),
			FileBacked: false,
			FileName:   base,
			MIMEType:   mimeByName(base),
			Category:   categoryByName(base),
		}, nil
	}

	key := assetID
	if c.prefix != "" {
		key = path.Join(c.prefix, assetID)
	}

	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("asset %q: %w", assetID, archive.ErrNotFound)
		}
		return nil, fmt.Errorf("head s3://%s/%s: %w", c.bucket, key, err)
	}

	mimeType := aws.ToString(out.ContentType)
	if mimeType == "" {
		mimeType = mimeByName(assetID)
	}

	return &archive.AssetInfo{
		Locator:    archive.Locator(assetID),
		FileBacked: true,
		FileName:   path.Base(assetID),
		MIMEType:   mimeType,
		SizeBytes:  aws.ToInt64(out.ContentLength),
		Category:   categoryByName(assetID),
	}, nil
}
