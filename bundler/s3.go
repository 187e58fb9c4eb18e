package bundler

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/skiffworks/skiff/telemetry"
	"github.com/skiffworks/skiff/types"
)

func init() {
	Register("s3", func(ctx context.Context, cfg Config) (Bundler, error) {
		return NewS3Bundler(ctx, cfg)
	})
}

// S3API is the slice of the S3 API the bundler drives.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Bundler archives the workspace as tar.gz and uploads it under
// s3://<bucket>/<prefix>/<name>.tar.gz.
type S3Bundler struct {
	s3       S3API
	bucket   string
	prefix   string
	excludes []string
	logger   *telemetry.Logger
}

// NewS3Bundler connects to the configured AWS account.
func NewS3Bundler(ctx context.Context, cfg Config) (*S3Bundler, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("bundle.s3_bucket is required for the s3 bundler")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Bundler{
		s3:       s3.NewFromConfig(awsCfg),
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
		excludes: effectiveExcludes(cfg.Excludes),
		logger:   telemetry.NewLogger("bundler"),
	}, nil
}

// Type returns the registry key
func (b *S3Bundler) Type() string {
	return "s3"
}

// Bundle uploads the archived workspace and returns its s3:// URI.
func (b *S3Bundler) Bundle(ctx context.Context, name, root string) (string, error) {
	if err := types.ValidateName(name); err != nil {
		return "", err
	}

	archive, size, err := packWorkspace(root, b.excludes, true)
	if err != nil {
		return "", fmt.Errorf("failed to pack workspace: %w", err)
	}
	defer func() {
		_ = archive.Close()
		_ = os.Remove(archive.Name())
	}()

	key := path.Join(b.prefix, name+".tar.gz")
	b.logger.WithContext(ctx).Info().
		Str("bucket", b.bucket).
		Str("key", key).
		Int64("bytes", size).
		Msg("uploading bundle")

	_, err = b.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          archive,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", b.bucket, key, err)
	}

	return fmt.Sprintf("s3://%s/%s", b.bucket, key), nil
}
