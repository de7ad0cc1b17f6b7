// Package excerpt fetches the gated PDF payload served to verified
// recipients.
package excerpt

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Fetcher returns the PDF bytes for a language variant.
type Fetcher interface {
	Fetch(ctx context.Context, lang string) ([]byte, error)
}

// S3Fetcher reads the excerpt from an S3 bucket, one object key per
// language.
type S3Fetcher struct {
	client *s3.Client
	bucket string
	keys   map[string]string // lang → object key
}

// NewS3Fetcher builds the S3 client. keys maps language tags to object
// keys; an unknown lang falls back to "fr", the site's primary locale.
func NewS3Fetcher(ctx context.Context, region, profile, bucket string, keys map[string]string) (*S3Fetcher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("excerpt bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Fetcher{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		keys:   keys,
	}, nil
}

// Fetch downloads the PDF for lang.
func (f *S3Fetcher) Fetch(ctx context.Context, lang string) ([]byte, error) {
	key, ok := f.keys[lang]
	if !ok {
		key, ok = f.keys["fr"]
		if !ok {
			return nil, fmt.Errorf("no excerpt configured for lang %q", lang)
		}
	}

	result, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting excerpt %s from S3: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("reading excerpt body: %w", err)
	}
	return data, nil
}
