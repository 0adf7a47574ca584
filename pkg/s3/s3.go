package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Alijeyrad/tabib_backend/config"
)

const defaultPresignTTL = 5 * time.Minute

// Client stores lab result files and prescription images in an
// S3-compatible bucket (MinIO, ArvanCloud). Objects are private; readers get
// short-lived presigned URLs.
type Client struct {
	api     *s3.Client
	presign *s3.PresignClient
	bucket  *string
	ttl     time.Duration
}

func New(cfg config.S3Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	awsCfg, err := awscfg.LoadDefaultConfig(context.Background(),
		awscfg.WithRegion(cfg.Region),
		awscfg.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("s3: aws config: %w", err)
	}

	// Self-hosted stores only speak path-style addressing.
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	c := &Client{
		api:     api,
		presign: s3.NewPresignClient(api),
		bucket:  aws.String(cfg.Bucket),
		ttl:     time.Duration(cfg.PresignTTLSec) * time.Second,
	}
	if c.ttl <= 0 {
		c.ttl = defaultPresignTTL
	}
	return c, nil
}

func (c *Client) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	in := &s3.PutObjectInput{
		Bucket:      c.bucket,
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := c.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	return nil
}

func (c *Client) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := c.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: c.bucket, Key: aws.String(key)},
		s3.WithPresignExpires(c.ttl))
	if err != nil {
		return "", fmt.Errorf("s3: presign %s: %w", key, err)
	}
	return req.URL, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: c.bucket})
	var missing *types.NotFound
	switch {
	case err == nil:
		return nil
	case !errors.As(err, &missing):
		return fmt.Errorf("s3: head bucket %s: %w", *c.bucket, err)
	}
	if _, err := c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: c.bucket}); err != nil {
		return fmt.Errorf("s3: create bucket %s: %w", *c.bucket, err)
	}
	return nil
}
