package export

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// projectTag is the URL-encoded object tagging applied to every bundle.
const projectTag = "Project=flipbook-booth"

// DefaultLinkExpiry is how long a presigned download link stays valid.
const DefaultLinkExpiry = 24 * time.Hour

// ObjectPutter is the S3 call the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ObjectPresigner signs GET requests for uploaded bundles.
type ObjectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Uploader copies bundles to an S3 bucket under a key prefix.
type Uploader struct {
	client  ObjectPutter
	presign ObjectPresigner
	bucket  string
	prefix  string
}

// NewUploader returns an Uploader using client. presign may be nil, in which
// case DownloadURL fails.
func NewUploader(client ObjectPutter, presign ObjectPresigner, bucket, prefix string) *Uploader {
	return &Uploader{client: client, presign: presign, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3Uploader loads the default AWS configuration and returns an Uploader
// for bucket.
func NewS3Uploader(ctx context.Context, bucket, prefix string) (*Uploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return NewUploader(client, s3.NewPresignClient(client), bucket, prefix), nil
}

// Key returns the object key for a session's bundle.
func (u *Uploader) Key(sessionID string) string {
	if u.prefix == "" {
		return BundleName(sessionID)
	}
	return path.Join(u.prefix, BundleName(sessionID))
}

// Upload puts the bundle at localPath and returns its s3:// URI.
func (u *Uploader) Upload(ctx context.Context, sessionID, localPath string) (string, error) {
	key := u.Key(sessionID)

	log.Debug().
		Str("bucket", u.bucket).
		Str("key", key).
		Str("path", localPath).
		Msg("Uploading bundle to S3")

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open ZIP for upload: %w", err)
	}
	defer f.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/zip"),
		Tagging:     aws.String(projectTag),
	})
	if err != nil {
		return "", fmt.Errorf("upload ZIP to S3: %w", err)
	}

	uri := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	log.Info().Str("uri", uri).Msg("Bundle uploaded to S3")
	return uri, nil
}

// DownloadURL returns a presigned GET link for a session's bundle.
func (u *Uploader) DownloadURL(ctx context.Context, sessionID string, expiry time.Duration) (string, error) {
	if u.presign == nil {
		return "", fmt.Errorf("uploader has no presign client")
	}
	req, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.Key(sessionID)),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign bundle download: %w", err)
	}
	return req.URL, nil
}
