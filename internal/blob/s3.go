package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"nexus/internal/config"
	"nexus/internal/services"
)

// S3 implements blob storage for S3-compatible providers.
type S3 struct {
	api      s3iface.S3API
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3 opens a session against the configured endpoint and ensures the bucket exists.
func NewS3(ctx context.Context, c config.Storage) (*S3, error) {
	cfg := aws.NewConfig().
		WithRegion(c.Region).
		WithS3ForcePathStyle(c.UsePathStyle || c.Endpoint != "")
	if c.Endpoint != "" {
		cfg = cfg.WithEndpoint(c.Endpoint)
	}
	if c.AccessKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(c.AccessKey, c.SecretKey, ""))
	}
	sess, err := session.NewSessionWithOptions(session.Options{Config: *cfg})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "blob", "s3 session", "failed to initialize S3 session", err)
	}
	store := newS3WithAPI(s3.New(sess), c.Bucket)
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func newS3WithAPI(api s3iface.S3API, bucket string) *S3 {
	return &S3{
		api:      api,
		uploader: s3manager.NewUploaderWithClient(api),
		bucket:   bucket,
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *S3) EnsureBucket(ctx context.Context) error {
	_, err := s.api.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isMissing(err) {
		return services.Wrap(services.ErrExternalTool, "blob", "head bucket", s.bucket, err)
	}
	if _, err := s.api.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou {
			return nil
		}
		return services.Wrap(services.ErrExternalTool, "blob", "create bucket", s.bucket, err)
	}
	return nil
}

func (s *S3) Put(ctx context.Context, mediaID string, r io.Reader) (string, error) {
	key := Key(mediaID)
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String("audio/wav"),
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "blob", "upload", key, err)
	}
	return key, nil
}

func (s *S3) Get(ctx context.Context, ref string) (io.ReadCloser, error) {
	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		if isMissing(err) {
			return nil, notFound(ref, err)
		}
		return nil, services.Wrap(services.ErrTransient, "blob", "download", ref, err)
	}
	return out.Body, nil
}

func (s *S3) Delete(ctx context.Context, ref string) error {
	_, err := s.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil && !isMissing(err) {
		return services.Wrap(services.ErrTransient, "blob", "delete", ref, err)
	}
	return nil
}

func isMissing(err error) bool {
	var awsErr awserr.Error
	if !errors.As(err, &awsErr) {
		return false
	}
	switch awsErr.Code() {
	case "NotFound", s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket:
		return true
	}
	return false
}

var _ Store = (*S3)(nil)
var _ Store = (*Local)(nil)

func (s *S3) String() string {
	return fmt.Sprintf("s3://%s", s.bucket)
}
