package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

// S3Store uploads attachments to an S3 bucket. Credentials and region come
// from the standard AWS environment/config chain.
type S3Store struct {
	uploader *s3manager.Uploader
	client   *s3.S3
	bucket   string
	prefix   string
}

func NewS3Store(bucket, prefix string) (*S3Store, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create aws session")
	}
	return &S3Store{
		uploader: s3manager.NewUploader(sess),
		client:   s3.New(sess),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}, nil
}

func (s *S3Store) key(folder, name string) string {
	return path.Join(s.prefix, folder, name)
}

func (s *S3Store) Upload(ctx context.Context, data []byte, folder, fileName string) (string, error) {
	name := uuid.New().String() + sanitizeExt(fileName)
	key := s.key(folder, name)

	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", pkgerrors.Wrapf(err, "upload attachment %s", key)
	}
	return out.Location, nil
}

func (s *S3Store) Delete(ctx context.Context, url string) error {
	// Object keys are recoverable from the URL path for virtual-hosted and
	// path-style URLs alike: the key is everything after the bucket.
	idx := strings.Index(url, s.bucket)
	if idx < 0 {
		return pkgerrors.Errorf("url %q does not reference bucket %s", url, s.bucket)
	}
	key := strings.TrimPrefix(url[idx+len(s.bucket):], "/")
	if key == "" {
		return fmt.Errorf("no object key in url %q", url)
	}

	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
