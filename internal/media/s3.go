package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/zailonsoft/carbot/internal/models"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps uploads in an S3 bucket under prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
}

var _ Store = (*S3Store)(nil)

// NewS3Store creates an S3Store. prefix may be empty.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Save implements Store. The returned location is the object key.
func (s *S3Store) Save(ctx context.Context, conversationID, tag, mimeType string, data []byte) (models.MediaRef, error) {
	if len(data) == 0 {
		return models.MediaRef{}, ErrEmpty
	}
	mimeType = DetectMimetype(mimeType, data)
	key := s.key(FileName(conversationID, tag, mimeType, s.now()))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		slog.Error("Media S3 put failed", "error", err, "bucket", s.bucket, "key", key)
		return models.MediaRef{}, fmt.Errorf("media: s3 put %s: %w", key, err)
	}
	slog.Debug("Media saved to S3", "bucket", s.bucket, "key", key, "bytes", len(data))
	return models.MediaRef{Location: key, Mimetype: mimeType, Tag: tag}, nil
}

// Load implements Store.
func (s *S3Store) Load(ctx context.Context, ref models.MediaRef) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref.Location),
	})
	if err != nil {
		return nil, fmt.Errorf("media: s3 get %s: %w", ref.Location, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("media: read %s: %w", ref.Location, err)
	}
	return data, nil
}
