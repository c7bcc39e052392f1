package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/wallet-custody-backend/interfaces"
)

// S3CloudStorage keeps cloud shares as private objects in an S3 or compatible bucket.
type S3CloudStorage struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3CloudStorage creates an S3 backed cloud storage.
// Without accessKey and secretKey the default AWS credential chain is used.
func NewS3CloudStorage(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3CloudStorage, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3CloudStorage{
		client:      s3.New(sess),
		bucketName:  bucketName,
		prefix:      strings.Trim(prefix, "/"),
		log:         log,
		locationURI: uri,
	}, nil
}

// GetItem fetches the object for key. Returns ErrContentNotFound if it doesn't exist.
func (b *S3CloudStorage) GetItem(ctx context.Context, key string) (string, error) {
	start := time.Now()
	objectKey := b.objectKey(key)

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return "", interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to get object from S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", objectKey),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read object body: %w", err)
	}

	b.log.Debug("Fetched item from S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", objectKey),
		slog.Duration("duration", time.Since(start)))

	return string(data), nil
}

// SetItem uploads value as a private object.
func (b *S3CloudStorage) SetItem(ctx context.Context, key, value string) (bool, error) {
	objectKey := b.objectKey(key)

	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(objectKey),
		Body:        strings.NewReader(value),
		ACL:         aws.String(s3.ObjectCannedACLPrivate),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return false, fmt.Errorf("failed to upload object to S3: %w", err)
	}

	b.log.Debug("Stored item in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", objectKey))
	return true, nil
}

// Available checks if the bucket is accessible.
func (b *S3CloudStorage) Available(ctx context.Context) bool {
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable", slog.String("bucket", b.bucketName), "err", err)
		return false
	}
	return true
}

func (b *S3CloudStorage) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

func (b *S3CloudStorage) LocationURI() string {
	return b.locationURI
}

func (b *S3CloudStorage) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}
