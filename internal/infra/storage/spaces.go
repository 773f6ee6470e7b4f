package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/config"
)

var tracer = otel.Tracer("github.com/proyectoio2/back/internal/infra/storage")

// objectAPI is the subset of the S3 client used here.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Spaces stores public objects in a DigitalOcean Spaces (S3 compatible) bucket.
type Spaces struct {
	api     objectAPI
	bucket  string
	baseURL string
	logger  *zap.Logger
}

// NewSpaces builds an S3 client for the configured endpoint and static keys.
func NewSpaces(ctx context.Context, cfg config.StorageSettings, log *zap.Logger) (*Spaces, error) {
	if !cfg.Configured() {
		return nil, errors.New("storage: bucket and access keys are required")
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.digitaloceanspaces.com", cfg.Region)
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	base := strings.TrimRight(strings.TrimSpace(cfg.CDNEndpoint), "/")
	if base == "" {
		base = endpoint
	}
	return newSpaces(client, cfg.Bucket, base, log), nil
}

func newSpaces(api objectAPI, bucket, baseURL string, log *zap.Logger) *Spaces {
	if log == nil {
		log = zap.NewNop()
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	return &Spaces{api: api, bucket: bucket, baseURL: baseURL, logger: log}
}

// URL returns the public address of key.
func (s *Spaces) URL(key string) string {
	return s.baseURL + "/" + s.bucket + "/" + strings.TrimLeft(key, "/")
}

// Put uploads body under key with a public-read ACL.
func (s *Spaces) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (port.StoredObject, error) {
	ctx, span := tracer.Start(ctx, "Spaces.Put", trace.WithAttributes(
		attribute.String("s3.bucket", s.bucket),
		attribute.String("s3.key", key),
		attribute.Int64("content.size", size),
	))
	defer span.End()

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		ACL:           s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put object failed")
		return port.StoredObject{}, fmt.Errorf("put object %s: %w", key, err)
	}

	s.logger.Debug("object stored", zap.String("key", key), zap.Int64("size", size))
	return port.StoredObject{Key: key, URL: s.URL(key), ContentType: contentType, Size: size}, nil
}

// Delete removes key from the bucket.
func (s *Spaces) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "Spaces.Delete", trace.WithAttributes(attribute.String("s3.key", key)))
	defer span.End()

	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete object failed")
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

var _ port.ObjectStorage = (*Spaces)(nil)
