// Package rawstore reads raw emails from S3 and issues download links for them.
package rawstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultLinkTTL is how long a download link stays valid.
	DefaultLinkTTL = 7 * 24 * time.Hour
	// MaxObjectBytes bounds how much of a raw email is loaded into memory.
	MaxObjectBytes = 25 << 20
	// DefaultTimeout bounds one S3 call, including reading the body.
	DefaultTimeout = 5 * time.Second
)

// Error types for object access.
var (
	ErrNotFound = errors.New("object not found")
	ErrTooLarge = errors.New("object too large")
)

// ObjectGetter abstracts S3 GetObject for dependency inversion.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Presigner abstracts S3 GET presigning.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store reads raw email objects.
type Store struct {
	client    ObjectGetter
	presigner Presigner
	linkTTL   time.Duration
	timeout   time.Duration
}

// NewStore creates a new Store. Non-positive durations use DefaultLinkTTL
// and DefaultTimeout.
func NewStore(client ObjectGetter, presigner Presigner, linkTTL, timeout time.Duration) *Store {
	if linkTTL <= 0 {
		linkTTL = DefaultLinkTTL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{
		client:    client,
		presigner: presigner,
		linkTTL:   linkTTL,
		timeout:   timeout,
	}
}

// Get returns the bytes of an object.
func (s *Store) Get(ctx context.Context, ref ObjectRef) ([]byte, error) {
	tracer := tracing.Tracer("burner-rawstore")
	ctx, span := tracer.Start(ctx, "rawstore.Get", trace.WithAttributes(
		attribute.String("s3.bucket", ref.Bucket),
		attribute.String("s3.key", ref.Key),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		tracing.RecordError(span, err)
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, MaxObjectBytes+1))
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	if len(body) > MaxObjectBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, ref)
	}
	span.SetAttributes(attribute.Int("s3.size", len(body)))
	return body, nil
}

// DownloadURL returns a presigned GET URL for the object.
func (s *Store) DownloadURL(ctx context.Context, ref ObjectRef) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(ref.Bucket),
		Key:                        aws.String(ref.Key),
		ResponseContentType:        aws.String("message/rfc822"),
		ResponseContentDisposition: aws.String(`attachment; filename="email.eml"`),
	}, s3.WithPresignExpires(s.linkTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", ref, err)
	}
	return req.URL, nil
}
