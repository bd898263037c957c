package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var _ BlobStore = (*S3)(nil)

// S3ClientOptions configures the S3 client used by S3.
type S3ClientOptions struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an S3 client. A custom endpoint (MinIO, Localstack)
// switches the client to path-style addressing.
func NewS3Client(ctx context.Context, opts S3ClientOptions) (*s3.Client, error) {
	if strings.TrimSpace(opts.Region) == "" {
		return nil, fmt.Errorf("s3 region is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Config configures an S3-backed store.
type S3Config struct {
	Client *s3.Client
	Bucket string
	// Prefix is prepended to every object key, e.g. "uploads/".
	Prefix string
	// Mount is the server path blobs are proxied under when PublicBase is empty.
	Mount string
	// PublicBase is a browser-resolvable base URL for the bucket prefix.
	PublicBase string
}

// S3 stores blobs as objects under one flat key prefix.
type S3 struct {
	client     *s3.Client
	bucket     string
	prefix     string
	mount      string
	publicBase string
}

// NewS3 verifies bucket access and returns the store.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("access bucket %q: %w", cfg.Bucket, err)
	}
	return newS3(cfg), nil
}

func newS3(cfg S3Config) *S3 {
	prefix := strings.TrimLeft(strings.TrimSpace(cfg.Prefix), "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{
		client:     cfg.Client,
		bucket:     cfg.Bucket,
		prefix:     prefix,
		mount:      cfg.Mount,
		publicBase: strings.TrimRight(strings.TrimSpace(cfg.PublicBase), "/"),
	}
}

// Put stages r to a local temp file so the upload has a known length, then
// writes it with If-None-Match so an existing key is never overwritten.
func (s *S3) Put(ctx context.Context, id string, r io.Reader) (PutResult, error) {
	var zero PutResult
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ValidateID(id); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp("", "cosensync-put-*")
	if err != nil {
		return zero, &WriteError{ID: id, Err: err}
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	sum := newChecksum()
	src := &trackingReader{r: r}
	n, err := io.Copy(io.MultiWriter(tmp, sum), src)
	if err != nil {
		if src.err != nil {
			return zero, src.err
		}
		return zero, &WriteError{ID: id, Err: err}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return zero, &WriteError{ID: id, Err: err}
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(id)),
		Body:          tmp,
		ContentLength: aws.Int64(n),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		if apiErrorCode(err) == "PreconditionFailed" {
			return zero, fmt.Errorf("%w: %s", ErrExists, id)
		}
		return zero, &WriteError{ID: id, Err: err}
	}
	return PutResult{ID: id, SizeBytes: n, Checksum: sum.Hex()}, nil
}

// Open streams the object body.
func (s *S3) Open(ctx context.Context, id string) (*Object, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("get object %q: %w", id, err)
	}
	return &Object{
		Reader:    out.Body,
		SizeBytes: aws.ToInt64(out.ContentLength),
		ModTime:   aws.ToTime(out.LastModified),
	}, nil
}

// Exists reports whether id is stored.
func (s *S3) Exists(ctx context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object %q: %w", id, err)
	}
	return true, nil
}

// List pages through every key directly under the prefix.
func (s *S3) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if id, ok := s.idFromKey(aws.ToString(obj.Key)); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// Delete removes one object. S3 deletes are idempotent, so absence is
// checked first to report ErrNotFound.
func (s *S3) Delete(ctx context.Context, id string) error {
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return &DeleteError{ID: id, Err: err}
	}
	if !exists {
		return notFound(id)
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		return &DeleteError{ID: id, Err: err}
	}
	return nil
}

// URLFor returns the public object URL when a public base is configured,
// otherwise the server mount path.
func (s *S3) URLFor(id string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + url.PathEscape(id)
	}
	return MountPath(s.mount, id)
}

func (s *S3) objectKey(id string) string {
	return s.prefix + id
}

func (s *S3) idFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, s.prefix) {
		return "", false
	}
	id := strings.TrimPrefix(key, s.prefix)
	if ValidateID(id) != nil {
		return "", false
	}
	return id, true
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	switch apiErrorCode(err) {
	case "NotFound", "NoSuchKey":
		return true
	}
	return false
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
