package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UseSSL          bool   // Use SSL for connections (default: true)
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// PartSize is the multipart part size used by the uploader (default: 5 MiB)
	PartSize int64

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist

	Logger *slog.Logger
}

// Backend is an S3-compatible implementation of the chunkstore.Store interface.
// Containers map to key prefixes inside a single bucket: <container>/<objectID>.
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	config   Config
	logger   *slog.Logger
}

var _ chunkstore.Store = (*Backend)(nil)

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	if config.PartSize == 0 {
		config.PartSize = manager.DefaultUploadPartSize
	}
	if config.PartSize < manager.MinUploadPartSize {
		return nil, fmt.Errorf("part size must be at least %d bytes", manager.MinUploadPartSize)
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)
	backend := &Backend{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = config.PartSize
		}),
		bucket: config.Bucket,
		config: config,
		logger: logger,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	// MinIO reports a missing bucket in several ways
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		if strings.Contains(err.Error(), "BucketAlreadyExists") ||
			strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// Put uploads content through the multipart-capable uploader. The MD5 is
// computed while the body streams out. Multipart ETags are not MD5s, so when
// the ETag disagrees with the computed digest the checksum is written into
// the object metadata with an in-place copy.
func (b *Backend) Put(ctx context.Context, container, objectID string, params chunkstore.PutParams, r io.Reader) (string, error) {
	key := objectKey(container, objectID)
	digest := chunkstore.NewDigestReader(r)

	metadata := make(map[string]string, len(params.Properties)+1)
	for k, v := range params.Properties {
		if isReservedProperty(k) {
			continue
		}
		metadata[k] = v
	}
	if params.Checksum != "" {
		metadata[chunkstore.PropertyChecksum] = params.Checksum
	}

	mimetype := params.Mimetype
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        digest,
		ContentType: aws.String(mimetype),
		Metadata:    metadata,
	}
	b.applySSE(input)

	out, err := b.uploader.Upload(ctx, input)
	if err != nil {
		return "", b.storageError(container, objectID, "put", err)
	}

	checksum := digest.Sum()
	if params.Size >= 0 && digest.BytesRead() != params.Size {
		b.discardUpload(ctx, container, objectID)
		return "", fmt.Errorf("expected %d bytes for %s, read %d", params.Size, objectID, digest.BytesRead())
	}
	if params.Checksum != "" && params.Checksum != checksum {
		b.discardUpload(ctx, container, objectID)
		return "", fmt.Errorf("%w: expected %s, computed %s", chunkstore.ErrChecksumMismatch, params.Checksum, checksum)
	}

	if params.Checksum == "" && trimETag(out.ETag) != checksum {
		metadata[chunkstore.PropertyChecksum] = checksum
		copyInput := &s3.CopyObjectInput{
			Bucket:            aws.String(b.bucket),
			Key:               aws.String(key),
			CopySource:        aws.String(copySource(b.bucket, key)),
			ContentType:       aws.String(mimetype),
			Metadata:          metadata,
			MetadataDirective: types.MetadataDirectiveReplace,
		}
		b.applyCopySSE(copyInput)
		if _, err := b.client.CopyObject(ctx, copyInput); err != nil {
			return "", b.storageError(container, objectID, "set-checksum", err)
		}
	}

	return checksum, nil
}

// discardUpload removes an object whose upload was rejected after it landed
func (b *Backend) discardUpload(ctx context.Context, container, objectID string) {
	if err := b.Delete(ctx, container, objectID); err != nil {
		b.logger.Error("Failed to remove rejected upload", "bucket", b.bucket, "container", container, "object_id", objectID, "error", err)
	}
}

// Get downloads content directly from S3
func (b *Backend) Get(ctx context.Context, container, objectID string) (*chunkstore.Object, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(container, objectID)),
	})
	if err != nil {
		return nil, b.storageError(container, objectID, "get", err)
	}

	props := buildProperties(result.ContentType, result.ContentLength, result.ETag, result.LastModified, result.Metadata)
	return &chunkstore.Object{ID: objectID, Body: result.Body, Properties: props}, nil
}

// GetProperties retrieves object metadata with a HEAD request
func (b *Backend) GetProperties(ctx context.Context, container, objectID string) (chunkstore.Properties, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(container, objectID)),
	})
	if err != nil {
		return nil, b.storageError(container, objectID, "head", err)
	}
	return buildProperties(result.ContentType, result.ContentLength, result.ETag, result.LastModified, result.Metadata), nil
}

// List pages through the keys under the container prefix
func (b *Backend) List(ctx context.Context, container, prefix string) ([]string, error) {
	containerPrefix := container + "/"
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(containerPrefix + prefix),
	})

	ids := make([]string, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, b.storageError(container, prefix, "list", err)
		}
		for _, obj := range page.Contents {
			ids = append(ids, strings.TrimPrefix(aws.ToString(obj.Key), containerPrefix))
		}
	}
	// ListObjectsV2 returns keys in UTF-8 binary order already
	return ids, nil
}

// Delete deletes content from S3. S3 deletes are idempotent, so existence is
// checked first to report missing objects.
func (b *Backend) Delete(ctx context.Context, container, objectID string) error {
	if _, err := b.GetProperties(ctx, container, objectID); err != nil {
		return err
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(container, objectID)),
	})
	if err != nil {
		return b.storageError(container, objectID, "delete", err)
	}
	return nil
}

// Copy performs a server-side copy, metadata included
func (b *Backend) Copy(ctx context.Context, srcContainer, srcID, dstContainer, dstID string) error {
	input := &s3.CopyObjectInput{
		Bucket:            aws.String(b.bucket),
		Key:               aws.String(objectKey(dstContainer, dstID)),
		CopySource:        aws.String(copySource(b.bucket, objectKey(srcContainer, srcID))),
		MetadataDirective: types.MetadataDirectiveCopy,
	}
	b.applyCopySSE(input)

	if _, err := b.client.CopyObject(ctx, input); err != nil {
		return b.storageError(srcContainer, srcID, "copy", err)
	}
	return nil
}

func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

func (b *Backend) applyCopySSE(input *s3.CopyObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

func (b *Backend) storageError(container, objectID, op string, err error) error {
	if isNotFound(err) {
		err = chunkstore.ErrObjectNotFound
	}
	return &chunkstore.StorageError{
		Backend:   "s3",
		Container: container,
		Key:       objectID,
		Op:        op,
		Err:       err,
	}
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func buildProperties(contentType *string, contentLength *int64, etag *string, modified *time.Time, metadata map[string]string) chunkstore.Properties {
	props := make(chunkstore.Properties, len(metadata)+4)
	for k, v := range metadata {
		props[strings.ToLower(k)] = v
	}

	props[chunkstore.PropertyMimetype] = "application/octet-stream"
	if contentType != nil {
		props[chunkstore.PropertyMimetype] = *contentType
	}
	if contentLength != nil {
		props[chunkstore.PropertySize] = strconv.FormatInt(*contentLength, 10)
	}
	if props[chunkstore.PropertyChecksum] == "" {
		props[chunkstore.PropertyChecksum] = trimETag(etag)
	}
	if modified != nil {
		props[chunkstore.PropertyModified] = modified.UTC().Format(time.RFC3339)
	}
	return props
}

func isReservedProperty(name string) bool {
	switch name {
	case chunkstore.PropertyChecksum, chunkstore.PropertySize, chunkstore.PropertyMimetype, chunkstore.PropertyModified:
		return true
	}
	return false
}

func objectKey(container, objectID string) string {
	return container + "/" + objectID
}

func copySource(bucket, key string) string {
	return bucket + "/" + url.PathEscape(key)
}

func trimETag(etag *string) string {
	return strings.Trim(aws.ToString(etag), "\"")
}
