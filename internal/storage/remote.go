package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// S3API is the subset of the S3 client used by S3KV.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3KV stores each key as an object under prefix in a bucket.
type S3KV struct {
	client S3API
	bucket string
	prefix string
}

// NewS3KV loads the default AWS configuration chain.
func NewS3KV(ctx context.Context, bucket, region, prefix string) (*S3KV, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}

	var awsConfig aws.Config
	var err error
	if region != "" {
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	} else {
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3KVWithClient(s3.NewFromConfig(awsConfig), bucket, prefix), nil
}

func NewS3KVWithClient(client S3API, bucket, prefix string) *S3KV {
	return &S3KV{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3KV) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s%s: %w", s.bucket, s.prefix, key, err)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}

func (s *S3KV) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		if isS3QuotaError(err) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("failed to put s3://%s/%s%s: %w", s.bucket, s.prefix, key, err)
	}
	return nil
}

func (s *S3KV) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete s3://%s/%s%s: %w", s.bucket, s.prefix, key, err)
	}
	return nil
}

func (s *S3KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, s.prefix+prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
	}
	return keys, nil
}

func isS3NotFound(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

func isS3QuotaError(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.ErrorCode() == "EntityTooLarge" || ae.ErrorCode() == "QuotaExceeded"
}

// GCSKV stores each key as an object under prefix in a GCS bucket.
type GCSKV struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSKV uses application default credentials unless opts override them.
func NewGCSKV(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSKV, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithScopes(gcs.ScopeReadWrite)}
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSKV{client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCSKV) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := g.client.Bucket(g.bucket).Object(g.prefix + key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read gs://%s/%s%s: %w", g.bucket, g.prefix, key, err)
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

func (g *GCSKV) Put(ctx context.Context, key string, value []byte) error {
	w := g.client.Bucket(g.bucket).Object(g.prefix + key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(value); err != nil {
		w.Close()
		return fmt.Errorf("failed to write gs://%s/%s%s: %w", g.bucket, g.prefix, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write gs://%s/%s%s: %w", g.bucket, g.prefix, key, err)
	}
	return nil
}

func (g *GCSKV) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(g.prefix + key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s%s: %w", g.bucket, g.prefix, key, err)
	}
	return nil
}

func (g *GCSKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &gcs.Query{Prefix: g.prefix + prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", g.bucket, g.prefix+prefix, err)
		}
		keys = append(keys, strings.TrimPrefix(attrs.Name, g.prefix))
	}
	sort.Strings(keys)
	return keys, nil
}

func (g *GCSKV) Close() error {
	return g.client.Close()
}

// AzureKV stores each key as a block blob under prefix in a container.
type AzureKV struct {
	container azblob.ContainerURL
	prefix    string
}

// NewAzureKV authenticates with a SAS token appended to the container URL.
// endpoint defaults to https://{account}.blob.core.windows.net.
func NewAzureKV(endpoint, account, container, sasToken, prefix string) (*AzureKV, error) {
	if container == "" {
		return nil, fmt.Errorf("Azure container is required")
	}
	if endpoint == "" {
		if account == "" {
			return nil, fmt.Errorf("Azure storage account is required")
		}
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", account)
	}

	raw := strings.TrimSuffix(endpoint, "/") + "/" + container
	if sasToken != "" {
		raw += "?" + strings.TrimPrefix(sasToken, "?")
	}
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid Azure container URL: %w", err)
	}

	pipeline := azblob.NewPipeline(azblob.NewAnonymousCredential(), azblob.PipelineOptions{})
	return &AzureKV{
		container: azblob.NewContainerURL(*parsedURL, pipeline),
		prefix:    prefix,
	}, nil
}

func (a *AzureKV) blob(key string) azblob.BlockBlobURL {
	return a.container.NewBlockBlobURL(a.prefix + key)
}

func (a *AzureKV) Get(ctx context.Context, key string) ([]byte, error) {
	response, err := a.blob(key).Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to download blob %s%s: %w", a.prefix, key, err)
	}

	body := response.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	defer body.Close()
	return io.ReadAll(body)
}

func (a *AzureKV) Put(ctx context.Context, key string, value []byte) error {
	_, err := azblob.UploadBufferToBlockBlob(ctx, value, a.blob(key), azblob.UploadToBlockBlobOptions{
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: "application/json"},
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s%s: %w", a.prefix, key, err)
	}
	return nil
}

func (a *AzureKV) Delete(ctx context.Context, key string) error {
	_, err := a.blob(key).Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil && !isAzureNotFound(err) {
		return fmt.Errorf("failed to delete blob %s%s: %w", a.prefix, key, err)
	}
	return nil
}

func (a *AzureKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := a.container.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{Prefix: a.prefix + prefix})
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs %s: %w", a.prefix+prefix, err)
		}
		marker = resp.NextMarker
		for _, item := range resp.Segment.BlobItems {
			keys = append(keys, strings.TrimPrefix(item.Name, a.prefix))
		}
	}
	return keys, nil
}

func isAzureNotFound(err error) bool {
	var serr azblob.StorageError
	if errors.As(err, &serr) {
		return serr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
