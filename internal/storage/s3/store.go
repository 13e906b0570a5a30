// Package s3 provides an ObjectStore backed by an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/cockroachdb/errors"

	"github.com/tjfontaine/promptpub/internal/storage"
)

// API is the subset of the S3 client the store uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ClientConfig selects the region and, optionally, a custom endpoint such as
// a local S3-compatible server.
type ClientConfig struct {
	Region   string
	Endpoint string
}

// NewClient builds an S3 client from the default credential chain.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS configuration")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Store is an ObjectStore over a single bucket.
type Store struct {
	client API
	bucket string
}

var _ storage.ObjectStore = (*Store)(nil)

// New creates a store for bucket.
func New(client API, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Name implements storage.ObjectStore.
func (s *Store) Name() string { return s.bucket }

// Get implements storage.ObjectStore.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrap(err, "get", key)
	}
	body, err := storage.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "s3://%s/%s", s.bucket, key)
	}
	return &storage.Object{
		ObjectInfo: storage.ObjectInfo{
			Key:          key,
			Size:         int64(len(body)),
			ContentType:  aws.ToString(out.ContentType),
			LastModified: aws.ToTime(out.LastModified),
			Metadata:     out.Metadata,
		},
		Body: body,
	}, nil
}

// Head implements storage.ObjectStore.
func (s *Store) Head(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrap(err, "head", key)
	}
	return &storage.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
		Metadata:     out.Metadata,
	}, nil
}

// Put implements storage.ObjectStore.
func (s *Store) Put(ctx context.Context, key string, body []byte, opts storage.PutOptions) error {
	in := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(body),
		Metadata: opts.Metadata,
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return s.wrap(err, "put", key)
	}
	return nil
}

// List implements storage.ObjectStore.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var result []storage.ObjectInfo
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, s.wrap(err, "list", prefix)
		}
		for _, obj := range page.Contents {
			result = append(result, storage.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (s *Store) wrap(err error, op, key string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return errors.Wrapf(storage.ErrNotFound, "s3://%s/%s", s.bucket, key)
		}
	}
	return errors.Wrapf(err, "s3 %s s3://%s/%s", op, s.bucket, key)
}
