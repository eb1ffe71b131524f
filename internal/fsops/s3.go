package fsops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// deleteBatchSize is the DeleteObjects per-request key limit.
const deleteBatchSize = 1000

// S3API is the subset of the S3 client used by S3FileSystem.
type S3API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Options configures OpenS3.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string // custom endpoint for S3 compatible stores (MinIO, Ceph RGW)
	PathStyle bool
}

// S3FileSystem implements FileSystem on an object store bucket.
// Key prefixes act as directories: "/a/b" is the object "a/b" and every
// object under "a/b/".
type S3FileSystem struct {
	client S3API
	bucket string
}

// NewS3FileSystem wraps an existing client.
func NewS3FileSystem(client S3API, bucket string) *S3FileSystem {
	return &S3FileSystem{client: client, bucket: bucket}
}

// OpenS3 builds a client from the default AWS credential chain.
func OpenS3(ctx context.Context, opts S3Options) (*S3FileSystem, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return NewS3FileSystem(client, opts.Bucket), nil
}

func (f *S3FileSystem) URI() string {
	return "s3://" + f.bucket + "/"
}

func (f *S3FileSystem) Exists(ctx context.Context, p string) (bool, error) {
	key := objectKey(p)
	if key == "" {
		return true, nil
	}

	out, err := f.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(key + "/"),
	})
	if err != nil {
		return false, fmt.Errorf("s3 list %s: %w", p, err)
	}
	if len(out.Contents) > 0 {
		return true, nil
	}

	_, err = f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head %s: %w", p, err)
}

func (f *S3FileSystem) RemoveAll(ctx context.Context, p string) error {
	key := objectKey(p)
	if key == "" {
		return fmt.Errorf("s3: refusing to empty bucket %s", f.bucket)
	}

	ids := []types.ObjectIdentifier{{Key: aws.String(key)}}
	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(key + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list %s: %w", p, err)
		}
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
	}

	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		out, err := f.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(f.bucket),
			Delete: &types.Delete{Objects: ids[start:end]},
		})
		if err != nil {
			return fmt.Errorf("s3 delete %s: %w", p, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("s3 delete %s: %s: %s", p, aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}

// List returns the immediate children of p. A prefix with no objects under
// it and no "prefix/" marker does not exist; a bare marker lists as empty.
func (f *S3FileSystem) List(ctx context.Context, p string) ([]string, error) {
	prefix := objectKey(p)
	if prefix != "" {
		prefix += "/"
	}

	var names []string
	found := prefix == ""
	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(f.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", p, err)
		}
		if len(page.CommonPrefixes) > 0 || len(page.Contents) > 0 {
			found = true
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
		for _, obj := range page.Contents {
			// skip the directory marker object "prefix/"
			if name := strings.TrimPrefix(aws.ToString(obj.Key), prefix); name != "" {
				names = append(names, name)
			}
		}
	}
	if !found {
		return nil, &fs.PathError{Op: "list", Path: p, Err: fs.ErrNotExist}
	}
	return names, nil
}

func objectKey(p string) string {
	return strings.TrimPrefix(CleanPath(p), "/")
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return errors.Is(err, fs.ErrNotExist)
}
