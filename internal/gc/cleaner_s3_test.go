package gc

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"pathgc/internal/fsops"
	"pathgc/internal/params"
)

const s3Header = "Drop path on filesystem: \"s3://bucket/\"\n"

// bucket is a flat key set answering single-page listings.
type bucket map[string]bool

func newBucket(keys ...string) bucket {
	b := bucket{}
	for _, k := range keys {
		b[k] = true
	}
	return b
}

func (b bucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	var keys []string
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	seen := map[string]bool{}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if i := strings.Index(rest, delim); delim != "" && i >= 0 {
			cp := prefix + rest[:i+len(delim)]
			if !seen[cp] {
				seen[cp] = true
				out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
			}
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (b bucket) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if b[aws.ToString(in.Key)] {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (b bucket) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, id := range in.Delete.Objects {
		delete(b, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestCleanOnS3EndToEnd(t *testing.T) {
	b := newBucket("wd/job1/", "wd/job1/stats/part-0", "wd/job1/hfiles/cf/h1", "wd/job2/stats/part-0")
	fsys := fsops.NewS3FileSystem(b, "bucket")

	trail, err := NewCleaner(fsys, newLayout(t)).Clean(context.Background(), params.Request{
		Paths: []string{"/wd/job1/stats*", "/wd/job1/hfiles"},
		JobID: "job1",
	})
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}

	want := s3Header +
		"path /wd/job1/stats is dropped.\n" +
		"path /wd/job1/hfiles is dropped.\n" +
		"path /wd/job1 is empty and dropped.\n"
	if trail.String() != want {
		t.Errorf("trail = %q, expected %q", trail.String(), want)
	}
	for k := range b {
		if strings.HasPrefix(k, "wd/job1") {
			t.Errorf("%s should be deleted", k)
		}
	}
	if !b["wd/job2/stats/part-0"] {
		t.Error("other jobs must be untouched")
	}
}

// A missing parent lists as fs.ErrNotExist on S3 as well, so a job dir
// that still holds objects is never pruned.
func TestCleanOnS3MissingParentKeepsJobDir(t *testing.T) {
	b := newBucket("wd/job1/hfiles/h1")
	fsys := fsops.NewS3FileSystem(b, "bucket")

	trail, err := NewCleaner(fsys, newLayout(t)).Clean(context.Background(), params.Request{
		Paths: []string{"/gone/stats"},
		JobID: "job1",
	})
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if trail.String() != s3Header+"path /gone/stats not exists.\n" {
		t.Errorf("trail = %q", trail.String())
	}
	if !b["wd/job1/hfiles/h1"] {
		t.Error("job dir content must survive")
	}
}

func TestCleanOnS3KeepsJobDirWithSiblings(t *testing.T) {
	b := newBucket("wd/job1/stats/part-0", "wd/job1/hfiles/h1")
	fsys := fsops.NewS3FileSystem(b, "bucket")

	trail, err := NewCleaner(fsys, newLayout(t)).Clean(context.Background(), params.Request{
		Paths: []string{"/wd/job1/stats"},
		JobID: "job1",
	})
	if err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	if trail.Count(ActionPruned) != 0 {
		t.Errorf("trail = %q", trail.String())
	}
	if !b["wd/job1/hfiles/h1"] {
		t.Error("sibling must survive")
	}
}
