package bundler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/skiffworks/skiff/telemetry"
	"github.com/skiffworks/skiff/types"
)

type mockS3 struct {
	input *s3.PutObjectInput
	body  []byte
	calls int
	err   error
}

func (m *mockS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.calls++
	m.input = params
	if params.Body != nil {
		m.body, _ = io.ReadAll(params.Body)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &s3.PutObjectOutput{}, nil
}

func testS3Bundler(mock *mockS3) *S3Bundler {
	return &S3Bundler{
		s3:       mock,
		bucket:   "skiff-bundles",
		prefix:   "bundles",
		excludes: defaultExcludes,
		logger:   telemetry.NewLoggerTo(io.Discard, "test"),
	}
}

func TestS3Bundler_Bundle(t *testing.T) {
	mock := &mockS3{}
	b := testS3Bundler(mock)

	uri, err := b.Bundle(context.Background(), "trainer", writeWorkspace(t))
	if err != nil {
		t.Fatalf("Bundle() error = %v", err)
	}

	if uri != "s3://skiff-bundles/bundles/trainer.tar.gz" {
		t.Errorf("uri = %q", uri)
	}
	if got := aws.ToString(mock.input.Bucket); got != "skiff-bundles" {
		t.Errorf("bucket = %q", got)
	}
	if got := aws.ToString(mock.input.Key); got != "bundles/trainer.tar.gz" {
		t.Errorf("key = %q", got)
	}
	if got := aws.ToString(mock.input.ContentType); got != "application/gzip" {
		t.Errorf("content type = %q", got)
	}
	if got := aws.ToInt64(mock.input.ContentLength); got != int64(len(mock.body)) {
		t.Errorf("content length = %d, body has %d bytes", got, len(mock.body))
	}

	entries := readEntries(t, bytes.NewReader(mock.body), true)
	if _, ok := entries["train.py"]; !ok {
		t.Errorf("uploaded archive missing train.py, have %v", entries)
	}
	if _, ok := entries[".git/HEAD"]; ok {
		t.Error("uploaded archive should not carry .git")
	}
}

func TestS3Bundler_NoPrefix(t *testing.T) {
	mock := &mockS3{}
	b := testS3Bundler(mock)
	b.prefix = ""

	uri, err := b.Bundle(context.Background(), "trainer", writeWorkspace(t))
	if err != nil {
		t.Fatalf("Bundle() error = %v", err)
	}
	if uri != "s3://skiff-bundles/trainer.tar.gz" {
		t.Errorf("uri = %q", uri)
	}
}

func TestS3Bundler_InvalidName(t *testing.T) {
	mock := &mockS3{}
	b := testS3Bundler(mock)

	_, err := b.Bundle(context.Background(), "Trainer_1", t.TempDir())
	if !errors.Is(err, types.ErrInvalidName) {
		t.Fatalf("error = %v, want ErrInvalidName", err)
	}
	if mock.calls != 0 {
		t.Error("invalid name should fail before any upload")
	}
}

func TestS3Bundler_UploadError(t *testing.T) {
	mock := &mockS3{err: errors.New("access denied")}
	b := testS3Bundler(mock)

	_, err := b.Bundle(context.Background(), "trainer", writeWorkspace(t))
	if err == nil || !strings.Contains(err.Error(), "s3://skiff-bundles/bundles/trainer.tar.gz") {
		t.Fatalf("error = %v, want upload failure naming the object", err)
	}
}
