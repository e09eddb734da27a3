package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client/metadata"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"nexus/internal/services"
)

type mockS3API struct {
	s3iface.S3API
	files         map[string][]byte
	bucketExists  bool
	createdBucket bool
}

func newMockS3(files map[string][]byte) (*S3, *mockS3API) {
	api := &mockS3API{files: files, bucketExists: true}
	return newS3WithAPI(api, "mock-bucket"), api
}

func (m *mockS3API) PutObjectRequest(input *s3.PutObjectInput) (*request.Request, *s3.PutObjectOutput) {
	content, _ := io.ReadAll(input.Body)
	req := request.New(aws.Config{}, metadata.ClientInfo{}, request.Handlers{}, nil, &request.Operation{}, nil, nil)
	m.files[*input.Key] = content
	return req, &s3.PutObjectOutput{}
}

func (m *mockS3API) GetObjectWithContext(_ aws.Context, input *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := m.files[*input.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3API) DeleteObjectWithContext(_ aws.Context, input *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	if _, ok := m.files[*input.Key]; ok {
		delete(m.files, *input.Key)
		return &s3.DeleteObjectOutput{}, nil
	}
	return nil, awserr.New("NotFound", "", nil)
}

func (m *mockS3API) HeadBucketWithContext(_ aws.Context, _ *s3.HeadBucketInput, _ ...request.Option) (*s3.HeadBucketOutput, error) {
	if m.bucketExists {
		return &s3.HeadBucketOutput{}, nil
	}
	return nil, awserr.New("NotFound", "", nil)
}

func (m *mockS3API) CreateBucketWithContext(_ aws.Context, _ *s3.CreateBucketInput, _ ...request.Option) (*s3.CreateBucketOutput, error) {
	m.bucketExists = true
	m.createdBucket = true
	return &s3.CreateBucketOutput{}, nil
}

func TestS3PutUsesAudioKey(t *testing.T) {
	files := make(map[string][]byte)
	stor, _ := newMockS3(files)

	ref, err := stor.Put(context.Background(), "m1", bytes.NewBufferString("RIFF"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref != "audio/m1.wav" {
		t.Fatalf("ref = %q", ref)
	}
	if got := string(files["audio/m1.wav"]); got != "RIFF" {
		t.Fatalf("stored %q", got)
	}
}

func TestS3GetRoundTrip(t *testing.T) {
	files := map[string][]byte{"audio/m2.wav": []byte{1, 2, 3}}
	stor, _ := newMockS3(files)

	body, err := stor.Get(context.Background(), "audio/m2.wav")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if len(data) != 3 {
		t.Fatalf("read %d bytes", len(data))
	}
}

func TestS3GetMissingIsNotFound(t *testing.T) {
	stor, _ := newMockS3(make(map[string][]byte))

	_, err := stor.Get(context.Background(), "audio/none.wav")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestS3DeleteIgnoresMissing(t *testing.T) {
	files := map[string][]byte{"audio/m3.wav": []byte{1}}
	stor, _ := newMockS3(files)

	if err := stor.Delete(context.Background(), "audio/m3.wav"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := files["audio/m3.wav"]; ok {
		t.Fatal("object still present")
	}
	if err := stor.Delete(context.Background(), "audio/m3.wav"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestS3EnsureBucketCreatesMissing(t *testing.T) {
	stor, api := newMockS3(make(map[string][]byte))
	api.bucketExists = false

	if err := stor.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	if !api.createdBucket {
		t.Fatal("bucket was not created")
	}
}
