package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts     []*s3.PutObjectInput
	bodies   []string
	seekable []bool
	deletes  []*s3.DeleteObjectInput
	err      error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	_, canSeek := in.Body.(io.ReadSeeker)
	f.seekable = append(f.seekable, canSeek)
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, in)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StorePutUsesPrefixAndMetadata(t *testing.T) {
	client := &fakeS3{}
	store, err := NewS3Store(client, S3Config{Bucket: "evidence", Prefix: "/guest/", ServerSideKMS: true})
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "case-1/1_ab.png", strings.NewReader("png"), 3, "image/png"))
	require.Len(t, client.puts, 1)

	in := client.puts[0]
	require.Equal(t, "evidence", aws.ToString(in.Bucket))
	require.Equal(t, "guest/case-1/1_ab.png", aws.ToString(in.Key))
	require.Equal(t, "image/png", aws.ToString(in.ContentType))
	require.Equal(t, int64(3), aws.ToInt64(in.ContentLength))
	require.Equal(t, types.ServerSideEncryptionAwsKms, in.ServerSideEncryption)
	require.Equal(t, "png", client.bodies[0])
}

func TestS3StoreDeleteWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	client := &fakeS3{err: boom}
	store, err := NewS3Store(client, S3Config{Bucket: "evidence"})
	require.NoError(t, err)

	err = store.Delete(context.Background(), "case-1/1_ab.png")
	require.ErrorIs(t, err, boom)
}

func TestNewS3StoreValidates(t *testing.T) {
	_, err := NewS3Store(nil, S3Config{Bucket: "b"})
	require.Error(t, err)

	_, err = NewS3Store(&fakeS3{}, S3Config{})
	require.Error(t, err)
}

func TestS3StorePutHandsTheSDKASeekableBody(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	client := &fakeS3{}
	store, err := NewS3Store(client, S3Config{Bucket: "evidence"})
	require.NoError(t, err)
	store.spoolLimit = 8

	sniffed := func(payload string) io.Reader {
		return io.MultiReader(strings.NewReader(payload[:2]), strings.NewReader(payload[2:]))
	}

	cases := []struct {
		name    string
		payload string
	}{
		{name: "buffered in memory", payload: "\x89PNG"},
		{name: "spooled to disk", payload: "%PDF-1.7 witness statement"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			size := int64(len(tc.payload))
			require.NoError(t, store.Put(context.Background(), "case-1/1_ab.bin", sniffed(tc.payload), size, "application/octet-stream"))
			require.True(t, client.seekable[i])
			require.Equal(t, tc.payload, client.bodies[i])
			require.Equal(t, size, aws.ToInt64(client.puts[i].ContentLength))
		})
	}

	leftovers, err := filepath.Glob(filepath.Join(os.Getenv("TMPDIR"), "blotter-s3-*"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestS3StorePutRejectsSizeMismatch(t *testing.T) {
	client := &fakeS3{}
	store, err := NewS3Store(client, S3Config{Bucket: "evidence"})
	require.NoError(t, err)

	err = store.Put(context.Background(), "case-1/1_ab.png", io.MultiReader(strings.NewReader("short")), 10, "image/png")
	require.ErrorContains(t, err, "declared 10")

	err = store.Put(context.Background(), "case-1/1_ab.png", strings.NewReader("longer than declared"), 3, "image/png")
	require.ErrorContains(t, err, "declared 3")
	require.Empty(t, client.puts)
}
