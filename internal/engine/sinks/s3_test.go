package sinks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/archivekit/archivekit/internal/engine"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	objects []fakeObject
	err     error
}

type fakeObject struct {
	bucket      string
	key         string
	body        []byte
	contentType string
	metadata    map[string]string
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	obj := fakeObject{
		bucket:   *input.Bucket,
		key:      *input.Key,
		body:     body,
		metadata: input.Metadata,
	}
	if input.ContentType != nil {
		obj.contentType = *input.ContentType
	}
	f.objects = append(f.objects, obj)
	return &manager.UploadOutput{}, nil
}

func TestS3Sink_Name(t *testing.T) {
	assert.Equal(t, "s3(backups)", NewS3SinkWithUploader("backups", "", &fakeUploader{}).Name())
	assert.Equal(t, "s3(backups/restore/2026)", NewS3SinkWithUploader("backups", "/restore/2026/", &fakeUploader{}).Name())
	assert.Equal(t, "s3", NewS3SinkWithUploader("backups", "", &fakeUploader{}).Kind())
}

func TestS3Sink_Write_Keys(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		entry  string
		key    string
	}{
		{name: "root entry", entry: "a.txt", key: "a.txt"},
		{name: "nested entry", entry: "sub/b.txt", key: "sub/b.txt"},
		{name: "under prefix", prefix: "extracted", entry: "sub/b.txt", key: "extracted/sub/b.txt"},
		{name: "prefix slashes trimmed", prefix: "/extracted/", entry: "a.txt", key: "extracted/a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &fakeUploader{}
			sink := NewS3SinkWithUploader("backups", tt.prefix, uploader)

			require.NoError(t, sink.Write(t.Context(), tt.entry, bytes.NewBufferString("payload")))

			require.Len(t, uploader.objects, 1)
			assert.Equal(t, "backups", uploader.objects[0].bucket)
			assert.Equal(t, tt.key, uploader.objects[0].key)
			assert.Equal(t, "payload", string(uploader.objects[0].body))
			assert.Equal(t, []string{tt.key}, sink.Uploaded())
		})
	}
}

func TestS3Sink_Write_ContentType(t *testing.T) {
	tests := []struct {
		entry string
		data  []byte
		want  string
	}{
		{entry: "report.json", data: []byte(`{}`), want: "application/json"},
		{entry: "conf/app.YML", data: []byte("a: 1"), want: "application/x-yaml"},
		{entry: "nested/logs.tar.gz", data: []byte("x"), want: "application/gzip"},
		{entry: "nested/backup.7z", data: []byte("x"), want: "application/x-7z-compressed"},
		{entry: "disk.iso", data: []byte("x"), want: "application/x-iso9660-image"},
		{entry: "README", data: []byte("plain words"), want: "text/plain; charset=utf-8"},
		{entry: "notes.unknown", data: []byte("plain words"), want: "text/plain; charset=utf-8"},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			uploader := &fakeUploader{}
			sink := NewS3SinkWithUploader("backups", "", uploader)

			require.NoError(t, sink.Write(t.Context(), tt.entry, bytes.NewReader(tt.data)))
			require.Len(t, uploader.objects, 1)
			assert.Equal(t, tt.want, uploader.objects[0].contentType)
		})
	}
}

func TestS3Sink_Write_SniffKeepsBody(t *testing.T) {
	uploader := &fakeUploader{}
	sink := NewS3SinkWithUploader("backups", "", uploader)

	payload := bytes.Repeat([]byte{0x00, 0x01, 0x02}, 4096)
	require.NoError(t, sink.Write(t.Context(), "blob", bytes.NewReader(payload)))

	require.Len(t, uploader.objects, 1)
	assert.Equal(t, payload, uploader.objects[0].body)
	assert.NotEmpty(t, uploader.objects[0].contentType)
}

func TestS3Sink_Write_Metadata(t *testing.T) {
	uploader := &fakeUploader{}
	sink := NewS3SinkWithUploader("backups", "", uploader)
	sink.metadata = map[string]string{"source-archive": "release.zip"}

	require.NoError(t, sink.Write(t.Context(), "a.txt", bytes.NewBufferString("x")))
	assert.Equal(t, map[string]string{"source-archive": "release.zip"}, uploader.objects[0].metadata)
}

func TestS3Sink_Write_Errors(t *testing.T) {
	t.Run("escaping path", func(t *testing.T) {
		uploader := &fakeUploader{}
		sink := NewS3SinkWithUploader("backups", "prefix", uploader)

		err := sink.Write(t.Context(), "../outside.txt", bytes.NewBufferString("x"))
		require.ErrorIs(t, err, engine.ErrUnsafePath)
		assert.Empty(t, uploader.objects)
	})

	t.Run("upload failure", func(t *testing.T) {
		boom := errors.New("access denied")
		sink := NewS3SinkWithUploader("backups", "prefix", &fakeUploader{err: boom})

		err := sink.Write(t.Context(), "a.txt", bytes.NewBufferString("x"))
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "s3://backups/prefix/a.txt")
		assert.Empty(t, sink.Uploaded())
	})
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink(t.Context(), S3Config{Region: "us-east-1"})
	require.Error(t, err)
}
