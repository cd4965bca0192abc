package importer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// objectRoundTripper serves GetObject for path-style requests from memory.
type objectRoundTripper struct {
	objects map[string][]byte // "bucket/key" -> body
}

func (m *objectRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	path := strings.TrimPrefix(req.URL.Path, "/")
	body, ok := m.objects[path]
	if req.Method != http.MethodGet || !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Header:     http.Header{"Content-Type": []string{"application/xml"}},
			Body: io.NopCloser(strings.NewReader(
				`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`,
			)),
			Request: req,
		}, nil
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{"Content-Type": []string{"text/csv"}},
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
		Request:       req,
	}, nil
}

func newMockS3Client(t *testing.T, objects map[string][]byte) *s3.Client {
	t.Helper()
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: &objectRoundTripper{objects: objects}}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
}

func TestS3SourceFetch(t *testing.T) {
	client := newMockS3Client(t, map[string][]byte{
		"exports/leads/march.csv": []byte("Name,Phone\nAsha,111\n,\nRavi,\n"),
	})
	src := NewS3SourceWithClient(client, "exports", "leads/march.csv")

	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindS3, src.Kind())

	res := ProcessImportedData(records)
	assert.Len(t, res.Leads, 2)
	assert.Equal(t, 0, res.Skipped)
}

func TestS3SourceMissingObject(t *testing.T) {
	client := newMockS3Client(t, map[string][]byte{})
	src := NewS3SourceWithClient(client, "exports", "nope.csv")

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://exports/nope.csv")
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://exports/leads/march.csv")
	require.NoError(t, err)
	assert.Equal(t, "exports", bucket)
	assert.Equal(t, "leads/march.csv", key)

	_, _, err = ParseS3URL("https://example.com/a.csv")
	assert.Error(t, err)

	_, _, err = ParseS3URL("s3://bucket-only")
	assert.Error(t, err)

	assert.True(t, IsS3URL("s3://x/y"))
	assert.False(t, IsS3URL("/tmp/y.csv"))
}
