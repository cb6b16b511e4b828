package storage

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucket = "artifacts"

// fakeS3 serves the path-style subset of the S3 API that S3Storage uses.
type fakeS3 struct {
	mu          sync.Mutex
	objects     map[string][]byte
	ifNoneMatch []string
	contentType map[string]string
	listPrefix  []string
}

type listResult struct {
	XMLName  xml.Name `xml:"ListBucketResult"`
	Name     string   `xml:"Name"`
	Prefix   string   `xml:"Prefix"`
	KeyCount int      `xml:"KeyCount"`
	Contents []struct {
		Key  string `xml:"Key"`
		Size int    `xml:"Size"`
	} `xml:"Contents"`
	IsTruncated bool `xml:"IsTruncated"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, "/"+testBucket)
	key := strings.TrimPrefix(rest, "/")

	switch {
	case r.Method == http.MethodGet && key == "":
		prefix := r.URL.Query().Get("prefix")
		f.listPrefix = append(f.listPrefix, prefix)
		res := listResult{Name: testBucket, Prefix: prefix}
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) && !strings.Contains(strings.TrimPrefix(k, prefix), "/") {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			res.Contents = append(res.Contents, struct {
				Key  string `xml:"Key"`
				Size int    `xml:"Size"`
			}{Key: k, Size: len(f.objects[k])})
		}
		res.KeyCount = len(keys)
		w.Header().Set("Content-Type", "application/xml")
		_ = xml.NewEncoder(w).Encode(res)
	case r.Method == http.MethodPut:
		f.ifNoneMatch = append(f.ifNoneMatch, r.Header.Get("If-None-Match"))
		if _, ok := f.objects[key]; ok && r.Header.Get("If-None-Match") == "*" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusPreconditionFailed)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>PreconditionFailed</Code><Message>At least one of the pre-conditions you specified did not hold</Message></Error>`)
			return
		}
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		f.contentType[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead:
		if _, ok := f.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Storage(t *testing.T, prefix string) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, contentType: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
		Retryer:                    aws.NopRetryer{},
	})
	return newS3StorageWithClient(client, testBucket, prefix), fake
}

func TestS3Storage_CreateIsConditional(t *testing.T) {
	ctx := context.Background()
	s, fake := newFakeS3Storage(t, "runs")

	require.NoError(t, s.Create(ctx, "X/2024-01-01T000000Z.md", []byte("first")))
	err := s.Create(ctx, "X/2024-01-01T000000Z.md", []byte("second"))
	require.ErrorIs(t, err, ErrAlreadyExists)

	assert.Equal(t, []string{"*", "*"}, fake.ifNoneMatch)
	assert.Equal(t, "first", string(fake.objects["runs/X/2024-01-01T000000Z.md"]))
	assert.Equal(t, "text/markdown; charset=utf-8", fake.contentType["runs/X/2024-01-01T000000Z.md"])

	data, err := s.Read(ctx, "X/2024-01-01T000000Z.md")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestS3Storage_ReadAndExistsMissing(t *testing.T) {
	ctx := context.Background()
	s, _ := newFakeS3Storage(t, "")

	_, err := s.Read(ctx, "X/missing.md")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := s.Exists(ctx, "X/missing.md")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Create(ctx, "X/a.json", []byte("{}")))
	exists, err = s.Exists(ctx, "X/a.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestS3Storage_ListTrimsPrefix(t *testing.T) {
	for _, prefix := range []string{"runs", "runs/", "/runs/", ""} {
		t.Run("prefix="+prefix, func(t *testing.T) {
			ctx := context.Background()
			s, fake := newFakeS3Storage(t, prefix)

			require.NoError(t, s.Create(ctx, "X/2024-01-02T000000Z.md", []byte("b")))
			require.NoError(t, s.Create(ctx, "/X/2024-01-01T000000Z.md", []byte("a")))
			require.NoError(t, s.Create(ctx, "Y/2024-01-01T000000Z.md", []byte("c")))

			paths, err := s.List(ctx, "X")
			require.NoError(t, err)
			assert.Equal(t, []string{"X/2024-01-01T000000Z.md", "X/2024-01-02T000000Z.md"}, paths)

			for k := range fake.objects {
				assert.False(t, strings.HasPrefix(k, "/"), "key %q", k)
			}
			if strings.Trim(prefix, "/") != "" {
				assert.Equal(t, "s3://artifacts/runs/X/a.md", s.Location("X/a.md"))
			} else {
				assert.Equal(t, "s3://artifacts/X/a.md", s.Location("X/a.md"))
			}
		})
	}
}
