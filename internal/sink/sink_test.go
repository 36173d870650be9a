package sink

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/haul-dl/haul/internal/domain"
)

func openBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return bucket
}

func payloadFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.part")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	return path
}

func testJob(t *testing.T) (*domain.Job, *domain.Resource) {
	t.Helper()
	u, err := url.Parse("https://example.com/track.flac")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	r := domain.NewResource("track-1", u, "track.flac")
	return domain.NewJob("album-1", "album", []*domain.Resource{r}), r
}

func TestCompletionStoresPayload(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)
	s := New(bucket, nil)

	content := []byte("flac bytes")
	location := payloadFile(t, content)
	job, r := testJob(t)

	doneCalls := 0
	s.Completion(ctx)(job, r, location, filepath.Join(job.ID, r.Filename), func() { doneCalls++ })

	if doneCalls != 1 {
		t.Fatalf("expected done to fire once, got %d", doneCalls)
	}

	key := job.ID + "/" + r.Filename
	stored, err := bucket.ReadAll(ctx, key)
	if err != nil {
		t.Fatalf("read stored payload: %v", err)
	}
	if !bytes.Equal(stored, content) {
		t.Fatalf("stored payload differs: got %q, want %q", stored, content)
	}

	if _, err := os.Stat(location); !os.IsNotExist(err) {
		t.Fatalf("expected local payload to be removed, stat err: %v", err)
	}
}

func TestCompletionFiresDoneOnFailure(t *testing.T) {
	ctx := context.Background()
	bucket := openBucket(t)
	s := New(bucket, nil)

	job, r := testJob(t)
	missing := filepath.Join(t.TempDir(), "gone.part")

	doneCalls := 0
	s.Completion(ctx)(job, r, missing, filepath.Join(job.ID, r.Filename), func() { doneCalls++ })

	if doneCalls != 1 {
		t.Fatalf("expected done to fire once, got %d", doneCalls)
	}

	exists, err := bucket.Exists(ctx, job.ID+"/"+r.Filename)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected nothing stored for a missing payload")
	}
}

func TestCompletionKeepsPayloadOnBucketError(t *testing.T) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	bucket.Close()
	s := New(bucket, nil)

	content := []byte("keep me")
	location := payloadFile(t, content)
	job, r := testJob(t)

	doneCalls := 0
	s.Completion(ctx)(job, r, location, filepath.Join(job.ID, r.Filename), func() { doneCalls++ })

	if doneCalls != 1 {
		t.Fatalf("expected done to fire once, got %d", doneCalls)
	}
	if _, err := os.Stat(location); err != nil {
		t.Fatalf("expected payload to stay on disk, stat err: %v", err)
	}
}
