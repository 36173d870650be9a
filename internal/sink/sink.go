// Package sink stores finished payloads in object storage. Buckets are
// addressed by gocloud URL, so a local directory, S3 or anything else the
// blob drivers know works the same way.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gocloud.dev/blob"

	"github.com/haul-dl/haul/internal/domain"
	"github.com/haul-dl/haul/internal/downloads"
	"github.com/haul-dl/haul/internal/infra/logger"
)

// Sink copies payloads into a bucket. The caller owns the bucket and
// closes it after the download service has shut down.
type Sink struct {
	bucket *blob.Bucket
	log    *logger.Logger
}

func New(bucket *blob.Bucket, log *logger.Logger) *Sink {
	if log == nil {
		log = logger.Nop()
	}
	return &Sink{bucket: bucket, log: log}
}

// Completion returns the handover callback for the download service. Each
// payload is copied into the bucket under the job's suggested path and the
// local file is removed afterwards. done always fires, also when the copy
// fails; the payload then stays at its original location for inspection.
func (s *Sink) Completion(ctx context.Context) downloads.CompletionFunc {
	return func(job *domain.Job, r *domain.Resource, location, suggested string, done func()) {
		defer done()

		key := filepath.ToSlash(suggested)
		n, err := s.store(ctx, location, key)
		if err != nil {
			s.log.Error("Failed to store %s of job %s: %v", r.ClientID, job.ClientID, err)
			return
		}

		if err := os.Remove(location); err != nil {
			s.log.Warn("Could not remove payload %s: %v", location, err)
		}

		s.log.Info("Stored %s (%d bytes)", key, n)
	}
}

func (s *Sink) store(ctx context.Context, location, key string) (int64, error) {
	f, err := os.Open(location)
	if err != nil {
		return 0, fmt.Errorf("failed to open payload: %w", err)
	}
	defer f.Close()

	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create bucket writer: %w", err)
	}

	n, err := io.Copy(w, f)
	if err != nil {
		w.Close()
		return n, fmt.Errorf("failed to copy payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("failed to finish bucket write: %w", err)
	}

	return n, nil
}
