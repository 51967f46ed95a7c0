// Package archive periodically records world snapshots to object storage.
// Archives are write-only operational artifacts for offline inspection;
// nothing reads them back at startup and the world never depends on them.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/worldsync-dev/worldsync/pkg/protocol"
)

// Snapshotter produces the current world state. *world.World satisfies it.
type Snapshotter interface {
	Snapshot(ctx context.Context) (protocol.Snapshot, error)
}

// Archiver records snapshots somewhere durable.
type Archiver interface {
	Capture(ctx context.Context, src Snapshotter) error
}

var _ Archiver = (*S3Archive)(nil)

// PutObjectAPI is the slice of the S3 client the archiver needs.
// *s3.Client satisfies it; tests can substitute a stub.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes world snapshots to an S3 bucket as state frames, one
// object per capture, keyed by timestamp under a fixed prefix.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	arch := archive.NewS3Archive(s3.NewFromConfig(cfg), "my-bucket", "snapshots/", logger)
//	go arch.Run(ctx, world, time.Minute)
type S3Archive struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewS3Archive creates an archiver. The prefix gains a trailing slash when
// it has neither a slash nor is empty.
func NewS3Archive(client PutObjectAPI, bucket, prefix string, logger *slog.Logger) *S3Archive {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "archive"),
		now:    time.Now,
	}
}

// Capture takes one snapshot and writes it to the bucket.
func (a *S3Archive) Capture(ctx context.Context, src Snapshotter) error {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("archive: snapshot: %w", err)
	}
	frame, err := protocol.EncodeState(snap)
	if err != nil {
		return fmt.Errorf("archive: encode: %w", err)
	}

	key := a.prefix + a.now().UTC().Format("2006-01-02T15-04-05.000Z") + ".txt"
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(frame),
		ContentType: aws.String("text/plain; charset=utf-8"),
		Metadata: map[string]string{
			"entity-count": fmt.Sprintf("%d", len(snap.Players)),
		},
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}

	a.logger.Debug("snapshot archived", "key", key, "entities", len(snap.Players), "bytes", len(frame))
	return nil
}

// Run captures a snapshot every interval until ctx is cancelled. Capture
// errors are logged and the loop continues.
func (a *S3Archive) Run(ctx context.Context, src Snapshotter, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("archiver started", "bucket", a.bucket, "prefix", a.prefix, "interval", interval)
	for {
		select {
		case <-ticker.C:
			if err := a.Capture(ctx, src); err != nil {
				a.logger.Error("archive capture failed", "error", err)
			}
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return
		}
	}
}
